package signature

import (
	"errors"
	"fmt"
)

// ErrInvalidSignature is wrapped by every decoding failure.
var ErrInvalidSignature = errors.New("invalid signature")

// blobReader is a forward-only cursor over a signature blob.
type blobReader struct {
	buf []byte
	pos int
}

func (r *blobReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *blobReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("%w: unexpected end of blob at offset %d", ErrInvalidSignature, r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// readCompressedUint reads an unsigned compressed integer (II.23.2) and
// returns it along with the number of bytes it occupied.
func (r *blobReader) readCompressedUint() (uint32, int, error) {
	start := r.pos
	b0, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}

	switch {
	case b0&0x80 == 0:
		return uint32(b0), 1, nil

	case b0&0xC0 == 0x80:
		if r.remaining() < 1 {
			return 0, 0, fmt.Errorf("%w: truncated compressed integer at offset %d", ErrInvalidSignature, start)
		}
		b1 := r.buf[r.pos]
		r.pos++
		return uint32(b0&0x3F)<<8 | uint32(b1), 2, nil

	case b0&0xE0 == 0xC0:
		if r.remaining() < 3 {
			return 0, 0, fmt.Errorf("%w: truncated compressed integer at offset %d", ErrInvalidSignature, start)
		}
		b1, b2, b3 := r.buf[r.pos], r.buf[r.pos+1], r.buf[r.pos+2]
		r.pos += 3
		return uint32(b0&0x1F)<<24 | uint32(b1)<<16 | uint32(b2)<<8 | uint32(b3), 4, nil

	default:
		return 0, 0, fmt.Errorf("%w: invalid compressed integer lead byte 0x%02x at offset %d", ErrInvalidSignature, b0, start)
	}
}

// readCompressedInt reads a signed compressed integer. The sign bit is
// rotated into the lowest bit of the unsigned encoding.
func (r *blobReader) readCompressedInt() (int32, error) {
	raw, size, err := r.readCompressedUint()
	if err != nil {
		return 0, err
	}

	negative := raw&1 != 0
	value := raw >> 1
	if negative {
		switch size {
		case 1:
			value |= 0xFFFFFFC0
		case 2:
			value |= 0xFFFFE000
		default:
			value |= 0xF0000000
		}
	}
	return int32(value), nil
}

// readCount reads a compressed element count and rejects counts that cannot
// fit in the rest of the blob, given each element takes at least minSize
// bytes.
func (r *blobReader) readCount(what string, minSize int) (int, error) {
	n, _, err := r.readCompressedUint()
	if err != nil {
		return 0, err
	}
	if minSize > 0 && int64(n)*int64(minSize) > int64(r.remaining()) {
		return 0, fmt.Errorf("%w: %s count %d exceeds remaining %d bytes", ErrInvalidSignature, what, n, r.remaining())
	}
	return int(n), nil
}
