package signature

import (
	"fmt"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
)

// maxDepth bounds type nesting so hostile blobs cannot exhaust the stack.
const maxDepth = 64

// maxTokenRow is the largest row a metadata token can carry.
const maxTokenRow = 0x00ffffff

// Parameter is one decoded type along with where its encoding sits in the
// blob.
type Parameter[T any] struct {
	Type   T
	Offset int
	Length int
}

// MethodSignature is a decoded MethodDefSig or MethodRefSig.
type MethodSignature[T any] struct {
	Header                 Header
	GenericParameterCount  int
	RequiredParameterCount int
	ReturnType             Parameter[T]
	ParameterTypes         []Parameter[T]
}

// VarArgCount is the number of parameters following the vararg sentinel.
func (s *MethodSignature[T]) VarArgCount() int {
	return len(s.ParameterTypes) - s.RequiredParameterCount
}

// Decoder decodes blobs with a fixed TypeProvider.
type Decoder[T any] struct {
	provider TypeProvider[T]
}

// NewDecoder returns a decoder producing values through provider.
func NewDecoder[T any](provider TypeProvider[T]) *Decoder[T] {
	return &Decoder[T]{provider: provider}
}

// DecodeMethodSignature decodes a complete method signature blob.
func (d *Decoder[T]) DecodeMethodSignature(blob []byte) (*MethodSignature[T], error) {
	r := &blobReader{buf: blob}
	sig, err := d.decodeMethodSignature(r, 0)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after method signature", ErrInvalidSignature, r.remaining())
	}
	return sig, nil
}

// DecodeMethodSignature is a convenience wrapper around a one-off Decoder.
func DecodeMethodSignature[T any](blob []byte, provider TypeProvider[T]) (*MethodSignature[T], error) {
	return NewDecoder(provider).DecodeMethodSignature(blob)
}

func (d *Decoder[T]) decodeMethodSignature(r *blobReader, depth int) (*MethodSignature[T], error) {
	b, err := r.readByte()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := Header(b)
	if header.Kind() != KindMethod {
		return nil, fmt.Errorf("%w: expected method signature, got %s", ErrInvalidSignature, header.Kind())
	}

	sig := &MethodSignature[T]{Header: header}

	if header.IsGeneric() {
		n, err := r.readCount("generic parameter", 0)
		if err != nil {
			return nil, fmt.Errorf("reading generic parameter count: %w", err)
		}
		sig.GenericParameterCount = n
	}

	// Each parameter takes at least one byte, and the return type one more.
	paramCount, err := r.readCount("parameter", 1)
	if err != nil {
		return nil, fmt.Errorf("reading parameter count: %w", err)
	}

	sig.ReturnType, err = d.decodeParameter(r, depth)
	if err != nil {
		return nil, fmt.Errorf("decoding return type: %w", err)
	}

	sig.ParameterTypes = make([]Parameter[T], 0, paramCount)
	sig.RequiredParameterCount = paramCount

	for i := 0; i < paramCount; i++ {
		start := r.pos
		code, err := readElementType(r)
		if err != nil {
			return nil, fmt.Errorf("decoding parameter %d: %w", i, err)
		}
		if code == ElementSentinel && sig.RequiredParameterCount == paramCount {
			// Everything after the sentinel is a vararg; decode them the
			// same way.
			sig.RequiredParameterCount = i
			start = r.pos
			if code, err = readElementType(r); err != nil {
				return nil, fmt.Errorf("decoding parameter %d: %w", i, err)
			}
		}

		typ, err := d.decodeType(r, code, depth+1)
		if err != nil {
			return nil, fmt.Errorf("decoding parameter %d: %w", i, err)
		}
		sig.ParameterTypes = append(sig.ParameterTypes, Parameter[T]{
			Type:   typ,
			Offset: start,
			Length: r.pos - start,
		})
	}

	return sig, nil
}

func (d *Decoder[T]) decodeParameter(r *blobReader, depth int) (Parameter[T], error) {
	start := r.pos
	code, err := readElementType(r)
	if err != nil {
		return Parameter[T]{}, err
	}
	typ, err := d.decodeType(r, code, depth+1)
	if err != nil {
		return Parameter[T]{}, err
	}
	return Parameter[T]{Type: typ, Offset: start, Length: r.pos - start}, nil
}

func (d *Decoder[T]) readType(r *blobReader, depth int) (T, error) {
	code, err := readElementType(r)
	if err != nil {
		var zero T
		return zero, err
	}
	return d.decodeType(r, code, depth+1)
}

// readElementType reads an element type code. Codes are compressed integers
// on the wire but only one byte wide; a wider value is invalid rather than
// truncated.
func readElementType(r *blobReader) (ElementType, error) {
	start := r.pos
	code, _, err := r.readCompressedUint()
	if err != nil {
		return 0, err
	}
	if code > 0xFF {
		return 0, fmt.Errorf("%w: element type 0x%x out of range at offset %d", ErrInvalidSignature, code, start)
	}
	return ElementType(code), nil
}

func (d *Decoder[T]) decodeType(r *blobReader, code ElementType, depth int) (T, error) {
	var zero T
	if depth > maxDepth {
		return zero, fmt.Errorf("%w: type nesting deeper than %d", ErrInvalidSignature, maxDepth)
	}

	if code.IsPrimitive() {
		return d.provider.Primitive(code), nil
	}

	switch code {
	case ElementPtr, ElementByRef, ElementPinned, ElementSZArray:
		elem, err := d.readType(r, depth)
		if err != nil {
			return zero, err
		}
		switch code {
		case ElementPtr:
			return d.provider.Pointer(elem), nil
		case ElementByRef:
			return d.provider.ByReference(elem), nil
		case ElementPinned:
			return d.provider.Pinned(elem), nil
		default:
			return d.provider.SZArray(elem), nil
		}

	case ElementArray:
		elem, err := d.readType(r, depth)
		if err != nil {
			return zero, err
		}
		shape, err := readArrayShape(r)
		if err != nil {
			return zero, err
		}
		return d.provider.Array(elem, shape), nil

	case ElementClass, ElementValueType:
		return d.decodeTypeHandle(r, rawKindOf(code))

	case ElementGenericInst:
		return d.decodeGenericInstantiation(r, depth)

	case ElementVar, ElementMVar:
		index, _, err := r.readCompressedUint()
		if err != nil {
			return zero, err
		}
		if code == ElementVar {
			return d.provider.GenericTypeParameter(int(index)), nil
		}
		return d.provider.GenericMethodParameter(int(index)), nil

	case ElementFnPtr:
		sig, err := d.decodeMethodSignature(r, depth)
		if err != nil {
			return zero, fmt.Errorf("decoding function pointer: %w", err)
		}
		return d.provider.FunctionPointer(sig), nil

	case ElementCModReqd, ElementCModOpt:
		modifier, err := d.decodeTypeHandle(r, RawTypeKindUnknown)
		if err != nil {
			return zero, err
		}
		unmodified, err := d.readType(r, depth)
		if err != nil {
			return zero, err
		}
		return d.provider.Modified(modifier, unmodified, code == ElementCModReqd), nil

	default:
		return zero, fmt.Errorf("%w: unexpected element type 0x%02x at offset %d", ErrInvalidSignature, byte(code), r.pos)
	}
}

func (d *Decoder[T]) decodeGenericInstantiation(r *blobReader, depth int) (T, error) {
	var zero T

	code, err := readElementType(r)
	if err != nil {
		return zero, err
	}
	kind := rawKindOf(code)
	if kind == RawTypeKindUnknown {
		return zero, fmt.Errorf("%w: generic instantiation of element type 0x%02x", ErrInvalidSignature, code)
	}

	generic, err := d.decodeTypeHandle(r, kind)
	if err != nil {
		return zero, err
	}

	count, err := r.readCount("generic argument", 1)
	if err != nil {
		return zero, err
	}
	if count == 0 {
		return zero, fmt.Errorf("%w: generic instantiation without arguments", ErrInvalidSignature)
	}

	args := make([]T, count)
	for i := range args {
		if args[i], err = d.readType(r, depth); err != nil {
			return zero, fmt.Errorf("generic argument %d: %w", i, err)
		}
	}
	return d.provider.GenericInstantiation(generic, args), nil
}

// decodeTypeHandle reads a TypeDefOrRefOrSpecEncoded operand (II.23.2.8).
func (d *Decoder[T]) decodeTypeHandle(r *blobReader, kind RawTypeKind) (T, error) {
	var zero T

	coded, _, err := r.readCompressedUint()
	if err != nil {
		return zero, err
	}

	row := coded >> 2
	if row == 0 {
		return zero, fmt.Errorf("%w: nil type handle", ErrInvalidSignature)
	}
	if row > maxTokenRow {
		return zero, fmt.Errorf("%w: type handle row 0x%x exceeds token range", ErrInvalidSignature, row)
	}

	switch coded & 0x3 {
	case 0:
		return d.provider.TypeDefinition(metadata.NewToken(metadata.TableTypeDef, row), kind), nil
	case 1:
		return d.provider.TypeReference(metadata.NewToken(metadata.TableTypeRef, row), kind), nil
	case 2:
		return d.provider.TypeSpecification(metadata.NewToken(metadata.TableTypeSpec, row), kind), nil
	default:
		return zero, fmt.Errorf("%w: invalid TypeDefOrRef tag in 0x%x", ErrInvalidSignature, coded)
	}
}

func readArrayShape(r *blobReader) (ArrayShape, error) {
	rank, err := r.readCount("array rank", 0)
	if err != nil {
		return ArrayShape{}, err
	}
	if rank == 0 {
		return ArrayShape{}, fmt.Errorf("%w: array of rank 0", ErrInvalidSignature)
	}
	shape := ArrayShape{Rank: rank}

	numSizes, err := r.readCount("array size", 1)
	if err != nil {
		return ArrayShape{}, err
	}
	for i := 0; i < numSizes; i++ {
		size, _, err := r.readCompressedUint()
		if err != nil {
			return ArrayShape{}, err
		}
		shape.Sizes = append(shape.Sizes, size)
	}

	numBounds, err := r.readCount("array lower bound", 1)
	if err != nil {
		return ArrayShape{}, err
	}
	for i := 0; i < numBounds; i++ {
		bound, err := r.readCompressedInt()
		if err != nil {
			return ArrayShape{}, err
		}
		shape.LowerBounds = append(shape.LowerBounds, bound)
	}

	return shape, nil
}

func rawKindOf(code ElementType) RawTypeKind {
	switch code {
	case ElementClass:
		return RawTypeKindClass
	case ElementValueType:
		return RawTypeKindValueType
	default:
		return RawTypeKindUnknown
	}
}
