package signature

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blob parses space-separated hex bytes.
func blob(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

// compress encodes n as an unsigned compressed integer.
func compress(n uint32) []byte {
	switch {
	case n <= 0x7F:
		return []byte{byte(n)}
	case n <= 0x3FFF:
		return []byte{byte(n>>8) | 0x80, byte(n)}
	default:
		return []byte{byte(n>>24) | 0xC0, byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

func decodeNames(t *testing.T, s string) *MethodSignature[string] {
	t.Helper()
	sig, err := DecodeMethodSignature[string](blob(t, s), NameProvider{})
	require.NoError(t, err)
	return sig
}

func parameterTypes(sig *MethodSignature[string]) []string {
	types := make([]string, len(sig.ParameterTypes))
	for i, p := range sig.ParameterTypes {
		types[i] = p.Type
	}
	return types
}

func TestDecodeMethodSignature_Shapes(t *testing.T) {
	tests := []struct {
		name   string
		blob   string
		ret    string
		params []string
	}{
		{
			name:   "primitives",
			blob:   "20 02 01 08 0e",
			ret:    "void",
			params: []string{"int32", "string"},
		},
		{
			name:   "foreign value type",
			blob:   "00 01 01 11 15",
			ret:    "void",
			params: []string{"valuetype typeref 0x01000005"},
		},
		{
			name:   "local class",
			blob:   "00 01 1c 12 10",
			ret:    "object",
			params: []string{"class typedef 0x02000004"},
		},
		{
			name:   "type specification",
			blob:   "00 01 01 11 0a",
			ret:    "void",
			params: []string{"valuetype typespec 0x1b000002"},
		},
		{
			name:   "arrays, byref and pointer",
			blob:   "00 04 01 1d 08 14 08 02 00 00 10 0a 0f 05",
			ret:    "void",
			params: []string{"int32[]", "int32[,]", "int64&", "uint8*"},
		},
		{
			name:   "generic instantiation",
			blob:   "00 01 01 15 12 19 02 08 0e",
			ret:    "void",
			params: []string{"class typeref 0x01000006<int32, string>"},
		},
		{
			name:   "generic parameters",
			blob:   "00 02 13 00 13 00 1e 01",
			ret:    "!0",
			params: []string{"!0", "!!1"},
		},
		{
			name:   "custom modifier",
			blob:   "00 01 01 1f 15 08",
			ret:    "void",
			params: []string{"int32 modreq(typeref 0x01000005)"},
		},
		{
			name:   "function pointer",
			blob:   "00 01 01 1b 00 01 08 08",
			ret:    "void",
			params: []string{"method int32 *(int32)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := decodeNames(t, tt.blob)
			assert.Equal(t, tt.ret, sig.ReturnType.Type)
			assert.Equal(t, tt.params, parameterTypes(sig))
			assert.Equal(t, len(tt.params), sig.RequiredParameterCount)
			assert.Equal(t, 0, sig.VarArgCount())
		})
	}
}

func TestDecodeMethodSignature_Header(t *testing.T) {
	sig := decodeNames(t, "30 02 01 01 1e 00")

	assert.True(t, sig.Header.IsGeneric())
	assert.True(t, sig.Header.HasThis())
	assert.False(t, sig.Header.ExplicitThis())
	assert.Equal(t, KindMethod, sig.Header.Kind())
	assert.Equal(t, 2, sig.GenericParameterCount)
	assert.Equal(t, []string{"!!0"}, parameterTypes(sig))
}

func TestDecodeMethodSignature_Offsets(t *testing.T) {
	// instance void (int32, valuetype [Other]Money, class Customer)
	sig := decodeNames(t, "20 03 01 08 11 15 12 10")

	assert.Equal(t, Parameter[string]{Type: "void", Offset: 2, Length: 1}, sig.ReturnType)
	require.Len(t, sig.ParameterTypes, 3)
	assert.Equal(t, 3, sig.ParameterTypes[0].Offset)
	assert.Equal(t, 1, sig.ParameterTypes[0].Length)
	assert.Equal(t, 4, sig.ParameterTypes[1].Offset)
	assert.Equal(t, 2, sig.ParameterTypes[1].Length)
	assert.Equal(t, 6, sig.ParameterTypes[2].Offset)
	assert.Equal(t, 2, sig.ParameterTypes[2].Length)
}

func TestDecodeMethodSignature_VarArgs(t *testing.T) {
	// vararg void (int32, ..., int64, float64)
	sig := decodeNames(t, "05 03 01 08 41 0a 0d")

	assert.Equal(t, CallingConventionVarArgs, sig.Header.CallingConvention())
	assert.Equal(t, 1, sig.RequiredParameterCount)
	assert.Equal(t, 2, sig.VarArgCount())
	assert.Equal(t, []string{"int32", "int64", "float64"}, parameterTypes(sig))

	// The sentinel is not part of the parameter it precedes.
	assert.Equal(t, 5, sig.ParameterTypes[1].Offset)
	assert.Equal(t, 1, sig.ParameterTypes[1].Length)
}

func TestDecodeMethodSignature_LargeParameterCount(t *testing.T) {
	const n = 200

	var buf bytes.Buffer
	buf.WriteByte(0x00)
	buf.Write(compress(n))
	buf.WriteByte(byte(ElementVoid))
	for i := 0; i < n; i++ {
		buf.WriteByte(byte(ElementI4))
	}

	sig, err := DecodeMethodSignature[string](buf.Bytes(), NameProvider{})
	require.NoError(t, err)
	assert.Len(t, sig.ParameterTypes, n)
	assert.Equal(t, n, sig.RequiredParameterCount)
}

func TestDecodeMethodSignature_Errors(t *testing.T) {
	deep := "00 01 01 " + strings.Repeat("1d ", maxDepth+1) + "08"

	tests := []struct {
		name    string
		blob    string
		wantErr string
	}{
		{name: "empty", blob: "", wantErr: "reading header"},
		{name: "field signature", blob: "06 08", wantErr: "expected method signature"},
		{name: "method spec", blob: "0a 01 08", wantErr: "expected method signature"},
		{name: "truncated", blob: "20 02 01 08", wantErr: "decoding parameter 1"},
		{name: "count larger than blob", blob: "00 7f 01", wantErr: "exceeds remaining"},
		{name: "trailing bytes", blob: "00 00 01 08", wantErr: "trailing bytes"},
		{name: "unknown element type", blob: "00 01 01 50", wantErr: "unexpected element type 0x50"},
		{name: "second sentinel", blob: "05 02 01 41 08 41", wantErr: "unexpected element type 0x41"},
		{name: "nil type handle", blob: "00 01 01 11 00", wantErr: "nil type handle"},
		{name: "invalid coded index tag", blob: "00 01 01 11 07", wantErr: "invalid TypeDefOrRef tag"},
		{name: "generic instantiation without arguments", blob: "00 01 01 15 12 19 00", wantErr: "without arguments"},
		{name: "generic instantiation of primitive", blob: "00 01 01 15 08 19 01 08", wantErr: "generic instantiation of element type"},
		{name: "array of rank zero", blob: "00 01 01 14 08 00 00 00", wantErr: "rank 0"},
		{name: "invalid compressed integer", blob: "00 e0", wantErr: "invalid compressed integer"},
		{name: "nesting too deep", blob: deep, wantErr: "nesting deeper"},
		{name: "element type wider than a byte", blob: "00 01 01 81 08", wantErr: "element type 0x108 out of range"},
		{name: "element type wider than a byte after sentinel", blob: "05 01 01 41 c0 00 01 08", wantErr: "out of range"},
		{name: "generic instantiation of wide element type", blob: "00 01 01 15 81 12 19 01 08", wantErr: "out of range"},
		{name: "type handle row beyond token range", blob: "00 01 01 11 c4 00 00 05", wantErr: "exceeds token range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMethodSignature[string](blob(t, tt.blob), NameProvider{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSignature)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadCompressedUint(t *testing.T) {
	tests := []struct {
		blob string
		want uint32
		size int
	}{
		{"03", 0x03, 1},
		{"7f", 0x7F, 1},
		{"80 80", 0x80, 2},
		{"bf ff", 0x3FFF, 2},
		{"c0 00 40 00", 0x4000, 4},
		{"df ff ff ff", 0x1FFFFFFF, 4},
	}

	for _, tt := range tests {
		t.Run(tt.blob, func(t *testing.T) {
			r := &blobReader{buf: blob(t, tt.blob)}
			got, size, err := r.readCompressedUint()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, 0, r.remaining())
		})
	}

	for _, n := range []uint32{0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 0x1FFFFFFF} {
		r := &blobReader{buf: compress(n)}
		got, _, err := r.readCompressedUint()
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}

	r := &blobReader{buf: blob(t, "c0 00")}
	_, _, err := r.readCompressedUint()
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestReadCompressedInt(t *testing.T) {
	tests := []struct {
		blob string
		want int32
	}{
		{"06", 3},
		{"7b", -3},
		{"7f", -1},
		{"01", -64},
		{"80 80", 64},
		{"80 01", -8192},
		{"c0 00 40 00", 8192},
		{"c0 00 00 01", -268435456},
	}

	for _, tt := range tests {
		t.Run(tt.blob, func(t *testing.T) {
			r := &blobReader{buf: blob(t, tt.blob)}
			got, err := r.readCompressedInt()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadArrayShape(t *testing.T) {
	// rank 2, sizes [3 4], lower bounds [-1]
	r := &blobReader{buf: blob(t, "02 02 03 04 01 7f")}
	shape, err := readArrayShape(r)
	require.NoError(t, err)

	assert.Equal(t, 2, shape.Rank)
	assert.Equal(t, []uint32{3, 4}, shape.Sizes)
	assert.Equal(t, []int32{-1}, shape.LowerBounds)
	assert.Equal(t, 0, r.remaining())
}

func TestHeader(t *testing.T) {
	assert.Equal(t, KindField, Header(0x06).Kind())
	assert.Equal(t, KindLocalVariables, Header(0x07).Kind())
	assert.Equal(t, KindProperty, Header(0x28).Kind())
	assert.Equal(t, KindMethodSpecification, Header(0x0A).Kind())
	assert.Equal(t, KindMethod, Header(0x09).Kind())
	assert.Equal(t, KindUnknown, Header(0x0C).Kind())

	assert.Equal(t, "method(cc=0x0,generic,hasthis)", Header(0x30).String())
	assert.True(t, Header(0x60).ExplicitThis())
}
