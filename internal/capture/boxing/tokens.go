package boxing

import (
	"fmt"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
)

// specialCaseFlag marks sentinel tokens. No metadata table has kind 0x7f.
const specialCaseFlag uint32 = 0x7f000000

// SpecialCase enumerates the boxing cases the profiler handles without a
// type token.
type SpecialCase uint32

const (
	SpecialCaseUnknown SpecialCase = iota
	SpecialCaseObject
	SpecialCaseBoolean
	SpecialCaseChar
	SpecialCaseSByte
	SpecialCaseByte
	SpecialCaseInt16
	SpecialCaseUInt16
	SpecialCaseInt32
	SpecialCaseUInt32
	SpecialCaseInt64
	SpecialCaseUInt64
	SpecialCaseSingle
	SpecialCaseDouble
	SpecialCaseIntPtr
	SpecialCaseUIntPtr
)

// Sentinel tokens understood by the profiler.
var (
	UnsupportedToken = SpecialCaseUnknown.Token()
	SkipBoxingToken  = SpecialCaseObject.Token()
)

var specialCaseNames = [...]string{
	SpecialCaseUnknown: "Unsupported",
	SpecialCaseObject:  "Object",
	SpecialCaseBoolean: "Boolean",
	SpecialCaseChar:    "Char",
	SpecialCaseSByte:   "SByte",
	SpecialCaseByte:    "Byte",
	SpecialCaseInt16:   "Int16",
	SpecialCaseUInt16:  "UInt16",
	SpecialCaseInt32:   "Int32",
	SpecialCaseUInt32:  "UInt32",
	SpecialCaseInt64:   "Int64",
	SpecialCaseUInt64:  "UInt64",
	SpecialCaseSingle:  "Single",
	SpecialCaseDouble:  "Double",
	SpecialCaseIntPtr:  "IntPtr",
	SpecialCaseUIntPtr: "UIntPtr",
}

// Token returns the wire token of the special case.
func (s SpecialCase) Token() uint32 {
	return uint32(s) | specialCaseFlag
}

func (s SpecialCase) String() string {
	if int(s) < len(specialCaseNames) {
		return specialCaseNames[s]
	}
	return fmt.Sprintf("SpecialCase(%d)", uint32(s))
}

var primitiveCases = map[metadata.PrimitiveKind]SpecialCase{
	metadata.PrimitiveBoolean: SpecialCaseBoolean,
	metadata.PrimitiveChar:    SpecialCaseChar,
	metadata.PrimitiveSByte:   SpecialCaseSByte,
	metadata.PrimitiveByte:    SpecialCaseByte,
	metadata.PrimitiveInt16:   SpecialCaseInt16,
	metadata.PrimitiveUInt16:  SpecialCaseUInt16,
	metadata.PrimitiveInt32:   SpecialCaseInt32,
	metadata.PrimitiveUInt32:  SpecialCaseUInt32,
	metadata.PrimitiveInt64:   SpecialCaseInt64,
	metadata.PrimitiveUInt64:  SpecialCaseUInt64,
	metadata.PrimitiveIntPtr:  SpecialCaseIntPtr,
	metadata.PrimitiveUIntPtr: SpecialCaseUIntPtr,
	metadata.PrimitiveSingle:  SpecialCaseSingle,
	metadata.PrimitiveDouble:  SpecialCaseDouble,
}

// IsSentinel reports whether token is a special case rather than a metadata
// token.
func IsSentinel(token uint32) bool {
	return token&0xff000000 == specialCaseFlag
}

// Describe renders a wire token for logs and the inspect command.
func Describe(token uint32) string {
	if IsSentinel(token) {
		return SpecialCase(token &^ specialCaseFlag).String()
	}
	t := metadata.Token(token)
	switch t.Table() {
	case metadata.TableTypeDef:
		return "TypeDef(" + t.String() + ")"
	case metadata.TableTypeRef:
		return "TypeRef(" + t.String() + ")"
	default:
		return "Token(" + t.String() + ")"
	}
}
