package signature

import "github.com/coral-mesh/paramcapture/internal/capture/metadata"

// ElementType is an ELEMENT_TYPE_* code (II.23.1.16).
type ElementType byte

// Element type codes.
const (
	ElementVoid        ElementType = 0x01
	ElementBoolean     ElementType = 0x02
	ElementChar        ElementType = 0x03
	ElementI1          ElementType = 0x04
	ElementU1          ElementType = 0x05
	ElementI2          ElementType = 0x06
	ElementU2          ElementType = 0x07
	ElementI4          ElementType = 0x08
	ElementU4          ElementType = 0x09
	ElementI8          ElementType = 0x0A
	ElementU8          ElementType = 0x0B
	ElementR4          ElementType = 0x0C
	ElementR8          ElementType = 0x0D
	ElementString      ElementType = 0x0E
	ElementPtr         ElementType = 0x0F
	ElementByRef       ElementType = 0x10
	ElementValueType   ElementType = 0x11
	ElementClass       ElementType = 0x12
	ElementVar         ElementType = 0x13
	ElementArray       ElementType = 0x14
	ElementGenericInst ElementType = 0x15
	ElementTypedByRef  ElementType = 0x16
	ElementI           ElementType = 0x18
	ElementU           ElementType = 0x19
	ElementFnPtr       ElementType = 0x1B
	ElementObject      ElementType = 0x1C
	ElementSZArray     ElementType = 0x1D
	ElementMVar        ElementType = 0x1E
	ElementCModReqd    ElementType = 0x1F
	ElementCModOpt     ElementType = 0x20
	ElementInternal    ElementType = 0x21
	ElementSentinel    ElementType = 0x41
	ElementPinned      ElementType = 0x45
)

// IsPrimitive reports whether the code encodes a type with no further
// operands.
func (e ElementType) IsPrimitive() bool {
	switch e {
	case ElementVoid, ElementBoolean, ElementChar, ElementI1, ElementU1, ElementI2, ElementU2,
		ElementI4, ElementU4, ElementI8, ElementU8, ElementR4, ElementR8, ElementString,
		ElementTypedByRef, ElementI, ElementU, ElementObject:
		return true
	}
	return false
}

// RawTypeKind tells a provider whether a TypeDefOrRef operand was introduced
// by CLASS or VALUETYPE.
type RawTypeKind uint8

const (
	RawTypeKindUnknown RawTypeKind = iota
	RawTypeKindClass
	RawTypeKindValueType
)

// ArrayShape is the rank and bounds of a general ARRAY type.
type ArrayShape struct {
	Rank        int
	Sizes       []uint32
	LowerBounds []int32
}

// TypeProvider builds a T for each encoded type. The decoder calls exactly
// one method per type it reads, innermost first.
type TypeProvider[T any] interface {
	Primitive(code ElementType) T
	TypeDefinition(token metadata.Token, kind RawTypeKind) T
	TypeReference(token metadata.Token, kind RawTypeKind) T
	TypeSpecification(token metadata.Token, kind RawTypeKind) T
	SZArray(element T) T
	Array(element T, shape ArrayShape) T
	ByReference(element T) T
	Pointer(element T) T
	Pinned(element T) T
	GenericInstantiation(generic T, args []T) T
	GenericTypeParameter(index int) T
	GenericMethodParameter(index int) T
	FunctionPointer(sig *MethodSignature[T]) T
	Modified(modifier T, unmodified T, required bool) T
}
