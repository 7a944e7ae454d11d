// Package metadata describes managed methods and types the way runtime
// reflection exposes them, reduced to the shape the capture pipeline needs.
//
// The descriptions are plain data: the resolver fills them from a metadata
// snapshot and the boxing package classifies them without touching a live
// runtime. Raw signature blobs travel alongside so that anything reflection
// cannot resolve can still be decoded from the binary form.
package metadata

import (
	"strings"
)

// Kind is the coarse shape of a type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPrimitive
	KindClass
	KindInterface
	KindArray
	KindValueType
	KindPointer
	KindByRef
	KindGenericParameter
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindPrimitive:        "primitive",
	KindClass:            "class",
	KindInterface:        "interface",
	KindArray:            "array",
	KindValueType:        "valuetype",
	KindPointer:          "pointer",
	KindByRef:            "byref",
	KindGenericParameter: "generic_parameter",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind parses the lowercase kind names used by String.
func ParseKind(s string) (Kind, bool) {
	for kind, name := range kindNames {
		if name == s {
			return kind, true
		}
	}
	return KindUnknown, false
}

// PrimitiveKind enumerates the CLR primitive types.
type PrimitiveKind uint8

const (
	PrimitiveNone PrimitiveKind = iota
	PrimitiveBoolean
	PrimitiveChar
	PrimitiveSByte
	PrimitiveByte
	PrimitiveInt16
	PrimitiveUInt16
	PrimitiveInt32
	PrimitiveUInt32
	PrimitiveInt64
	PrimitiveUInt64
	PrimitiveIntPtr
	PrimitiveUIntPtr
	PrimitiveSingle
	PrimitiveDouble
)

var primitiveNames = map[PrimitiveKind]string{
	PrimitiveBoolean: "Boolean",
	PrimitiveChar:    "Char",
	PrimitiveSByte:   "SByte",
	PrimitiveByte:    "Byte",
	PrimitiveInt16:   "Int16",
	PrimitiveUInt16:  "UInt16",
	PrimitiveInt32:   "Int32",
	PrimitiveUInt32:  "UInt32",
	PrimitiveInt64:   "Int64",
	PrimitiveUInt64:  "UInt64",
	PrimitiveIntPtr:  "IntPtr",
	PrimitiveUIntPtr: "UIntPtr",
	PrimitiveSingle:  "Single",
	PrimitiveDouble:  "Double",
}

// String returns the System type name of the primitive.
func (p PrimitiveKind) String() string {
	if name, ok := primitiveNames[p]; ok {
		return name
	}
	return "None"
}

// ParsePrimitive accepts the System type name ("Int32") case-insensitively.
func ParsePrimitive(s string) (PrimitiveKind, bool) {
	for kind, name := range primitiveNames {
		if strings.EqualFold(name, s) {
			return kind, true
		}
	}
	return PrimitiveNone, false
}

// Primitives returns every primitive kind in ordinal order.
func Primitives() []PrimitiveKind {
	kinds := make([]PrimitiveKind, 0, len(primitiveNames))
	for k := PrimitiveBoolean; k <= PrimitiveDouble; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Type describes a parameter or declaring type.
type Type struct {
	// Name is the simple metadata name; generic definitions keep their
	// arity suffix ("Dictionary`2").
	Name      string
	Namespace string

	// Module is the module (assembly) that defines the type. Empty when the
	// defining module is unknown.
	Module string

	// Token is the definition token in the defining module.
	Token Token

	Kind      Kind
	Primitive PrimitiveKind

	// ByRefLike marks stack-only value types (ref structs).
	ByRefLike bool

	// Element is the pointee, referent or array element type.
	Element *Type

	// GenericArguments holds the type arguments of a constructed generic
	// type, or the type parameters of an open definition.
	GenericArguments []*Type
}

// FullName returns Namespace.Name.
func (t *Type) FullName() string {
	if t == nil {
		return ""
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// IsGeneric reports whether the type is a generic definition or
// instantiation.
func (t *Type) IsGeneric() bool {
	return len(t.GenericArguments) > 0 || strings.Contains(t.Name, "`")
}

// ContainsGenericParameters reports whether the type or any of its
// components is an open generic parameter.
func (t *Type) ContainsGenericParameters() bool {
	if t == nil {
		return false
	}
	if t.Kind == KindGenericParameter {
		return true
	}
	if t.Element != nil && t.Element.ContainsGenericParameters() {
		return true
	}
	for _, arg := range t.GenericArguments {
		if arg.ContainsGenericParameters() {
			return true
		}
	}
	return false
}

// IsValueType reports whether values of the type live inline (primitives and
// structs).
func (t *Type) IsValueType() bool {
	return t != nil && (t.Kind == KindValueType || t.Kind == KindPrimitive)
}

// DisplayName renders the type for humans: arity suffix stripped and generic
// arguments spelled out.
func (t *Type) DisplayName() string {
	if t == nil {
		return "?"
	}
	switch t.Kind {
	case KindArray:
		return t.Element.DisplayName() + "[]"
	case KindPointer:
		return t.Element.DisplayName() + "*"
	case KindByRef:
		return t.Element.DisplayName() + "&"
	}

	var b strings.Builder
	b.WriteString(StripArity(t.Name))
	WriteGenericArguments(&b, t.GenericArguments)
	return b.String()
}

// StripArity removes the "`N" arity suffix of a generic type name.
func StripArity(name string) string {
	if i := strings.IndexByte(name, '`'); i >= 0 {
		return name[:i]
	}
	return name
}

// WriteGenericArguments appends "<A, B>" for args, or nothing when empty.
func WriteGenericArguments(b *strings.Builder, args []*Type) {
	if len(args) == 0 {
		return
	}
	b.WriteByte('<')
	for i, arg := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.DisplayName())
	}
	b.WriteByte('>')
}
