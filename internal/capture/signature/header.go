package signature

import "fmt"

// Header is the first byte of a signature blob: calling convention or kind in
// the low nibble, attribute flags in the high nibble.
type Header byte

// CallingConvention values of a method signature header.
const (
	CallingConventionDefault   byte = 0x00
	CallingConventionCDecl     byte = 0x01
	CallingConventionStdCall   byte = 0x02
	CallingConventionThisCall  byte = 0x03
	CallingConventionFastCall  byte = 0x04
	CallingConventionVarArgs   byte = 0x05
	CallingConventionUnmanaged byte = 0x09
)

// Signature kinds that are not method signatures.
const (
	kindField               byte = 0x06
	kindLocalVariables      byte = 0x07
	kindProperty            byte = 0x08
	kindMethodSpecification byte = 0x0A
)

const (
	headerGeneric      Header = 0x10
	headerHasThis      Header = 0x20
	headerExplicitThis Header = 0x40
)

// Kind is the coarse kind of a signature.
type Kind uint8

const (
	KindMethod Kind = iota
	KindField
	KindLocalVariables
	KindProperty
	KindMethodSpecification
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindLocalVariables:
		return "locals"
	case KindProperty:
		return "property"
	case KindMethodSpecification:
		return "methodspec"
	default:
		return "unknown"
	}
}

// CallingConvention returns the low nibble.
func (h Header) CallingConvention() byte {
	return byte(h) & 0x0F
}

// Kind classifies the header. Every calling convention is a method.
func (h Header) Kind() Kind {
	switch cc := h.CallingConvention(); {
	case cc <= CallingConventionVarArgs || cc == CallingConventionUnmanaged:
		return KindMethod
	case cc == kindField:
		return KindField
	case cc == kindLocalVariables:
		return KindLocalVariables
	case cc == kindProperty:
		return KindProperty
	case cc == kindMethodSpecification:
		return KindMethodSpecification
	default:
		return KindUnknown
	}
}

// IsGeneric reports whether a generic parameter count follows the header.
func (h Header) IsGeneric() bool { return h&headerGeneric != 0 }

// HasThis reports whether the method takes an implicit receiver.
func (h Header) HasThis() bool { return h&headerHasThis != 0 }

// ExplicitThis reports whether the receiver is spelled out as the first
// parameter.
func (h Header) ExplicitThis() bool { return h&headerExplicitThis != 0 }

func (h Header) String() string {
	s := fmt.Sprintf("%s(cc=0x%x", h.Kind(), h.CallingConvention())
	if h.IsGeneric() {
		s += ",generic"
	}
	if h.HasThis() {
		s += ",hasthis"
	}
	if h.ExplicitThis() {
		s += ",explicitthis"
	}
	return s + ")"
}
