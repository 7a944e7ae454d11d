package boxing

import (
	"fmt"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
)

// DecisionKind is the outcome of classifying one parameter.
type DecisionKind uint8

const (
	// Unsupported parameters are not captured.
	Unsupported DecisionKind = iota
	// Primitive parameters are boxed by the profiler's built-in cases.
	Primitive
	// SkipBoxing parameters are already references.
	SkipBoxing
	// TypeDef parameters are value types defined next to the method.
	TypeDef
	// NeedsSignatureDecode parameters are value types from another module;
	// only the signature blob carries their TypeRef token.
	NeedsSignatureDecode
)

func (k DecisionKind) String() string {
	switch k {
	case Unsupported:
		return "unsupported"
	case Primitive:
		return "primitive"
	case SkipBoxing:
		return "skip-boxing"
	case TypeDef:
		return "typedef"
	case NeedsSignatureDecode:
		return "needs-signature-decode"
	default:
		return fmt.Sprintf("DecisionKind(%d)", uint8(k))
	}
}

// Decision is the classification of a parameter.
type Decision struct {
	Kind        DecisionKind
	SpecialCase SpecialCase
	TypeToken   metadata.Token
}

var (
	unsupported          = Decision{Kind: Unsupported}
	skipBoxing           = Decision{Kind: SkipBoxing, SpecialCase: SpecialCaseObject}
	needsSignatureDecode = Decision{Kind: NeedsSignatureDecode}
)

// Token converts the decision to its wire token. NeedsSignatureDecode has no
// token of its own and reports false.
func (d Decision) Token() (uint32, bool) {
	switch d.Kind {
	case Primitive, SkipBoxing:
		return d.SpecialCase.Token(), true
	case TypeDef:
		return uint32(d.TypeToken), true
	case NeedsSignatureDecode:
		return 0, false
	default:
		return UnsupportedToken, true
	}
}

func (d Decision) String() string {
	switch d.Kind {
	case Primitive:
		return "primitive(" + d.SpecialCase.String() + ")"
	case TypeDef:
		return "typedef(" + d.TypeToken.String() + ")"
	default:
		return d.Kind.String()
	}
}

// Classify decides how a parameter of type t of method must be boxed.
// isReceiver marks the implicit this slot.
func Classify(method *metadata.Method, t *metadata.Type, isReceiver bool) Decision {
	if t == nil {
		return unsupported
	}

	switch t.Kind {
	case metadata.KindByRef, metadata.KindPointer, metadata.KindGenericParameter:
		return unsupported

	case metadata.KindPrimitive:
		if isReceiver {
			// A value-type receiver arrives by address.
			return unsupported
		}
		if sc, ok := primitiveCases[t.Primitive]; ok {
			return Decision{Kind: Primitive, SpecialCase: sc}
		}
		return unsupported

	case metadata.KindArray, metadata.KindClass, metadata.KindInterface:
		return skipBoxing

	case metadata.KindValueType:
		return classifyValueType(method, t, isReceiver)

	default:
		return unsupported
	}
}

func classifyValueType(method *metadata.Method, t *metadata.Type, isReceiver bool) Decision {
	switch {
	case isReceiver, t.ByRefLike:
		return unsupported
	case t.IsGeneric(), t.ContainsGenericParameters():
		// Would need a TypeSpec token.
		return unsupported
	case t.Module == "" || method == nil:
		return unsupported
	case metadata.SameModule(t.Module, method.Module):
		if t.Token.Table() != metadata.TableTypeDef || t.Token.IsNil() {
			return unsupported
		}
		return Decision{Kind: TypeDef, TypeToken: t.Token}
	default:
		return needsSignatureDecode
	}
}

// ClassifyReceiver classifies the implicit this of method.
func ClassifyReceiver(method *metadata.Method) Decision {
	if method.DeclaringType == nil || method.DeclaringType.IsValueType() {
		return unsupported
	}
	return Classify(method, method.DeclaringType, true)
}
