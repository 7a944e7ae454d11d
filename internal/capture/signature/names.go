package signature

import (
	"fmt"
	"strings"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
)

var primitiveNames = map[ElementType]string{
	ElementVoid:       "void",
	ElementBoolean:    "bool",
	ElementChar:       "char",
	ElementI1:         "int8",
	ElementU1:         "uint8",
	ElementI2:         "int16",
	ElementU2:         "uint16",
	ElementI4:         "int32",
	ElementU4:         "uint32",
	ElementI8:         "int64",
	ElementU8:         "uint64",
	ElementR4:         "float32",
	ElementR8:         "float64",
	ElementString:     "string",
	ElementTypedByRef: "typedref",
	ElementI:          "native int",
	ElementU:          "native uint",
	ElementObject:     "object",
}

// NameProvider renders each type in ILAsm-like notation. Tokens are printed
// raw since the provider has no metadata tables to look names up in.
type NameProvider struct{}

var _ TypeProvider[string] = NameProvider{}

func (NameProvider) Primitive(code ElementType) string {
	if name, ok := primitiveNames[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", byte(code))
}

func (NameProvider) TypeDefinition(token metadata.Token, kind RawTypeKind) string {
	return kindPrefix(kind) + "typedef " + token.String()
}

func (NameProvider) TypeReference(token metadata.Token, kind RawTypeKind) string {
	return kindPrefix(kind) + "typeref " + token.String()
}

func (NameProvider) TypeSpecification(token metadata.Token, kind RawTypeKind) string {
	return kindPrefix(kind) + "typespec " + token.String()
}

func (NameProvider) SZArray(element string) string { return element + "[]" }

func (NameProvider) Array(element string, shape ArrayShape) string {
	return element + "[" + strings.Repeat(",", shape.Rank-1) + "]"
}

func (NameProvider) ByReference(element string) string { return element + "&" }

func (NameProvider) Pointer(element string) string { return element + "*" }

func (NameProvider) Pinned(element string) string { return element + " pinned" }

func (NameProvider) GenericInstantiation(generic string, args []string) string {
	return generic + "<" + strings.Join(args, ", ") + ">"
}

func (NameProvider) GenericTypeParameter(index int) string { return fmt.Sprintf("!%d", index) }

func (NameProvider) GenericMethodParameter(index int) string { return fmt.Sprintf("!!%d", index) }

func (NameProvider) FunctionPointer(sig *MethodSignature[string]) string {
	params := make([]string, len(sig.ParameterTypes))
	for i, p := range sig.ParameterTypes {
		params[i] = p.Type
	}
	return "method " + sig.ReturnType.Type + " *(" + strings.Join(params, ", ") + ")"
}

func (NameProvider) Modified(modifier string, unmodified string, required bool) string {
	if required {
		return unmodified + " modreq(" + modifier + ")"
	}
	return unmodified + " modopt(" + modifier + ")"
}

func kindPrefix(kind RawTypeKind) string {
	switch kind {
	case RawTypeKindClass:
		return "class "
	case RawTypeKindValueType:
		return "valuetype "
	default:
		return ""
	}
}
