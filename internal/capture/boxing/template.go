package boxing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
)

// UnsupportedPlaceholder is printed instead of a value slot for parameters
// that are not captured.
const UnsupportedPlaceholder = "<unsupported>"

// ErrParameterMismatch is returned when the support flags do not line up with
// the method's parameters.
var ErrParameterMismatch = errors.New("parameter count mismatch")

// Template renders method as a log message template, for example
//
//	Shop.Cart<Int32>.Add(this: {this}, Int32 count: {count}, Span<Byte> data: <unsupported>)
//
// Supported parameters get a {name} slot; the slots appear in parameter
// order, so slot i takes the i-th captured value.
func Template(method *metadata.Method, supported []bool) (string, error) {
	if len(supported) != method.ParameterCount() {
		return "", fmt.Errorf("%w: method %s has %d parameters, got %d flags",
			ErrParameterMismatch, method.QualifiedName(), method.ParameterCount(), len(supported))
	}

	var name strings.Builder
	if dt := method.DeclaringType; dt != nil {
		if dt.Namespace != "" {
			name.WriteString(dt.Namespace)
			name.WriteByte('.')
		}
		name.WriteString(metadata.StripArity(dt.Name))
		metadata.WriteGenericArguments(&name, dt.GenericArguments)
		name.WriteByte('.')
	}
	name.WriteString(method.Name)
	metadata.WriteGenericArguments(&name, method.GenericArguments)

	var b strings.Builder
	b.WriteString(sanitize(name.String()))
	b.WriteByte('(')
	slot := 0
	if method.HasImplicitThis() {
		writeParameter(&b, "", "this", supported[slot])
		slot++
	}
	for i, param := range method.Parameters {
		if slot > 0 {
			b.WriteString(", ")
		}
		writeParameter(&b, param.Type.DisplayName(), ParameterName(param, i), supported[slot])
		slot++
	}
	b.WriteByte(')')

	return b.String(), nil
}

// ParameterName is the name used for the format slot of a parameter.
func ParameterName(param metadata.Parameter, index int) string {
	if param.Name == "" {
		return fmt.Sprintf("arg%d", index)
	}
	return param.Name
}

func writeParameter(b *strings.Builder, typeName, name string, supported bool) {
	if typeName != "" {
		b.WriteString(sanitize(typeName))
		b.WriteByte(' ')
	}
	b.WriteString(sanitize(name))
	b.WriteString(": ")
	if supported {
		b.WriteByte('{')
		b.WriteString(sanitize(name))
		b.WriteByte('}')
	} else {
		b.WriteString(UnsupportedPlaceholder)
	}
}

// sanitize keeps braces out of names so the only braces in a template are
// value slots.
func sanitize(s string) string {
	if !strings.ContainsAny(s, "{}") {
		return s
	}
	return strings.NewReplacer("{", "(", "}", ")").Replace(s)
}

// CountSlots returns the number of value slots in a template.
func CountSlots(template string) int {
	return strings.Count(template, "{")
}
