package metadata

import (
	"fmt"
	"strings"
)

// FunctionID is the stable handle of a concrete method for the lifetime of a
// capture session. It keys the instrumented method cache and is the unit the
// profiler installs probes against.
type FunctionID uint64

func (f FunctionID) String() string {
	return fmt.Sprintf("0x%016x", uint64(f))
}

// Parameter is a formal parameter. Name is empty when metadata carries none.
type Parameter struct {
	Name string
	Type *Type
}

// Method is a concrete method resolved for instrumentation.
type Method struct {
	FunctionID FunctionID

	// Module is the module that defines the method.
	Module string
	Token  Token

	DeclaringType *Type
	Name          string
	IsStatic      bool

	Parameters       []Parameter
	GenericArguments []*Type

	// Signature is the raw MethodDefSig blob.
	Signature []byte
}

// HasImplicitThis reports whether the method receives a receiver in front of
// its formal parameters.
func (m *Method) HasImplicitThis() bool {
	return !m.IsStatic
}

// ParameterCount is the number of formal parameters plus the receiver, if
// any.
func (m *Method) ParameterCount() int {
	n := len(m.Parameters)
	if m.HasImplicitThis() {
		n++
	}
	return n
}

// QualifiedName is Namespace.Type.Method, as printed in logs.
func (m *Method) QualifiedName() string {
	if m.DeclaringType == nil {
		return m.Name
	}
	return m.DeclaringType.FullName() + "." + m.Name
}

// MethodDescription names methods the way an operator does. Overloaded names
// match every overload.
type MethodDescription struct {
	ModuleName string `yaml:"module" json:"module"`
	TypeName   string `yaml:"type" json:"type"`
	MethodName string `yaml:"method" json:"method"`
}

func (d MethodDescription) String() string {
	return d.ModuleName + "!" + d.TypeName + "." + d.MethodName
}

// Validate checks that every part of the description is present.
func (d MethodDescription) Validate() error {
	var missing []string
	if strings.TrimSpace(d.ModuleName) == "" {
		missing = append(missing, "module")
	}
	if strings.TrimSpace(d.TypeName) == "" {
		missing = append(missing, "type")
	}
	if strings.TrimSpace(d.MethodName) == "" {
		missing = append(missing, "method")
	}
	if len(missing) > 0 {
		return fmt.Errorf("method description %q missing %s", d.String(), strings.Join(missing, ", "))
	}
	return nil
}

// SameModule compares module names the way the loader does: case-insensitive
// and with or without the ".dll" extension.
func SameModule(a, b string) bool {
	return strings.EqualFold(trimModuleExt(a), trimModuleExt(b))
}

func trimModuleExt(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".dll") || strings.HasSuffix(lower, ".exe") {
		return name[:len(name)-4]
	}
	return name
}
