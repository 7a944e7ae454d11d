// Package resolver turns operator method descriptions into concrete methods.
//
// The metadata comes from a catalog: a YAML snapshot of the modules loaded in
// the target process, their types and methods, and each method's raw
// signature blob. The profiler writes the snapshot; tests and dry runs use
// hand-written ones.
package resolver

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
)

// catalogDoc is the on-disk layout.
type catalogDoc struct {
	Modules []moduleDoc `yaml:"modules"`
}

type moduleDoc struct {
	Name  string         `yaml:"name"`
	Types []declaringDoc `yaml:"types"`
}

type declaringDoc struct {
	Namespace        string      `yaml:"namespace"`
	Name             string      `yaml:"name"`
	Kind             string      `yaml:"kind"`
	Token            uint32      `yaml:"token"`
	GenericArguments []typeDoc   `yaml:"generic_arguments,omitempty"`
	Methods          []methodDoc `yaml:"methods"`
}

type methodDoc struct {
	Name             string         `yaml:"name"`
	Token            uint32         `yaml:"token"`
	Static           bool           `yaml:"static"`
	FunctionID       uint64         `yaml:"function_id,omitempty"`
	Signature        string         `yaml:"signature"`
	GenericArguments []typeDoc      `yaml:"generic_arguments,omitempty"`
	Parameters       []parameterDoc `yaml:"parameters"`
}

type parameterDoc struct {
	Name string  `yaml:"name"`
	Type typeDoc `yaml:"type"`
}

type typeDoc struct {
	Name             string    `yaml:"name"`
	Namespace        string    `yaml:"namespace,omitempty"`
	Module           string    `yaml:"module,omitempty"`
	Kind             string    `yaml:"kind"`
	Primitive        string    `yaml:"primitive,omitempty"`
	Token            uint32    `yaml:"token,omitempty"`
	ByRefLike        bool      `yaml:"byref_like,omitempty"`
	Element          *typeDoc  `yaml:"element,omitempty"`
	GenericArguments []typeDoc `yaml:"generic_arguments,omitempty"`
}

// LoadCatalogFile reads and parses a catalog snapshot.
func LoadCatalogFile(path string) ([]*metadata.Method, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied catalog path
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	methods, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return methods, nil
}

// ParseCatalog parses a catalog snapshot into methods.
func ParseCatalog(data []byte) ([]*metadata.Method, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	var methods []*metadata.Method
	for _, mod := range doc.Modules {
		if mod.Name == "" {
			return nil, fmt.Errorf("module without a name")
		}
		for _, td := range mod.Types {
			declaring, err := td.toType(mod.Name)
			if err != nil {
				return nil, fmt.Errorf("type %s.%s: %w", td.Namespace, td.Name, err)
			}
			for _, md := range td.Methods {
				method, err := md.toMethod(mod.Name, declaring)
				if err != nil {
					return nil, fmt.Errorf("method %s.%s: %w", declaring.FullName(), md.Name, err)
				}
				methods = append(methods, method)
			}
		}
	}
	return methods, nil
}

func (d *declaringDoc) toType(module string) (*metadata.Type, error) {
	kind, ok := metadata.ParseKind(d.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", d.Kind)
	}
	args, err := convertTypes(d.GenericArguments, module)
	if err != nil {
		return nil, err
	}
	return &metadata.Type{
		Name:             d.Name,
		Namespace:        d.Namespace,
		Module:           module,
		Token:            metadata.Token(d.Token),
		Kind:             kind,
		GenericArguments: args,
	}, nil
}

func (d *methodDoc) toMethod(module string, declaring *metadata.Type) (*metadata.Method, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("missing name")
	}

	blob, err := DecodeHex(d.Signature)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}

	args, err := convertTypes(d.GenericArguments, module)
	if err != nil {
		return nil, err
	}

	params := make([]metadata.Parameter, 0, len(d.Parameters))
	for i := range d.Parameters {
		t, err := d.Parameters[i].Type.toType(module)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		params = append(params, metadata.Parameter{Name: d.Parameters[i].Name, Type: t})
	}

	id := metadata.FunctionID(d.FunctionID)
	if id == 0 {
		id = DeriveFunctionID(module, metadata.Token(d.Token))
	}

	return &metadata.Method{
		FunctionID:       id,
		Module:           module,
		Token:            metadata.Token(d.Token),
		DeclaringType:    declaring,
		Name:             d.Name,
		IsStatic:         d.Static,
		Parameters:       params,
		GenericArguments: args,
		Signature:        blob,
	}, nil
}

// toType converts a parameter type. Types without an explicit module are
// assumed to live in the module being parsed, except primitives and
// generic parameters which have none.
func (d *typeDoc) toType(module string) (*metadata.Type, error) {
	kind, ok := metadata.ParseKind(d.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", d.Kind)
	}

	t := &metadata.Type{
		Name:      d.Name,
		Namespace: d.Namespace,
		Module:    d.Module,
		Token:     metadata.Token(d.Token),
		Kind:      kind,
		ByRefLike: d.ByRefLike,
	}
	if t.Module == "" && kind != metadata.KindPrimitive && kind != metadata.KindGenericParameter {
		t.Module = module
	}

	if kind == metadata.KindPrimitive {
		p, ok := metadata.ParsePrimitive(d.Primitive)
		if !ok {
			return nil, fmt.Errorf("unknown primitive %q", d.Primitive)
		}
		t.Primitive = p
		if t.Name == "" {
			t.Name = p.String()
			t.Namespace = "System"
		}
	}

	if d.Element != nil {
		elem, err := d.Element.toType(module)
		if err != nil {
			return nil, err
		}
		t.Element = elem
	}

	args, err := convertTypes(d.GenericArguments, module)
	if err != nil {
		return nil, err
	}
	t.GenericArguments = args
	return t, nil
}

func convertTypes(docs []typeDoc, module string) ([]*metadata.Type, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	types := make([]*metadata.Type, 0, len(docs))
	for i := range docs {
		t, err := docs[i].toType(module)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// DecodeHex parses a signature blob with or without whitespace between bytes.
func DecodeHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
