package resolver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
)

// ErrNotFound is returned when a description matches no method.
var ErrNotFound = errors.New("no matching method")

// Catalog resolves method descriptions against a fixed set of methods.
// It is safe for concurrent use; the method set never changes after
// construction.
type Catalog struct {
	logger zerolog.Logger

	// byType indexes methods by lowercased module and exact type full name.
	byType map[typeKey][]*metadata.Method
	all    []*metadata.Method
}

type typeKey struct {
	module   string
	typeName string
}

// NewCatalog indexes methods for lookup.
func NewCatalog(logger zerolog.Logger, methods []*metadata.Method) *Catalog {
	c := &Catalog{
		logger: logger.With().Str("component", "resolver").Logger(),
		byType: make(map[typeKey][]*metadata.Method),
		all:    methods,
	}
	for _, m := range methods {
		key := keyFor(m.Module, m.DeclaringType.FullName())
		c.byType[key] = append(c.byType[key], m)
	}

	c.logger.Debug().
		Int("methods", len(methods)).
		Int("types", len(c.byType)).
		Msg("Catalog indexed")
	return c
}

// Open loads a catalog file and indexes it.
func Open(logger zerolog.Logger, path string) (*Catalog, error) {
	methods, err := LoadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(logger, methods), nil
}

func keyFor(module, typeName string) typeKey {
	name := strings.ToLower(module)
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".dll"), ".exe")
	return typeKey{module: name, typeName: typeName}
}

// Resolve returns every method (all overloads) matching desc. The module is
// matched case-insensitively with or without extension; type and method
// names must match exactly.
func (c *Catalog) Resolve(ctx context.Context, desc metadata.MethodDescription) ([]*metadata.Method, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	var matches []*metadata.Method
	for _, m := range c.byType[keyFor(desc.ModuleName, desc.TypeName)] {
		if m.Name == desc.MethodName {
			matches = append(matches, m)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, desc)
	}

	c.logger.Debug().
		Str("method", desc.String()).
		Int("overloads", len(matches)).
		Msg("Resolved method description")
	return matches, nil
}

// Methods returns every method in the catalog in snapshot order.
func (c *Catalog) Methods() []*metadata.Method {
	return c.all
}

// DeriveFunctionID produces a stable identifier from the defining module and
// the method's definition token, for catalogs that carry no runtime handle.
func DeriveFunctionID(module string, token metadata.Token) metadata.FunctionID {
	buf := make([]byte, 0, len(module)+4)
	buf = append(buf, strings.ToLower(module)...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(token))
	return metadata.FunctionID(xxh3.Hash(buf))
}
