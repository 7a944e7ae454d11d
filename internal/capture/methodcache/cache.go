// Package methodcache holds the display templates of the methods that have
// probes installed.
//
// Probe callbacks read it from arbitrary application threads while the
// capture pipeline fills and clears it around each session.
package methodcache

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/paramcapture/internal/capture/boxing"
	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
)

// InstrumentedMethod is what the formatter needs when a probe fires.
type InstrumentedMethod struct {
	FunctionID metadata.FunctionID
	Name       string
	Template   string

	// SupportedParameters is parallel to the method's parameters, receiver
	// first.
	SupportedParameters []bool
	NumSupported        int
}

// Cache maps function identifiers to instrumented methods.
type Cache struct {
	logger  zerolog.Logger
	mu      sync.RWMutex
	entries map[metadata.FunctionID]*InstrumentedMethod
}

// New creates an empty cache.
func New(logger zerolog.Logger) *Cache {
	return &Cache{
		logger:  logger.With().Str("component", "method_cache").Logger(),
		entries: make(map[metadata.FunctionID]*InstrumentedMethod),
	}
}

// TryAdd derives the template of method from its boxing instructions and
// stores it. It returns false, leaving the cache unchanged, when the template
// cannot be built or the function is already present; the caller must then
// give up on capturing the method.
func (c *Cache) TryAdd(method *metadata.Method, instructions []boxing.Instruction) bool {
	supported := boxing.SupportedParameters(instructions)
	template, err := boxing.Template(method, supported)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("method", method.QualifiedName()).
			Msg("Failed to build method template")
		return false
	}

	numSupported := 0
	for _, ok := range supported {
		if ok {
			numSupported++
		}
	}

	entry := &InstrumentedMethod{
		FunctionID:          method.FunctionID,
		Name:                method.QualifiedName(),
		Template:            template,
		SupportedParameters: supported,
		NumSupported:        numSupported,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[method.FunctionID]; exists {
		return false
	}
	c.entries[method.FunctionID] = entry
	return true
}

// TryGet returns the instrumented method for id. The returned value must be
// treated as read-only.
func (c *Cache) TryGet(id metadata.FunctionID) (*InstrumentedMethod, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	return entry, ok
}

// Len returns the number of cached methods.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
