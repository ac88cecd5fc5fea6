// Package expressions evaluates lint rules and document queries with CEL,
// expr and jq.
package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Engine evaluates an expression against a data map.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Registry resolves engines by name.
type Registry map[string]Engine

// NewRegistry returns a registry holding the CEL, expr and jq engines.
func NewRegistry() (Registry, error) {
	cel, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	r := Registry{}
	for _, e := range []Engine{cel, NewExprEngine(), NewGoJQEngine()} {
		r[e.Name()] = e
	}
	return r, nil
}

// Get returns the named engine.
func (r Registry) Get(name string) (Engine, error) {
	e, ok := r[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression engine %q", name).
			WithDetails(map[string]any{"available": r.Names()})
	}
	return e, nil
}

// Names lists registered engine names in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// programCache memoizes compiled programs by expression text.
type programCache[P any] struct {
	mu sync.RWMutex
	m  map[string]P
}

func newProgramCache[P any]() *programCache[P] {
	return &programCache[P]{m: make(map[string]P)}
}

func (c *programCache[P]) get(expression string, compile func() (P, error)) (P, error) {
	c.mu.RLock()
	p, ok := c.m[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.m[expression]; ok {
		return p, nil
	}
	p, err := compile()
	if err != nil {
		return p, err
	}
	c.m[expression] = p
	return p, nil
}

func (c *programCache[P]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func compileError(engine, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s compile error in %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func evalError(engine, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExpression, "%s evaluation failed for %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

// ToJSONValue converts v into the generic JSON shape (maps, slices,
// float64) the engines expect, by round-tripping through encoding/json.
func ToJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return out, nil
}

// ToJSONMap is ToJSONValue for values that encode as objects.
func ToJSONMap(v any) (map[string]any, error) {
	out, err := ToJSONValue(v)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value encodes as %T, not an object", out)
	}
	return m, nil
}
