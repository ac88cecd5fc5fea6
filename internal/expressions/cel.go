package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// celVariables are the top-level names a lint rule can reference.
var celVariables = []struct {
	name  string
	list  bool
	empty func() any
}{
	{"node", false, func() any { return map[string]any{} }},
	{"document", false, func() any { return map[string]any{} }},
	{"incoming", true, func() any { return []any{} }},
	{"outgoing", true, func() any { return []any{} }},
}

// CELEngine evaluates Common Expression Language rules. Compiled programs
// are cached and safe for concurrent use.
type CELEngine struct {
	env   *cel.Env
	cache *programCache[cel.Program]
}

// NewCELEngine creates a CEL engine whose environment declares node and
// document as maps and incoming and outgoing as lists.
func NewCELEngine() (*CELEngine, error) {
	opts := make([]cel.EnvOption, 0, len(celVariables))
	for _, v := range celVariables {
		typ := cel.MapType(cel.StringType, cel.DynType)
		if v.list {
			typ = cel.ListType(cel.DynType)
		}
		opts = append(opts, cel.Variable(v.name, typ))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, cache: newProgramCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Evaluate runs expression with data as the activation. Missing variables
// default to empty values.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	prg, err := e.cache.get(expression, func() (cel.Program, error) {
		ast, issues := e.env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return nil, compileError("CEL", expression, issues.Err())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, compileError("CEL", expression, err)
		}
		return prg, nil
	})
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(celVariables))
	for _, v := range celVariables {
		if val, ok := data[v.name]; ok && val != nil {
			activation[v.name] = val
		} else {
			activation[v.name] = v.empty()
		}
	}

	out, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return nil, evalError("CEL", expression, err)
	}
	return out.Value(), nil
}

var _ Engine = (*CELEngine)(nil)
