package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// ExprEngine evaluates expr-lang rules. Every data key is a top-level
// variable; unknown names evaluate to nil.
type ExprEngine struct {
	cache *programCache[*vm.Program]
}

// NewExprEngine creates an expr engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: newProgramCache[*vm.Program]()}
}

func (e *ExprEngine) Name() string { return "expr" }

func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	prg, err := e.cache.get(expression, func() (*vm.Program, error) {
		prg, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, compileError("expr", expression, err)
		}
		return prg, nil
	})
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, evalError("expr", expression, err)
	}
	return out, nil
}

var _ Engine = (*ExprEngine)(nil)
