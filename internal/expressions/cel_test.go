package expressions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/pkg/schema"
)

func ruleData() map[string]any {
	return map[string]any{
		"node": map[string]any{
			"node_id":    "n1",
			"type":       "decision",
			"outputs":    []any{"Approve", "Reject"},
			"position_x": 120.0,
		},
		"incoming": []any{map[string]any{"from_node": "start"}},
		"outgoing": []any{
			map[string]any{"to_node": "n2", "condition": "Approve"},
		},
	}
}

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_RuleExpressions(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	tests := []struct {
		expression string
		want       any
	}{
		{`node.type == "decision"`, true},
		{`size(node.outputs) == 2`, true},
		{`node.type != "decision" || outgoing.size() == size(node.outputs)`, false},
		{`incoming.size() > 0`, true},
		{`outgoing.all(c, c.condition in node.outputs)`, true},
		{`node.position_x >= 0.0`, true},
		{`node.node_id + "!"`, "n1!"},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tt.expression, ruleData())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCEL_MissingVariablesDefaultToEmpty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `incoming.size() == 0 && size(node) == 0`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_Errors(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), `node.type ==`, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), `os.env["HOME"]`, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), `node.missing == "x"`, ruleData())
	require.Error(t, err)
	var se *schema.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, schema.ErrCodeExpression, se.Code)
	assert.Equal(t, `node.missing == "x"`, se.Details["expression"])
}

func TestCEL_ProgramCaching(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), `node.type == "task"`, ruleData())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.cache.len())
}

func TestCEL_Concurrent(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 50)
	results := make([]any, 50)
	for i := range 50 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = e.Evaluate(context.Background(), `outgoing.size() == 1`, ruleData())
		}(i)
	}
	wg.Wait()

	for i := range 50 {
		assert.NoError(t, errs[i])
		assert.Equal(t, true, results[i])
	}
}
