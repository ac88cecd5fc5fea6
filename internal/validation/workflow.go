// Package validation checks workflow definition documents in three
// stages: JSON Schema shape, semantic graph checks and user lint rules.
package validation

import (
	"context"
	"encoding/json"

	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Validator runs the full pipeline. Shape errors short-circuit the later
// stages, which assume a well-formed document.
type Validator struct {
	schema  *SchemaValidator
	rules   []Rule
	engines expressions.Registry
}

// NewValidator compiles the document schema and checks rules against the
// registry. engines may be nil when rules is empty.
func NewValidator(rules []Rule, engines expressions.Registry) (*Validator, error) {
	sv, err := NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 && engines == nil {
		if engines, err = expressions.NewRegistry(); err != nil {
			return nil, err
		}
	}
	for _, r := range rules {
		if err := r.check(engines); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
		}
	}
	return &Validator{schema: sv, rules: append([]Rule(nil), rules...), engines: engines}, nil
}

// Validate checks a typed definition.
func (v *Validator) Validate(ctx context.Context, def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("", schema.ErrCodeValidation, "definition is nil")
		return r
	}
	result := v.schema.Check(def)
	if !result.Valid() {
		return result
	}
	return v.graph(ctx, def, result)
}

// ValidateJSON checks a raw document.
func (v *Validator) ValidateJSON(ctx context.Context, raw []byte) *schema.ValidationResult {
	result := v.schema.CheckJSON(raw)
	if !result.Valid() {
		return result
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		result.AddError("", schema.ErrCodeDecode, err.Error())
		return result
	}
	return v.graph(ctx, &def, result)
}

// ValidateDefinition returns the pipeline result as an error, nil when the
// document has no errors.
func (v *Validator) ValidateDefinition(ctx context.Context, def *schema.WorkflowDefinition) error {
	return v.Validate(ctx, def).ToError()
}

func (v *Validator) graph(ctx context.Context, def *schema.WorkflowDefinition, result *schema.ValidationResult) *schema.ValidationResult {
	result.Merge(checkSemantic(def))
	result.Merge(checkRules(ctx, def, v.rules, v.engines))
	return result
}
