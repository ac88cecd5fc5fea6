package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowcanvas/pkg/schema"
)

const documentSchemaURL = "https://flowcanvas.dev/schemas/workflow-definition.json"

// documentSchemaJSON describes the wire workflow definition. Unknown
// properties are allowed so documents from newer backends still load.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowcanvas.dev/schemas/workflow-definition.json",
  "type": "object",
  "required": ["workflow_type", "nodes", "connections"],
  "properties": {
    "id": { "type": "string" },
    "workflow_type": { "type": "string", "minLength": 1 },
    "workflow_name": { "type": "string" },
    "revision": { "type": "string" },
    "is_active": { "type": "boolean" },
    "created_at": { "type": "string" },
    "updated_at": { "type": "string" },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "connections": {
      "type": "array",
      "items": { "$ref": "#/$defs/connection" }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["node_id", "type"],
      "properties": {
        "id": { "type": "string" },
        "node_id": { "type": "string", "minLength": 1 },
        "label": { "type": "string" },
        "type": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "role": { "type": "string" },
        "message": { "type": "string" },
        "outputs": {
          "type": "array",
          "items": { "type": "string" }
        },
        "position_x": { "type": "number" },
        "position_y": { "type": "number" }
      }
    },
    "connection": {
      "type": "object",
      "required": ["from_node", "to_node"],
      "properties": {
        "id": { "type": "string" },
        "from_node": { "type": "string", "minLength": 1 },
        "to_node": { "type": "string", "minLength": 1 },
        "condition": { "type": ["string", "null"] }
      }
    }
  }
}`

// SchemaValidator checks documents against the wire JSON Schema (draft
// 2020-12). It is safe for concurrent use.
type SchemaValidator struct {
	doc *jsonschema.Schema
}

// NewSchemaValidator compiles the document schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	raw, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource(documentSchemaURL, raw); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}
	compiled, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &SchemaValidator{doc: compiled}, nil
}

// Check validates a typed definition.
func (v *SchemaValidator) Check(def *schema.WorkflowDefinition) *schema.ValidationResult {
	raw, err := json.Marshal(def)
	if err != nil {
		r := &schema.ValidationResult{}
		r.AddError("", schema.ErrCodeValidation, "failed to serialize definition: "+err.Error())
		return r
	}
	return v.CheckJSON(raw)
}

// CheckJSON validates a raw document, catching shape problems that would
// be lost once decoded into Go types.
func (v *SchemaValidator) CheckJSON(raw []byte) *schema.ValidationResult {
	r := &schema.ValidationResult{}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		r.AddError("", schema.ErrCodeDecode, "document is not valid JSON: "+err.Error())
		return r
	}
	if err := v.doc.Validate(inst); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			r.AddError("", schema.ErrCodeValidation, err.Error())
			return r
		}
		for _, vio := range collectViolations(verr) {
			r.AddError(vio.path, schema.ErrCodeValidation, vio.message)
		}
	}
	return r
}

type violation struct {
	path    string
	message string
}

// collectViolations flattens a ValidationError tree into its leaves.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		path := ""
		if len(verr.InstanceLocation) > 0 {
			path = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []violation{{path: path, message: verr.Error()}}
	}
	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
