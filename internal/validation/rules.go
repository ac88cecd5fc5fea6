package validation

import (
	"context"
	"fmt"

	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Rule is a user lint check evaluated once per node. The expression sees
// node (the wire node as a map), incoming and outgoing (wire connections)
// and document (the header fields) and must return a boolean; false
// records an issue.
type Rule struct {
	Name       string                    `json:"name"`
	Engine     string                    `json:"engine"`
	Expression string                    `json:"expression"`
	Severity   schema.ValidationSeverity `json:"severity,omitempty"`
	Message    string                    `json:"message,omitempty"`
}

func (r Rule) check(engines expressions.Registry) error {
	if r.Name == "" {
		return fmt.Errorf("rule without name")
	}
	if r.Expression == "" {
		return fmt.Errorf("rule %q: empty expression", r.Name)
	}
	switch r.Severity {
	case "", schema.SeverityError, schema.SeverityWarning:
	default:
		return fmt.Errorf("rule %q: unknown severity %q", r.Name, r.Severity)
	}
	if r.Engine != "cel" && r.Engine != "expr" {
		return fmt.Errorf("rule %q: engine must be cel or expr, got %q", r.Name, r.Engine)
	}
	if _, err := engines.Get(r.Engine); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	return nil
}

// ruleScope builds the per-node data maps once per document.
type ruleScope struct {
	header   map[string]any
	nodes    []map[string]any
	incoming map[string][]any
	outgoing map[string][]any
}

func newRuleScope(def *schema.WorkflowDefinition) (*ruleScope, error) {
	header, err := expressions.ToJSONMap(def.Header())
	if err != nil {
		return nil, err
	}
	s := &ruleScope{
		header:   header,
		nodes:    make([]map[string]any, len(def.Nodes)),
		incoming: make(map[string][]any),
		outgoing: make(map[string][]any),
	}
	for i := range def.Nodes {
		if s.nodes[i], err = expressions.ToJSONMap(def.Nodes[i]); err != nil {
			return nil, err
		}
	}
	for _, c := range def.Connections {
		cm, err := expressions.ToJSONMap(c)
		if err != nil {
			return nil, err
		}
		s.outgoing[c.FromNode] = append(s.outgoing[c.FromNode], cm)
		s.incoming[c.ToNode] = append(s.incoming[c.ToNode], cm)
	}
	return s, nil
}

func (s *ruleScope) data(i int, nodeID string) map[string]any {
	in, out := s.incoming[nodeID], s.outgoing[nodeID]
	if in == nil {
		in = []any{}
	}
	if out == nil {
		out = []any{}
	}
	return map[string]any{
		"node":     s.nodes[i],
		"incoming": in,
		"outgoing": out,
		"document": s.header,
	}
}

func checkRules(ctx context.Context, def *schema.WorkflowDefinition, rules []Rule, engines expressions.Registry) *schema.ValidationResult {
	r := &schema.ValidationResult{}
	if len(rules) == 0 || len(def.Nodes) == 0 {
		return r
	}
	scope, err := newRuleScope(def)
	if err != nil {
		r.AddError("", schema.ErrCodeRule, "prepare rule data: "+err.Error())
		return r
	}

	for _, rule := range rules {
		engine, err := engines.Get(rule.Engine)
		if err != nil {
			r.AddError("", schema.ErrCodeRule, err.Error())
			continue
		}
		sev := rule.Severity
		if sev == "" {
			sev = schema.SeverityError
		}
		for i, n := range def.Nodes {
			path := fmt.Sprintf("/nodes/%d", i)
			out, err := engine.Evaluate(ctx, rule.Expression, scope.data(i, n.NodeID))
			if err != nil {
				r.AddError(path, schema.ErrCodeRule, fmt.Sprintf("rule %q: %s", rule.Name, err.Error()))
				// A compile error fails identically for every node.
				if schema.IsCode(err, schema.ErrCodeValidation) {
					break
				}
				continue
			}
			ok, isBool := out.(bool)
			if !isBool {
				r.AddError(path, schema.ErrCodeRule, fmt.Sprintf("rule %q returned %T, want bool", rule.Name, out))
				continue
			}
			if !ok {
				msg := rule.Message
				if msg == "" {
					msg = fmt.Sprintf("rule %q failed", rule.Name)
				}
				r.Add(sev, path, schema.ErrCodeRule, fmt.Sprintf("%s (node %q)", msg, n.NodeID))
			}
		}
	}
	return r
}
