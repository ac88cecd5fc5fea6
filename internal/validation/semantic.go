package validation

import (
	"fmt"
	"slices"

	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// checkSemantic reports graph problems JSON Schema cannot express.
func checkSemantic(def *schema.WorkflowDefinition) *schema.ValidationResult {
	r := &schema.ValidationResult{}

	ids := make(map[string]int, len(def.Nodes))
	byExternal := make(map[string]int, len(def.Nodes))
	starts := make([]string, 0, 1)
	for i, n := range def.Nodes {
		path := fmt.Sprintf("/nodes/%d", i)
		if n.ID != "" {
			if first, dup := ids[n.ID]; dup {
				r.AddError(path+"/id", schema.ErrCodeDuplicateID,
					fmt.Sprintf("node id %q already used by /nodes/%d", n.ID, first))
			} else {
				ids[n.ID] = i
			}
		}
		if n.NodeID != "" {
			if first, dup := byExternal[n.NodeID]; dup {
				r.AddError(path+"/node_id", schema.ErrCodeDuplicateID,
					fmt.Sprintf("node_id %q already used by /nodes/%d", n.NodeID, first))
			} else {
				byExternal[n.NodeID] = i
			}
		}
		kind := graph.NormalizeKind(n.Type)
		if !kind.Valid() {
			r.AddError(path+"/type", schema.ErrCodeUnknownKind,
				fmt.Sprintf("unknown node type %q", n.Type))
		}
		if kind == graph.KindStart && n.NodeID != "" {
			starts = append(starts, n.NodeID)
		}
	}

	type pair struct{ from, to string }
	pairs := make(map[pair]int, len(def.Connections))
	adj := make(map[string][]string, len(def.Nodes))
	for i, c := range def.Connections {
		path := fmt.Sprintf("/connections/%d", i)
		src, srcOK := byExternal[c.FromNode]
		_, dstOK := byExternal[c.ToNode]
		if !srcOK {
			r.AddError(path+"/from_node", schema.ErrCodeDanglingRef,
				fmt.Sprintf("from_node %q does not match any node_id", c.FromNode))
		}
		if !dstOK {
			r.AddError(path+"/to_node", schema.ErrCodeDanglingRef,
				fmt.Sprintf("to_node %q does not match any node_id", c.ToNode))
		}
		if c.FromNode == c.ToNode {
			r.AddError(path, schema.ErrCodeSelfConnection,
				fmt.Sprintf("node %q connects to itself", c.FromNode))
		}
		p := pair{c.FromNode, c.ToNode}
		if first, dup := pairs[p]; dup {
			r.AddError(path, schema.ErrCodeDuplicateEdge,
				fmt.Sprintf("duplicates /connections/%d (%s -> %s)", first, c.FromNode, c.ToNode))
		} else {
			pairs[p] = i
		}
		if srcOK && c.Condition != nil && !slices.Contains(def.Nodes[src].Outputs, *c.Condition) {
			r.AddWarning(path+"/condition", schema.ErrCodeUnmatchedOutput,
				fmt.Sprintf("condition %q is not an output of %q", *c.Condition, c.FromNode))
		}
		if srcOK && dstOK {
			adj[c.FromNode] = append(adj[c.FromNode], c.ToNode)
		}
	}

	if len(def.Nodes) == 0 {
		return r
	}
	if len(starts) == 0 {
		r.AddWarning("/nodes", schema.ErrCodeMissingStart, "definition has no start node")
		return r
	}

	reached := make(map[string]bool, len(def.Nodes))
	queue := append([]string(nil), starts...)
	for _, s := range starts {
		reached[s] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	for i, n := range def.Nodes {
		if n.NodeID != "" && !reached[n.NodeID] {
			r.AddWarning(fmt.Sprintf("/nodes/%d", i), schema.ErrCodeUnreachable,
				fmt.Sprintf("node %q is not reachable from a start node", n.NodeID))
		}
	}
	return r
}
