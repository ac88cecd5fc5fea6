package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcanvas/internal/designer"
	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/gesture"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// handleLoad opens a definition from the backend, an inline document or a
// stored draft. The session is created on first use.
func (s *DesignerServer) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowType := req.GetString("workflow_type", "")
	draftKey := req.GetString("draft_key", "")
	inline := mcp.ParseStringMap(req, "definition", nil)
	if workflowType == "" && draftKey == "" && inline == nil {
		return mcp.NewToolResultError("one of workflow_type, definition or draft_key is required"), nil
	}

	sessionID := req.GetString("session_id", "")
	sess, ok := s.sessions.Get(sessionID)
	created := !ok || sessionID == ""
	if created {
		sess = s.newSession(sessionID)
	}

	switch {
	case inline != nil:
		def, err := decodeDefinition(inline)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
		}
		sess.LoadDefinition(ctx, def)
	case draftKey != "":
		if _, err := sess.RestoreDraft(ctx, draftKey); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("restore draft failed: %v", err)), nil
		}
	default:
		if _, err := sess.Load(ctx, workflowType, req.GetString("revision", "")); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
		}
	}

	s.sessions.Register(sess, clientSessionID(ctx))
	if created && s.deps.OnOpen != nil {
		s.deps.OnOpen(sess)
	}
	return marshalResult(snapshot(sess))
}

// handleGraph returns the session's current state.
func (s *DesignerServer) handleGraph(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.session(req)
	if errResult != nil {
		return errResult, nil
	}
	return marshalResult(snapshot(sess))
}

// handleConnect adds a connection under the same rules as a drawn one.
func (s *DesignerServer) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("target is required"), nil
	}
	sess, errResult := s.session(req)
	if errResult != nil {
		return errResult, nil
	}

	var srcID, tgtID string
	sess.View(func(m *graph.Model) {
		srcID = resolveNode(m, source)
		tgtID = resolveNode(m, target)
	})
	res := sess.Connect(ctx, srcID, tgtID)
	if res.Outcome != gesture.OutcomeCreated {
		return mcp.NewToolResultError(fmt.Sprintf("connection not created: %s", res.Outcome)), nil
	}
	return marshalResult(res)
}

// handleMove places a node at a logical position.
func (s *DesignerServer) handleMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	node, err := req.RequireString("node")
	if err != nil {
		return mcp.NewToolResultError("node is required"), nil
	}
	x, err := req.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError("x is required"), nil
	}
	y, err := req.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError("y is required"), nil
	}
	sess, errResult := s.session(req)
	if errResult != nil {
		return errResult, nil
	}

	var moved *graph.Node
	sess.Update(ctx, func(m *graph.Model) {
		id := resolveNode(m, node)
		if n, ok := m.Node(id); ok && n.Position != nil {
			m.UpdateNodePosition(id, x, y)
			moved, _ = m.Node(id)
		}
	})
	if moved == nil {
		return mcp.NewToolResultError(fmt.Sprintf("node %q not found or not positioned", node)), nil
	}
	return marshalResult(moved)
}

// handleRemove deletes a node (with its connections) or a connection.
func (s *DesignerServer) handleRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	node := req.GetString("node", "")
	connection := req.GetString("connection", "")
	if node == "" && connection == "" {
		return mcp.NewToolResultError("one of node or connection is required"), nil
	}
	sess, errResult := s.session(req)
	if errResult != nil {
		return errResult, nil
	}

	var removed bool
	sess.Update(ctx, func(m *graph.Model) {
		if node != "" {
			if id := resolveNode(m, node); id != "" {
				m.RemoveNode(id)
				removed = true
			}
			return
		}
		if _, ok := m.Connection(connection); ok {
			m.RemoveConnection(connection)
			removed = true
		}
	})
	if !removed {
		return mcp.NewToolResultError("nothing to remove"), nil
	}
	return marshalResult(map[string]any{"ok": true, "dirty": sess.Dirty()})
}

// handleAssignOutput binds a connection to an output by label.
func (s *DesignerServer) handleAssignOutput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	connection, err := req.RequireString("connection")
	if err != nil {
		return mcp.NewToolResultError("connection is required"), nil
	}
	output := req.GetString("output", "")
	sess, errResult := s.session(req)
	if errResult != nil {
		return errResult, nil
	}

	var (
		updated *graph.Connection
		failure string
	)
	sess.Update(ctx, func(m *graph.Model) {
		conn, ok := m.Connection(connection)
		if !ok {
			failure = fmt.Sprintf("connection %q not found", connection)
			return
		}
		portID := ""
		if output != "" {
			src, ok := m.Node(conn.SourceNodeID)
			if !ok {
				failure = "connection source is unresolved"
				return
			}
			port, ok := src.PortByLabel(output)
			if !ok {
				failure = fmt.Sprintf("node %q has no output %q", src.ExternalID, output)
				return
			}
			portID = port.ID
		}
		m.AssignOutput(connection, portID)
		updated, _ = m.Connection(connection)
	})
	if failure != "" {
		return mcp.NewToolResultError(failure), nil
	}
	return marshalResult(updated)
}

// handleValidate runs every validation stage over the session's document.
func (s *DesignerServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.session(req)
	if errResult != nil {
		return errResult, nil
	}
	return marshalResult(sess.Validate(ctx))
}

// handleDiagram renders the session's graph in the requested format.
func (s *DesignerServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	sess, errResult := s.session(req)
	if errResult != nil {
		return errResult, nil
	}

	var model *diagram.Model
	sess.View(func(m *graph.Model) { model = diagram.FromModel(m, sess.Size) })

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "dot":
		dot, err := diagram.RenderDOT(ctx, model)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("dot render failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(dot)), nil
	case "image":
		png, err := diagram.RenderImage(ctx, model)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		return imageResult(png), nil
	case "canvas":
		png, err := diagram.RenderCanvasPNG(model, diagram.CanvasOptions{})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("canvas render failed: %v", err)), nil
		}
		return imageResult(png), nil
	default:
		return mcp.NewToolResultError("format must be ascii, mermaid, dot, image, or canvas"), nil
	}
}

// handleQuery runs a jq expression over the wire document.
func (s *DesignerServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	sess, errResult := s.session(req)
	if errResult != nil {
		return errResult, nil
	}

	input, err := expressions.ToJSONValue(sess.Document())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode document: %v", err)), nil
	}
	results, err := s.jq.Query(ctx, expression, input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"results": results})
}

// handleSave posts the document, or stores a draft when draft is set.
func (s *DesignerServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := s.session(req)
	if errResult != nil {
		return errResult, nil
	}

	if req.GetBool("draft", false) {
		d, err := sess.SaveDraft(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("draft failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"draft_key": d.Key, "updated_at": d.UpdatedAt})
	}

	saved, err := sess.Save(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"id":       saved.ID,
		"revision": saved.Revision,
		"dirty":    sess.Dirty(),
	})
}

// --- Internal helpers ---

// graphSnapshot is the designer.graph and designer.load result.
type graphSnapshot struct {
	SessionID   string              `json:"session_id"`
	Header      schema.Header       `json:"header"`
	Dirty       bool                `json:"dirty"`
	Nodes       []*graph.Node       `json:"nodes"`
	Connections []*graph.Connection `json:"connections"`
	Selected    string              `json:"selected_node_id,omitempty"`
	Zoom        float64             `json:"zoom"`
}

func snapshot(sess *designer.Session) graphSnapshot {
	snap := graphSnapshot{
		SessionID: sess.ID(),
		Header:    sess.Header(),
		Dirty:     sess.Dirty(),
	}
	sess.View(func(m *graph.Model) {
		snap.Nodes = m.Nodes()
		snap.Connections = m.Connections()
		snap.Selected = m.SelectedNodeID()
		snap.Zoom = m.Zoom()
	})
	return snap
}

// session resolves the request's session_id, or the default session.
func (s *DesignerServer) session(req mcp.CallToolRequest) (*designer.Session, *mcp.CallToolResult) {
	id := req.GetString("session_id", "")
	sess, ok := s.sessions.Get(id)
	if !ok {
		if id == "" {
			return nil, mcp.NewToolResultError("no session loaded; call designer.load first")
		}
		return nil, mcp.NewToolResultError(fmt.Sprintf("session %q not found", id))
	}
	return sess, nil
}

// resolveNode accepts a runtime id or a wire node_id and returns the
// runtime id, or "" when neither matches.
func resolveNode(m *graph.Model, ref string) string {
	if ref == "" {
		return ""
	}
	if n, ok := m.Node(ref); ok {
		return n.ID
	}
	var id string
	m.EachNode(func(n *graph.Node) bool {
		if n.ExternalID == ref {
			id = n.ID
			return false
		}
		return true
	})
	return id
}

func decodeDefinition(raw map[string]any) (*schema.WorkflowDefinition, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func clientSessionID(ctx context.Context) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}

func imageResult(png []byte) *mcp.CallToolResult {
	return mcp.NewToolResultImage("PNG diagram", base64.StdEncoding.EncodeToString(png), "image/png")
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
