package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/designer"
	"github.com/rendis/flowcanvas/internal/gesture"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// --- Mocks ---

type mockBackend struct {
	revisions []schema.WorkflowDefinition
	saveErr   error
	saved     []*schema.WorkflowDefinition
}

func (b *mockBackend) FetchRevisions(_ context.Context, workflowType string) ([]schema.WorkflowDefinition, error) {
	var out []schema.WorkflowDefinition
	for _, d := range b.revisions {
		if d.WorkflowType == workflowType {
			out = append(out, d)
		}
	}
	return out, nil
}

func (b *mockBackend) Save(_ context.Context, def *schema.WorkflowDefinition) (*schema.WorkflowDefinition, error) {
	if b.saveErr != nil {
		return nil, b.saveErr
	}
	b.saved = append(b.saved, def)
	out := *def
	out.ID = "def-saved"
	out.Revision = "v9"
	return &out, nil
}

type mockDrafts struct {
	mu     sync.Mutex
	drafts map[string]*store.Draft
}

func newMockDrafts() *mockDrafts { return &mockDrafts{drafts: map[string]*store.Draft{}} }

func (m *mockDrafts) PutDraft(_ context.Context, d *store.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.Key] = d
	return nil
}

func (m *mockDrafts) GetDraft(_ context.Context, key string) (*store.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[key]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeNotFound, "draft not found")
	}
	return d, nil
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func sampleDefinition(revision string, active bool) schema.WorkflowDefinition {
	return schema.WorkflowDefinition{
		ID:           "def-" + revision,
		WorkflowType: "expense",
		WorkflowName: "Expense claim",
		Revision:     revision,
		IsActive:     active,
		Nodes: []schema.Node{
			{ID: "1", NodeID: "start", Label: "Start", Type: "start", PositionX: 0, PositionY: 0},
			{ID: "2", NodeID: "review", Label: "Review", Type: "approval", Outputs: []string{"Approve", "Reject"}, PositionX: 250, PositionY: 0},
			{ID: "3", NodeID: "done", Label: "Done", Type: "end", PositionX: 500, PositionY: 0},
		},
		Connections: []schema.Connection{
			{ID: "c1", FromNode: "start", ToNode: "review"},
		},
	}
}

func definitionArg(t *testing.T) map[string]any {
	t.Helper()
	data, err := json.Marshal(sampleDefinition("v1", true))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func newTestServer(t *testing.T, backend *mockBackend) *DesignerServer {
	t.Helper()
	v, err := validation.NewValidator(nil, nil)
	require.NoError(t, err)
	deps := DesignerServerDeps{
		Drafts:    newMockDrafts(),
		Validator: v,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if backend != nil {
		deps.Backend = backend
	}
	return NewDesignerServer(deps)
}

// loadInline opens the sample definition and returns the session id.
func loadInline(t *testing.T, s *DesignerServer) string {
	t.Helper()
	result, err := s.handleLoad(context.Background(), buildRequest("designer.load", map[string]any{
		"definition": definitionArg(t),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var snap graphSnapshot
	unmarshalResult(t, result, &snap)
	return snap.SessionID
}

func graphOf(t *testing.T, s *DesignerServer) graphSnapshot {
	t.Helper()
	result, err := s.handleGraph(context.Background(), buildRequest("designer.graph", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var snap graphSnapshot
	unmarshalResult(t, result, &snap)
	return snap
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

// --- Tests ---

func TestLoadInlineDefinition(t *testing.T) {
	s := newTestServer(t, nil)
	id := loadInline(t, s)
	require.NotEmpty(t, id)

	snap := graphOf(t, s)
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, "expense", snap.Header.WorkflowType)
	assert.Len(t, snap.Nodes, 3)
	assert.Len(t, snap.Connections, 1)
	assert.False(t, snap.Dirty)
}

func TestLoadFromBackendPicksActive(t *testing.T) {
	backend := &mockBackend{revisions: []schema.WorkflowDefinition{
		sampleDefinition("v1", false),
		sampleDefinition("v2", true),
		sampleDefinition("v3", false),
	}}
	s := newTestServer(t, backend)

	result, err := s.handleLoad(context.Background(), buildRequest("designer.load", map[string]any{
		"workflow_type": "expense",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var snap graphSnapshot
	unmarshalResult(t, result, &snap)
	assert.Equal(t, "v2", snap.Header.Revision)

	result, err = s.handleLoad(context.Background(), buildRequest("designer.load", map[string]any{
		"workflow_type": "expense",
		"revision":      "v3",
		"session_id":    snap.SessionID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var again graphSnapshot
	unmarshalResult(t, result, &again)
	assert.Equal(t, snap.SessionID, again.SessionID, "existing session is reused")
	assert.Equal(t, "v3", again.Header.Revision)
}

func TestLoadErrors(t *testing.T) {
	s := newTestServer(t, &mockBackend{})

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"no source", map[string]any{}, "required"},
		{"unknown type", map[string]any{"workflow_type": "nothing"}, "load failed"},
		{"missing draft", map[string]any{"draft_key": "nope"}, "restore draft failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleLoad(context.Background(), buildRequest("designer.load", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), tt.want)
		})
	}
}

func TestToolsRequireSession(t *testing.T) {
	s := newTestServer(t, nil)
	result, err := s.handleGraph(context.Background(), buildRequest("designer.graph", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "designer.load")

	result, err = s.handleValidate(context.Background(), buildRequest("designer.validate", map[string]any{"session_id": "ghost"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "ghost")
}

func TestConnectTool(t *testing.T) {
	s := newTestServer(t, nil)
	loadInline(t, s)

	result, err := s.handleConnect(context.Background(), buildRequest("designer.connect", map[string]any{
		"source": "review",
		"target": "done",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var res gesture.Resolution
	unmarshalResult(t, result, &res)
	assert.Equal(t, gesture.OutcomeCreated, res.Outcome)
	assert.NotEmpty(t, res.ConnectionID)

	snap := graphOf(t, s)
	assert.Len(t, snap.Connections, 2)
	assert.True(t, snap.Dirty)
}

func TestConnectToolRejections(t *testing.T) {
	s := newTestServer(t, nil)
	loadInline(t, s)

	tests := []struct {
		name           string
		source, target string
		outcome        gesture.Outcome
	}{
		{"duplicate", "start", "review", gesture.OutcomeDuplicate},
		{"self", "review", "review", gesture.OutcomeSelf},
		{"unknown", "review", "nowhere", gesture.OutcomeNoTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleConnect(context.Background(), buildRequest("designer.connect", map[string]any{
				"source": tt.source,
				"target": tt.target,
			}))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), string(tt.outcome))
		})
	}
	assert.Len(t, graphOf(t, s).Connections, 1)
}

func TestConnectToolMissingParams(t *testing.T) {
	s := newTestServer(t, nil)
	loadInline(t, s)
	result, err := s.handleConnect(context.Background(), buildRequest("designer.connect", map[string]any{"source": "start"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMoveTool(t *testing.T) {
	s := newTestServer(t, nil)
	loadInline(t, s)

	result, err := s.handleMove(context.Background(), buildRequest("designer.move", map[string]any{
		"node": "done",
		"x":    640.0,
		"y":    120.0,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var node graph.Node
	unmarshalResult(t, result, &node)
	require.NotNil(t, node.Position)
	assert.Equal(t, 640.0, node.Position.X)
	assert.Equal(t, 120.0, node.Position.Y)

	result, err = s.handleMove(context.Background(), buildRequest("designer.move", map[string]any{
		"node": "ghost", "x": 1.0, "y": 1.0,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRemoveTool(t *testing.T) {
	s := newTestServer(t, nil)
	loadInline(t, s)
	conn := graphOf(t, s).Connections[0]

	result, err := s.handleRemove(context.Background(), buildRequest("designer.remove", map[string]any{
		"connection": conn.ID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Empty(t, graphOf(t, s).Connections)

	result, err = s.handleRemove(context.Background(), buildRequest("designer.remove", map[string]any{
		"node": "review",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Len(t, graphOf(t, s).Nodes, 2)

	result, err = s.handleRemove(context.Background(), buildRequest("designer.remove", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleRemove(context.Background(), buildRequest("designer.remove", map[string]any{"connection": "gone"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestAssignOutputTool(t *testing.T) {
	s := newTestServer(t, nil)
	loadInline(t, s)

	result, err := s.handleConnect(context.Background(), buildRequest("designer.connect", map[string]any{
		"source": "review", "target": "done",
	}))
	require.NoError(t, err)
	var res gesture.Resolution
	unmarshalResult(t, result, &res)

	result, err = s.handleAssignOutput(context.Background(), buildRequest("designer.assign_output", map[string]any{
		"connection": res.ConnectionID,
		"output":     "Approve",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var conn graph.Connection
	unmarshalResult(t, result, &conn)
	require.NotNil(t, conn.Condition)
	assert.Equal(t, "Approve", *conn.Condition)
	assert.NotEmpty(t, conn.OutputPortID)

	result, err = s.handleAssignOutput(context.Background(), buildRequest("designer.assign_output", map[string]any{
		"connection": res.ConnectionID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var cleared graph.Connection
	unmarshalResult(t, result, &cleared)
	assert.Nil(t, cleared.Condition)

	result, err = s.handleAssignOutput(context.Background(), buildRequest("designer.assign_output", map[string]any{
		"connection": res.ConnectionID,
		"output":     "Escalate",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "Escalate")
}

func TestValidateTool(t *testing.T) {
	s := newTestServer(t, nil)
	loadInline(t, s)

	result, err := s.handleValidate(context.Background(), buildRequest("designer.validate", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var vr schema.ValidationResult
	unmarshalResult(t, result, &vr)
	assert.True(t, vr.Valid(), "%+v", vr.Errors)
}

func TestDiagramTool(t *testing.T) {
	s := newTestServer(t, nil)
	loadInline(t, s)

	result, err := s.handleDiagram(context.Background(), buildRequest("designer.diagram", map[string]any{"format": "mermaid"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.True(t, strings.HasPrefix(extractText(t, result), "graph LR"))

	result, err = s.handleDiagram(context.Background(), buildRequest("designer.diagram", map[string]any{"format": "ascii"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "Review")

	result, err = s.handleDiagram(context.Background(), buildRequest("designer.diagram", map[string]any{"format": "canvas"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var found bool
	for _, c := range result.Content {
		if img, ok := c.(mcp.ImageContent); ok {
			found = true
			assert.Equal(t, "image/png", img.MIMEType)
			assert.NotEmpty(t, img.Data)
		}
	}
	assert.True(t, found, "canvas result carries an image")

	result, err = s.handleDiagram(context.Background(), buildRequest("designer.diagram", map[string]any{"format": "svg"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQueryTool(t *testing.T) {
	s := newTestServer(t, nil)
	loadInline(t, s)

	result, err := s.handleQuery(context.Background(), buildRequest("designer.query", map[string]any{
		"expression": `[.nodes[] | select(.type == "approval") | .node_id]`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var out struct {
		Results []any `json:"results"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Results, 1)
	assert.Equal(t, []any{"review"}, out.Results[0])

	result, err = s.handleQuery(context.Background(), buildRequest("designer.query", map[string]any{"expression": ".nodes[ | bad"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSaveTool(t *testing.T) {
	backend := &mockBackend{}
	s := newTestServer(t, backend)
	loadInline(t, s)
	_, err := s.handleMove(context.Background(), buildRequest("designer.move", map[string]any{"node": "done", "x": 1.0, "y": 2.0}))
	require.NoError(t, err)

	result, err := s.handleSave(context.Background(), buildRequest("designer.save", nil))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, "v9", out["revision"])
	assert.Equal(t, false, out["dirty"])
	require.Len(t, backend.saved, 1)
	assert.Equal(t, "expense", backend.saved[0].WorkflowType)
}

func TestSaveToolFailureKeepsDraft(t *testing.T) {
	backend := &mockBackend{saveErr: errors.New("backend down")}
	s := newTestServer(t, backend)
	id := loadInline(t, s)

	result, err := s.handleSave(context.Background(), buildRequest("designer.save", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "backend down")

	// The failed save left a draft under the session key.
	other := newTestServer(t, nil)
	other.deps.Drafts = s.deps.Drafts
	result, err = other.handleLoad(context.Background(), buildRequest("designer.load", map[string]any{"draft_key": id}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var snap graphSnapshot
	unmarshalResult(t, result, &snap)
	assert.Len(t, snap.Nodes, 3)
	assert.True(t, snap.Dirty)
}

func TestSaveToolDraft(t *testing.T) {
	s := newTestServer(t, nil)
	id := loadInline(t, s)

	result, err := s.handleSave(context.Background(), buildRequest("designer.save", map[string]any{"draft": true}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, id, out["draft_key"])
}

func TestResolveNode(t *testing.T) {
	m := graph.NewModel()
	m.AddNode(&graph.Node{ID: "rt-1", ExternalID: "start", Kind: graph.KindStart})

	assert.Equal(t, "rt-1", resolveNode(m, "rt-1"))
	assert.Equal(t, "rt-1", resolveNode(m, "start"))
	assert.Equal(t, "", resolveNode(m, "missing"))
	assert.Equal(t, "", resolveNode(m, ""))
}

func TestLoad_OnOpenCalledOncePerSession(t *testing.T) {
	v, err := validation.NewValidator(nil, nil)
	require.NoError(t, err)
	var opened []string
	s := NewDesignerServer(DesignerServerDeps{
		Validator: v,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnOpen:    func(sess *designer.Session) { opened = append(opened, sess.ID()) },
	})

	id := loadInline(t, s)
	require.Equal(t, []string{id}, opened)

	result, err := s.handleLoad(context.Background(), buildRequest("designer.load", map[string]any{
		"definition": definitionArg(t),
		"session_id": id,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	assert.Equal(t, []string{id}, opened, "reloading an open session does not reopen it")

	// No backend: the load fails and the new session is never announced.
	result, err = s.handleLoad(context.Background(), buildRequest("designer.load", map[string]any{
		"workflow_type": "expense",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, []string{id}, opened)
}
