package transcode

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func sampleDefinition() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		ID:           "def-1",
		WorkflowType: "purchase_order",
		WorkflowName: "PO approval",
		Revision:     "v3",
		IsActive:     true,
		CreatedAt:    "2024-01-01T00:00:00Z",
		UpdatedAt:    "2024-01-02T00:00:00Z",
		Nodes: []schema.Node{
			{ID: "1", NodeID: "n1", Label: "Review", Type: "approval", Role: "manager", Outputs: []string{"Approve", "Reject"}, PositionX: 10, PositionY: 20},
			{ID: "2", NodeID: "n2", Label: "Done", Type: "end", PositionX: 300, PositionY: 20},
		},
		Connections: []schema.Connection{
			{ID: "c1", FromNode: "n1", ToNode: "n2", Condition: schema.StringPtr("Approve")},
		},
	}
}

func TestLoad_ResolvesReferencesAndPorts(t *testing.T) {
	m := graph.NewModel()
	Load(sampleDefinition(), m, sequentialIDs())

	n1, ok := m.Node("1")
	require.True(t, ok)
	require.Len(t, n1.Outputs, 2)
	assert.Equal(t, "Approve", n1.Outputs[0].Label)
	assert.Equal(t, "Reject", n1.Outputs[1].Label)

	conn, ok := m.Connection("c1")
	require.True(t, ok)
	assert.Equal(t, n1.Outputs[0].ID, conn.OutputPortID)
	assert.Equal(t, "1", conn.SourceNodeID)
	assert.Equal(t, "2", conn.TargetNodeID)
}

func TestLoad_NormalizesNodes(t *testing.T) {
	m := graph.NewModel()
	Load(sampleDefinition(), m, sequentialIDs())

	n1, _ := m.Node("1")
	assert.Equal(t, graph.KindApproval, n1.Kind)
	assert.Equal(t, &geometry.Point{X: 10, Y: 20}, n1.Position)
	assert.Equal(t, "manager", n1.Role)

	n2, _ := m.Node("2")
	assert.Nil(t, n2.Outputs)
}

func TestLoad_LowerCasesKind(t *testing.T) {
	def := &schema.WorkflowDefinition{Nodes: []schema.Node{{ID: "1", NodeID: "n1", Type: "Staff_Submission"}}}
	m := graph.NewModel()
	Load(def, m, sequentialIDs())

	n, _ := m.Node("1")
	assert.Equal(t, graph.KindStaffSubmission, n.Kind)
	assert.Equal(t, "staff_submission", Save(m, def.Header()).Nodes[0].Type)
}

func TestLoad_ResetsViewAndSelection(t *testing.T) {
	m := graph.NewModel()
	m.AddNode(&graph.Node{ID: "old"})
	m.SelectNode("old")
	m.SetZoom(3)
	m.SetPan(5, 5)

	header := Load(sampleDefinition(), m, sequentialIDs())

	assert.Equal(t, 2, m.NodeCount())
	assert.Empty(t, m.SelectedNodeID())
	assert.Equal(t, 1.0, m.Zoom())
	assert.Equal(t, geometry.Point{}, m.Pan())
	assert.Equal(t, "v3", header.Revision)
	assert.Equal(t, "purchase_order", header.WorkflowType)
}

func TestLoad_UnresolvedReferencesKeepWireIDs(t *testing.T) {
	def := sampleDefinition()
	def.Connections = append(def.Connections, schema.Connection{ID: "c2", FromNode: "n1", ToNode: "missing", Condition: schema.StringPtr("Escalate")})
	m := graph.NewModel()
	Load(def, m, sequentialIDs())

	conn, ok := m.Connection("c2")
	require.True(t, ok)
	assert.Equal(t, "1", conn.SourceNodeID)
	assert.Empty(t, conn.TargetNodeID)
	assert.Equal(t, "missing", conn.TargetExternalID)
	assert.Empty(t, conn.OutputPortID)

	out := Save(m, def.Header())
	require.Len(t, out.Connections, 2)
	assert.Equal(t, "missing", out.Connections[1].ToNode)
	assert.Equal(t, "Escalate", *out.Connections[1].Condition)
}

func TestLoad_DuplicateOrMissingNodeIDsGetFreshIDs(t *testing.T) {
	def := &schema.WorkflowDefinition{Nodes: []schema.Node{
		{ID: "x", NodeID: "a"},
		{ID: "x", NodeID: "b"},
		{NodeID: "c"},
	}}
	m := graph.NewModel()
	Load(def, m, sequentialIDs())

	nodes := m.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "x", nodes[0].ID)
	assert.Equal(t, "gen-1", nodes[1].ID)
	assert.Equal(t, "gen-2", nodes[2].ID)
}

func TestRoundTrip(t *testing.T) {
	def := sampleDefinition()
	def.Connections = append(def.Connections, schema.Connection{ID: "c2", FromNode: "n2", ToNode: "n1", Condition: nil})
	m := graph.NewModel()
	header := Load(def, m, nil)

	out := Save(m, header)
	assert.Equal(t, def, out)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"condition":null`)
}

func TestRoundTrip_EmptyOutputsStayDistinctFromMissing(t *testing.T) {
	raw := `{"id":"d1","workflow_type":"po","workflow_name":"PO","revision":"v1","is_active":true,
		"created_at":"","updated_at":"",
		"nodes":[
			{"id":"1","node_id":"n1","label":"Start","type":"start","outputs":[],"position_x":0,"position_y":0},
			{"id":"2","node_id":"n2","label":"End","type":"end","position_x":200,"position_y":0}
		],
		"connections":[{"id":"c1","from_node":"n1","to_node":"n2","condition":null}]}`
	var def schema.WorkflowDefinition
	require.NoError(t, json.Unmarshal([]byte(raw), &def))

	m := graph.NewModel()
	header := Load(&def, m, sequentialIDs())
	out, err := json.Marshal(Save(m, header))
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestSave_UsesCurrentStateAfterEdits(t *testing.T) {
	m := graph.NewModel()
	header := Load(sampleDefinition(), m, sequentialIDs())

	n1, _ := m.Node("1")
	m.UpdateNode(graph.NodePatch{ID: "1", ExternalID: schema.StringPtr("review")})
	m.AssignOutput("c1", n1.Outputs[1].ID)
	m.UpdateNodePosition("2", 400, 80)

	out := Save(m, header)
	assert.Equal(t, "review", out.Nodes[0].NodeID)
	assert.Equal(t, "review", out.Connections[0].FromNode)
	assert.Equal(t, "Reject", *out.Connections[0].Condition)
	assert.Equal(t, 400.0, out.Nodes[1].PositionX)
	assert.Equal(t, 80.0, out.Nodes[1].PositionY)
}

func TestSave_InteractiveConnectionHasNullCondition(t *testing.T) {
	m := graph.NewModel()
	header := Load(sampleDefinition(), m, sequentialIDs())
	m.AddConnection(&graph.Connection{ID: "new", SourceNodeID: "2", TargetNodeID: "1", SourceExternalID: "n2", TargetExternalID: "n1"})

	out := Save(m, header)
	require.Len(t, out.Connections, 2)
	assert.Equal(t, schema.Connection{ID: "new", FromNode: "n2", ToNode: "n1"}, out.Connections[1])
}

func TestSave_EmptyModel(t *testing.T) {
	out := Save(graph.NewModel(), schema.Header{WorkflowType: "wo"})
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"nodes":[]`)
	assert.Contains(t, string(raw), `"connections":[]`)
}
