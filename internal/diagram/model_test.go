package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// approvalWorkflow is start -> review -(Approve)-> done, review -(Reject)-> notify.
func approvalWorkflow() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		WorkflowType: "leave_request",
		WorkflowName: "Leave Request",
		Nodes: []schema.Node{
			{ID: "1", NodeID: "start", Label: "Start", Type: "start", PositionX: 0, PositionY: 0},
			{ID: "2", NodeID: "review", Label: "Manager review", Type: "Approval", Role: "manager",
				Outputs: []string{"Approve", "Reject"}, PositionX: 240, PositionY: 0},
			{ID: "3", NodeID: "done", Label: "Done", Type: "end", PositionX: 520, PositionY: 0},
			{ID: "4", NodeID: "notify", Label: "Tell employee", Type: "notification", PositionX: 520, PositionY: 160},
			{ID: "5", NodeID: "orphan", Label: "Orphan", Type: "task", PositionX: 0, PositionY: 300},
		},
		Connections: []schema.Connection{
			{ID: "c1", FromNode: "start", ToNode: "review"},
			{ID: "c2", FromNode: "review", ToNode: "done", Condition: schema.StringPtr("Approve")},
			{ID: "c3", FromNode: "review", ToNode: "notify", Condition: schema.StringPtr("Reject")},
			{ID: "c4", FromNode: "review", ToNode: "missing"},
		},
	}
}

func TestFromDefinition(t *testing.T) {
	m := FromDefinition(approvalWorkflow())

	assert.Equal(t, "Leave Request", m.Title)
	require.Len(t, m.Nodes, 5)
	require.Len(t, m.Edges, 3, "edges to unknown nodes are dropped")

	review := m.node("review")
	require.NotNil(t, review)
	assert.Equal(t, graph.KindApproval, review.Kind)
	assert.Equal(t, []string{"Approve", "Reject"}, review.Outputs)
	assert.Equal(t, geometry.Point{X: 240, Y: 0}, review.Position)
	assert.Equal(t, float64(headerHeight+2*outputHeight), review.Size.Height)

	assert.Equal(t, "Approve", m.Edges[1].Label)
	assert.Equal(t, [][]string{{"start"}, {"review"}, {"done", "notify"}, {"orphan"}}, m.Levels)
}

func TestFromDefinition_TitleFallsBackToType(t *testing.T) {
	def := approvalWorkflow()
	def.WorkflowName = ""
	assert.Equal(t, "leave_request", FromDefinition(def).Title)
}

func TestFromModel(t *testing.T) {
	gm := graph.NewModel()
	gm.SetNodes([]*graph.Node{
		{ID: "a", ExternalID: "start", Kind: graph.KindStart, Position: &geometry.Point{X: 10, Y: 20}},
		{ID: "b", ExternalID: "check", Label: "Check", Kind: graph.KindDecision,
			Outputs: []graph.OutputPort{{ID: "p1", Label: "yes"}}, Position: &geometry.Point{X: 200, Y: 20}},
	})
	gm.SetConnections([]*graph.Connection{
		{ID: "c1", SourceNodeID: "a", TargetNodeID: "b"},
		{ID: "c2", SourceNodeID: "b", TargetNodeID: "", TargetExternalID: "gone"},
	})
	gm.SelectNode("b")

	sizer := func(*graph.Node) geometry.Size { return geometry.Size{Width: 100, Height: 50} }
	m := FromModel(gm, sizer)

	require.Len(t, m.Nodes, 2)
	assert.Equal(t, "start", m.Nodes[0].Label, "label falls back to external id")
	assert.False(t, m.Nodes[0].Selected)
	assert.True(t, m.Nodes[1].Selected)
	assert.Equal(t, []string{"yes"}, m.Nodes[1].Outputs)
	assert.Equal(t, geometry.Size{Width: 100, Height: 50}, m.Nodes[1].Size)
	require.Len(t, m.Edges, 1, "unresolved connections are skipped")
	assert.Equal(t, [][]string{{"a"}, {"b"}}, m.Levels)
}

func TestFromModel_SelectedConnection(t *testing.T) {
	gm := graph.NewModel()
	gm.SetNodes([]*graph.Node{
		{ID: "a", Kind: graph.KindTask, Position: &geometry.Point{}},
		{ID: "b", Kind: graph.KindTask, Position: &geometry.Point{X: 300}},
	})
	conn := &graph.Connection{ID: "c1", SourceNodeID: "a", TargetNodeID: "b", Condition: schema.StringPtr("go")}
	gm.SetConnections([]*graph.Connection{conn})
	gm.SelectConnection(conn)

	m := FromModel(gm, nil)
	require.Len(t, m.Edges, 1)
	assert.True(t, m.Edges[0].Selected)
	assert.Equal(t, "go", m.Edges[0].Label)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, m.Levels, "roots are nodes without incoming edges")
}

func TestLevels_CycleWithoutRoots(t *testing.T) {
	m := &Model{
		Nodes: []*Node{{ID: "a"}, {ID: "b"}},
		Edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	}
	assert.Equal(t, [][]string{{"a", "b"}}, levels(m))
}

func TestDefaultSize(t *testing.T) {
	short := DefaultSize(&graph.Node{Label: "x"})
	assert.Equal(t, geometry.Size{Width: minNodeWidth, Height: headerHeight}, short)

	long := DefaultSize(&graph.Node{Label: "a very long label for a workflow step", Outputs: make([]graph.OutputPort, 3)})
	assert.Greater(t, long.Width, float64(minNodeWidth))
	assert.Equal(t, float64(headerHeight+3*outputHeight), long.Height)
}
