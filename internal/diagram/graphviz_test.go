package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPNG(t *testing.T, png []byte) {
	t.Helper()
	require.Greater(t, len(png), 8, "PNG should be larger than header")
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestRenderImage(t *testing.T) {
	png, err := RenderImage(context.Background(), FromDefinition(approvalWorkflow()))
	require.NoError(t, err)
	assertPNG(t, png)
}

func TestRenderImage_SelectedAndUnknownKind(t *testing.T) {
	m := FromDefinition(approvalWorkflow())
	m.node("review").Selected = true
	m.node("orphan").Kind = "mystery"
	m.Edges[0].Selected = true

	png, err := RenderImage(context.Background(), m)
	require.NoError(t, err)
	assertPNG(t, png)
}

func TestRenderDOT(t *testing.T) {
	dot, err := RenderDOT(context.Background(), FromDefinition(approvalWorkflow()))
	require.NoError(t, err)

	out := string(dot)
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "review")
	assert.Contains(t, out, "Approve")
}
