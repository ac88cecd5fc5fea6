package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDesignerServer(t *testing.T) {
	s := NewDesignerServer(DesignerServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.deps.Hub)
	assert.NotNil(t, s.deps.Sizer)
}

func TestToolRegistration(t *testing.T) {
	s := NewDesignerServer(DesignerServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 10)

	expectedTools := []string{
		"designer.load",
		"designer.graph",
		"designer.connect",
		"designer.move",
		"designer.remove",
		"designer.assign_output",
		"designer.validate",
		"designer.diagram",
		"designer.query",
		"designer.save",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"load", "designer.load", "Open a workflow definition in a designer session"},
		{"connect", "designer.connect", "Connect two nodes"},
		{"validate", "designer.validate", "Validate the session's definition"},
		{"query", "designer.query", "Run a jq expression over the session's wire document"},
	}

	s := NewDesignerServer(DesignerServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
