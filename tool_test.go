package llmux_test

import (
	"encoding/json"
	"testing"

	"github.com/fwojciec/llmux"
	"github.com/stretchr/testify/assert"
)

func TestTool_Fields(t *testing.T) {
	t.Parallel()
	schema := json.RawMessage(`{"type": "object", "properties": {"path": {"type": "string"}}}`)
	tool := llmux.Tool{
		Name:        "read",
		Description: "Read a file",
		Parameters:  schema,
	}
	assert.Equal(t, "read", tool.Name)
	assert.Equal(t, "Read a file", tool.Description)
	assert.JSONEq(t, `{"type": "object", "properties": {"path": {"type": "string"}}}`, string(tool.Parameters))
}

func TestToolNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"read", "write"}, llmux.ToolNames([]llmux.Tool{{Name: "read"}, {Name: "write"}}))
	assert.Empty(t, llmux.ToolNames(nil))
}
