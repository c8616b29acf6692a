package llmux

import "encoding/json"

// Tool is the schema sent to the LLM describing a tool's capabilities.
// Parameters holds a JSON Schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolNames returns the names of tools in declaration order.
func ToolNames(tools []Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}
