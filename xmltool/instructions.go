package xmltool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/llmux"
)

// Instructions renders the system prompt section that teaches a model
// without native tool calling to write calls in the markup the Extractor
// recognizes. It returns "" when tools is empty.
func Instructions(tools []llmux.Tool) string {
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Tools\n\n")
	b.WriteString("You have access to the tools listed below. To call a tool, write the tool name as an XML tag and put each parameter in its own child tag:\n\n")
	b.WriteString("<tool_name>\n<parameter_name>value</parameter_name>\n</tool_name>\n\n")
	b.WriteString("Write structured parameter values (objects, arrays, numbers, booleans) as JSON. Plain strings need no quoting. ")
	b.WriteString("The result of the call is returned in the next message.\n")

	for _, t := range tools {
		fmt.Fprintf(&b, "\n## %s\n", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, "%s\n", strings.TrimSpace(t.Description))
		}
		if len(t.Parameters) > 0 {
			var schema bytes.Buffer
			if err := json.Indent(&schema, t.Parameters, "", "  "); err != nil {
				schema.Reset()
				schema.Write(t.Parameters)
			}
			fmt.Fprintf(&b, "Parameters (JSON Schema):\n%s\n", schema.String())
		}
	}
	return b.String()
}
