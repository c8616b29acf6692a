package xmltool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/llmux"
)

// InlineHistory rewrites native tool traffic in msgs as text, for backends
// that receive tool declarations through the system prompt. Tool calls
// become the markup the Extractor recognizes, and tool results become user
// messages. Other blocks and messages are returned unchanged.
func InlineHistory(msgs []llmux.Message) []llmux.Message {
	out := make([]llmux.Message, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case llmux.AssistantMessage:
			blocks := make([]llmux.ContentBlock, 0, len(m.Content))
			for _, b := range m.Content {
				if call, ok := b.(llmux.ToolCallBlock); ok {
					b = llmux.TextBlock{Text: FormatCall(call)}
				}
				blocks = append(blocks, b)
			}
			m.Content = blocks
			out = append(out, m)
		case llmux.ToolResultMessage:
			out = append(out, llmux.UserMessage{
				Content:   resultBlocks(m),
				Timestamp: m.Timestamp,
			})
		default:
			out = append(out, msg)
		}
	}
	return out
}

// FormatCall renders a tool call as inline markup. Object arguments become
// one child tag per key, strings written raw and other values as JSON.
func FormatCall(call llmux.ToolCallBlock) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>\n", call.Name)
	if call.ID != "" {
		fmt.Fprintf(&b, "<%s>%s</%s>\n", callIDParam, call.ID, callIDParam)
	}

	var args map[string]json.RawMessage
	if err := json.Unmarshal(call.Arguments, &args); err == nil {
		for _, k := range orderedKeys(call.Arguments) {
			fmt.Fprintf(&b, "<%s>%s</%s>\n", k, formatValue(args[k]), k)
		}
	}
	fmt.Fprintf(&b, "</%s>", call.Name)
	return b.String()
}

func formatValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// orderedKeys returns the keys of a JSON object in document order.
func orderedKeys(raw json.RawMessage) []string {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, _ := tok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
		keys = append(keys, key)
	}
	return keys
}

func resultBlocks(m llmux.ToolResultMessage) []llmux.ContentBlock {
	status := "result"
	if m.IsError {
		status = "error"
	}
	header := fmt.Sprintf("[%s %s", m.ToolName, status)
	if m.ToolCallID != "" {
		header += " for " + m.ToolCallID
	}
	header += "]\n"

	return append([]llmux.ContentBlock{llmux.TextBlock{Text: header}}, m.Content...)
}
