// Package pipeline composes the optional post-processing stages that run
// between a provider decoder and the caller.
package pipeline

import (
	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/thinktag"
	"github.com/fwojciec/llmux/xmltool"
)

// Options selects the stages to run. The zero value runs none.
type Options struct {
	// ParseThinkingTags splits <think>/<thinking> markup in text into
	// reasoning events.
	ParseThinkingTags bool
	// ToolNames enables inline tool-call extraction for these tools.
	ToolNames []string
	// TrimToolParameters trims whitespace around inline parameter values.
	TrimToolParameters bool
	// SuppressReasoning drops every reasoning event.
	SuppressReasoning bool
}

// FromOverride derives Options from a resolved model override. Inline tool
// extraction is enabled only for prompt-based tool calling and only when
// tools were declared.
func FromOverride(o llmux.ModelOverride, tools []llmux.Tool) Options {
	opts := Options{
		ParseThinkingTags:  llmux.Enabled(o.ParseThinkingTags),
		TrimToolParameters: llmux.Enabled(o.TrimXMLToolParameterWhitespace),
		SuppressReasoning:  llmux.Enabled(o.SuppressChainOfThought),
	}
	if llmux.Enabled(o.UsePromptBasedToolCalling) && len(tools) > 0 {
		opts.ToolNames = llmux.ToolNames(tools)
	}
	return opts
}

// Compose wraps s with the enabled stages in order: thinking tags, inline
// tool calls, reasoning suppression. With nothing enabled s is returned
// unchanged.
func Compose(s llmux.Stream, opts Options) llmux.Stream {
	if opts.ParseThinkingTags {
		s = thinktag.Wrap(s)
	}
	if len(opts.ToolNames) > 0 {
		s = xmltool.Wrap(s, xmltool.Options{
			ToolNames:      opts.ToolNames,
			TrimWhitespace: opts.TrimToolParameters,
		})
	}
	if opts.SuppressReasoning {
		s = llmux.Transform(s, llmux.StageFunc(dropReasoning))
	}
	return s
}

func dropReasoning(evt llmux.Event, out *llmux.Queue) {
	switch evt.(type) {
	case llmux.EventReasoningStart, llmux.EventReasoningDelta, llmux.EventReasoningEnd:
		return
	}
	out.Push(evt)
}
