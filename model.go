package llmux

// Model describes one model served by a configured endpoint.
type Model struct {
	// ID is the reference callers pass in Request.Model to the router,
	// "<endpoint>/<model>".
	ID string
	// Endpoint is the configured endpoint name.
	Endpoint string
	// Name is the provider's own model identifier.
	Name        string
	DisplayName string
	// Capabilities come from the first matching capability pattern.
	Capabilities Capabilities
}

// Capabilities is metadata a model is known to support. Zero values mean
// unknown.
type Capabilities struct {
	Reasoning       bool `yaml:"reasoning"`
	ToolCalling     bool `yaml:"toolCalling"`
	Vision          bool `yaml:"vision"`
	ContextWindow   int  `yaml:"contextWindow"`
	MaxOutputTokens int  `yaml:"maxOutputTokens"`
}

// ModelOverride is per-model configuration resolved once per call. Nil
// fields leave the default in place.
type ModelOverride struct {
	// UsePromptBasedToolCalling renders tool declarations into the system
	// prompt and extracts calls from inline markup instead of sending
	// native tool definitions.
	UsePromptBasedToolCalling *bool `yaml:"usePromptBasedToolCalling"`
	// TrimXMLToolParameterWhitespace trims whitespace around inline
	// tool-call parameter values.
	TrimXMLToolParameterWhitespace *bool `yaml:"trimXmlToolParameterWhitespace"`
	// SuppressChainOfThought drops reasoning events from the output.
	SuppressChainOfThought *bool `yaml:"suppressChainOfThought"`
	// ParseThinkingTags splits <think>/<thinking> markup out of text.
	ParseThinkingTags *bool `yaml:"parseThinkingTags"`
	// ThinkingLevel is one of "off", "low", "medium", "high".
	ThinkingLevel *string  `yaml:"thinkingLevel"`
	Temperature   *float64 `yaml:"temperature"`
}

// Merge returns o with every non-nil field of other applied on top.
func (o ModelOverride) Merge(other ModelOverride) ModelOverride {
	if other.UsePromptBasedToolCalling != nil {
		o.UsePromptBasedToolCalling = other.UsePromptBasedToolCalling
	}
	if other.TrimXMLToolParameterWhitespace != nil {
		o.TrimXMLToolParameterWhitespace = other.TrimXMLToolParameterWhitespace
	}
	if other.SuppressChainOfThought != nil {
		o.SuppressChainOfThought = other.SuppressChainOfThought
	}
	if other.ParseThinkingTags != nil {
		o.ParseThinkingTags = other.ParseThinkingTags
	}
	if other.ThinkingLevel != nil {
		o.ThinkingLevel = other.ThinkingLevel
	}
	if other.Temperature != nil {
		o.Temperature = other.Temperature
	}
	return o
}

// Enabled reports whether a tri-state flag is set to true.
func Enabled(b *bool) bool {
	return b != nil && *b
}
