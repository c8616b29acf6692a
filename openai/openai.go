// Package openai implements [llmux.Provider] for OpenAI-compatible Chat
// Completions backends (OpenAI, vLLM, Ollama, llama.cpp, LM Studio and
// similar local servers).
//
// Many local models have no native tool calling or emit reasoning inline;
// the router pairs this provider with the thinktag and xmltool stages for
// those.
package openai

import "encoding/json"

const (
	defaultBaseURL      = "https://api.openai.com"
	chatCompletionsPath = "/v1/chat/completions"
	modelsPath          = "/v1/models"
	doneSentinel        = "[DONE]"
)

// Chat Completions request types.

type apiRequest struct {
	Model           string            `json:"model"`
	Messages        []apiMessage      `json:"messages"`
	Tools           []apiTool         `json:"tools,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	MaxTokens       *int              `json:"max_tokens,omitempty"`
	ReasoningEffort string            `json:"reasoning_effort,omitempty"`
	Stream          bool              `json:"stream"`
	StreamOptions   *apiStreamOptions `json:"stream_options,omitempty"`
}

type apiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    any           `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// apiContentPart is one element of a multi-part user message.
type apiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *apiImageURL `json:"image_url,omitempty"`
}

type apiImageURL struct {
	URL string `json:"url"`
}

type apiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function apiFunctionCall `json:"function"`
}

type apiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type apiTool struct {
	Type     string         `json:"type"`
	Function apiFunctionDef `json:"function"`
}

type apiFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Streaming chunk types.

type apiChunk struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Choices []apiChunkChoice `json:"choices"`
	Usage   *apiUsage        `json:"usage,omitempty"`
	// Some servers report failures inside an otherwise successful stream.
	Error *apiErrorBody `json:"error,omitempty"`
}

type apiChunkChoice struct {
	Index        int           `json:"index"`
	Delta        apiChunkDelta `json:"delta"`
	FinishReason *string       `json:"finish_reason"`
}

type apiChunkDelta struct {
	Role             string             `json:"role,omitempty"`
	Content          *string            `json:"content,omitempty"`
	ReasoningContent *string            `json:"reasoning_content,omitempty"`
	Reasoning        *string            `json:"reasoning,omitempty"`
	ToolCalls        []apiChunkToolCall `json:"tool_calls,omitempty"`
}

type apiChunkToolCall struct {
	Index    int             `json:"index"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function apiFunctionCall `json:"function"`
}

type apiUsage struct {
	PromptTokens        *int `json:"prompt_tokens"`
	CompletionTokens    *int `json:"completion_tokens"`
	PromptTokensDetails *struct {
		CachedTokens *int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
}

// Error and model listing types.

type apiErrorResponse struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type apiModelList struct {
	Data []apiModel `json:"data"`
}

type apiModel struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}
