// Package gemini implements [llmux.Provider] for the Google Gemini API.
//
// Requests go to the REST streamGenerateContent endpoint with alt=sse. The
// google.golang.org/genai types describe both the request contents and the
// response chunks, so the same decoder also accepts the SDK's iter.Seq2
// stream (see [NewStreamFromIter]).
//
// Gemini does not delimit blocks: each chunk carries zero or more parts and
// function calls arrive whole. The decoder synthesizes span boundaries and
// defers tool-call emission to the end of the stream.
package gemini

import "google.golang.org/genai"

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	defaultModel     = "gemini-2.5-pro"
	defaultMaxTokens = 65536
	apiVersion       = "v1beta"
)

// apiRequest is the JSON body sent to streamGenerateContent.
type apiRequest struct {
	Contents          []*genai.Content    `json:"contents"`
	SystemInstruction *genai.Content      `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool       `json:"tools,omitempty"`
	GenerationConfig  apiGenerationConfig `json:"generationConfig"`
}

type apiGenerationConfig struct {
	MaxOutputTokens int32                 `json:"maxOutputTokens,omitempty"`
	Temperature     *float32              `json:"temperature,omitempty"`
	ThinkingConfig  *genai.ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// apiErrorResponse is the JSON body returned on non-2xx HTTP responses.
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Model listing types.

type apiModelList struct {
	Models        []apiModel `json:"models"`
	NextPageToken string     `json:"nextPageToken"`
}

type apiModel struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	InputTokenLimit            int      `json:"inputTokenLimit"`
	OutputTokenLimit           int      `json:"outputTokenLimit"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	Thinking                   bool     `json:"thinking"`
}
