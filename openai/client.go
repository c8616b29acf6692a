package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fwojciec/llmux"
	"github.com/rs/zerolog"
)

// Interface compliance checks.
var (
	_ llmux.Provider    = (*Client)(nil)
	_ llmux.ModelLister = (*Client)(nil)
)

// Client implements [llmux.Provider] for a Chat Completions backend.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the server root, without the /v1 suffix.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new [Client]. An empty apiKey sends no Authorization
// header, which is what most local servers expect.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream sends a streaming chat completion request and returns a
// [llmux.Stream] of canonical events. A non-2xx response fails with
// [*llmux.HTTPError] before any event is produced.
func (c *Client) Stream(ctx context.Context, req llmux.Request) (llmux.Stream, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return newStream(ctx, resp.Body, c.logger), nil
}

// ListModels returns the models the server advertises on /v1/models.
func (c *Client) ListModels(ctx context.Context) ([]llmux.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseHTTPError(resp)
	}

	var list apiModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("openai: decode model list: %w", err)
	}
	models := make([]llmux.Model, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, llmux.Model{Name: m.ID})
	}
	return models, nil
}

func (c *Client) setAuth(r *http.Request) {
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) buildRequest(req llmux.Request) apiRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	apiReq := apiRequest{
		Model:           model,
		Messages:        convertMessages(req.SystemPrompt, req.Messages),
		Tools:           convertTools(req.Tools),
		Temperature:     req.Temperature,
		ReasoningEffort: reasoningEffort(req.ThinkingBudget),
		Stream:          true,
		StreamOptions:   &apiStreamOptions{IncludeUsage: true},
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		apiReq.MaxTokens = &maxTokens
	}
	return apiReq
}

// reasoningEffort buckets a token budget into the effort levels the API
// accepts. Zero leaves the server default.
func reasoningEffort(budget int) string {
	switch {
	case budget <= 0:
		return ""
	case budget <= 4096:
		return "low"
	case budget <= 16384:
		return "medium"
	default:
		return "high"
	}
}

func convertMessages(system string, msgs []llmux.Message) []apiMessage {
	var out []apiMessage
	if system != "" {
		out = append(out, apiMessage{Role: "system", Content: system})
	}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case llmux.UserMessage:
			out = append(out, apiMessage{Role: "user", Content: convertUserContent(m.Content)})
		case llmux.AssistantMessage:
			am := apiMessage{Role: "assistant"}
			var text strings.Builder
			for _, b := range m.Content {
				switch bl := b.(type) {
				case llmux.TextBlock:
					text.WriteString(bl.Text)
				case llmux.ToolCallBlock:
					am.ToolCalls = append(am.ToolCalls, apiToolCall{
						ID:       bl.ID,
						Type:     "function",
						Function: apiFunctionCall{Name: bl.Name, Arguments: string(bl.Arguments)},
					})
				}
			}
			if text.Len() > 0 {
				am.Content = text.String()
			}
			out = append(out, am)
		case llmux.ToolResultMessage:
			out = append(out, apiMessage{
				Role:       "tool",
				ToolCallID: m.ToolCallID,
				Content:    joinText(m.Content),
			})
		}
	}
	return out
}

// convertUserContent returns a plain string for text-only content and a
// parts array when images are present.
func convertUserContent(blocks []llmux.ContentBlock) any {
	hasImage := false
	for _, b := range blocks {
		if _, ok := b.(llmux.ImageBlock); ok {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return joinText(blocks)
	}
	parts := make([]apiContentPart, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case llmux.TextBlock:
			parts = append(parts, apiContentPart{Type: "text", Text: bl.Text})
		case llmux.ImageBlock:
			url := "data:" + bl.MimeType + ";base64," + base64.StdEncoding.EncodeToString(bl.Data)
			parts = append(parts, apiContentPart{Type: "image_url", ImageURL: &apiImageURL{URL: url}})
		}
	}
	return parts
}

func joinText(blocks []llmux.ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if tb, ok := block.(llmux.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}

func convertTools(tools []llmux.Tool) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]apiTool, len(tools))
	for i, t := range tools {
		out[i] = apiTool{
			Type: "function",
			Function: apiFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func parseHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	httpErr := &llmux.HTTPError{
		Provider:   "openai",
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	var apiErr apiErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		httpErr.Type = apiErr.Error.Type
		httpErr.Message = apiErr.Error.Message
	}
	return httpErr
}
