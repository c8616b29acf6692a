package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/fwojciec/llmux"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Interface compliance checks.
var (
	_ llmux.Provider    = (*Client)(nil)
	_ llmux.ModelLister = (*Client)(nil)
)

// Client implements [llmux.Provider] for the Google Gemini API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream sends a streamGenerateContent request and returns a [llmux.Stream]
// of canonical events. A non-2xx response fails with [*llmux.HTTPError].
func (c *Client) Stream(ctx context.Context, req llmux.Request) (llmux.Stream, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/models/%s:streamGenerateContent?alt=sse",
		c.baseURL, apiVersion, url.PathEscape(strings.TrimPrefix(model, "models/")))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return newSSEStream(ctx, resp.Body, c.logger), nil
}

// ListModels returns the models that support generateContent, following
// page tokens until the listing is exhausted.
func (c *Client) ListModels(ctx context.Context) ([]llmux.Model, error) {
	var (
		models    []llmux.Model
		pageToken string
	)
	for {
		u, err := url.Parse(fmt.Sprintf("%s/%s/models", c.baseURL, apiVersion))
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		q := u.Query()
		q.Set("pageSize", "1000")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u.RawQuery = q.Encode()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)

		page, err := c.fetchModels(httpReq)
		if err != nil {
			return nil, err
		}
		for _, m := range page.Models {
			if !slices.Contains(m.SupportedGenerationMethods, "generateContent") {
				continue
			}
			models = append(models, llmux.Model{
				Name:        strings.TrimPrefix(m.Name, "models/"),
				DisplayName: m.DisplayName,
				Capabilities: llmux.Capabilities{
					Reasoning:       m.Thinking,
					ContextWindow:   m.InputTokenLimit,
					MaxOutputTokens: m.OutputTokenLimit,
				},
			})
		}
		if page.NextPageToken == "" {
			return models, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) fetchModels(req *http.Request) (apiModelList, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiModelList{}, fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiModelList{}, parseHTTPError(resp)
	}
	var page apiModelList
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return apiModelList{}, fmt.Errorf("gemini: decode model list: %w", err)
	}
	return page, nil
}

func buildRequest(req llmux.Request) apiRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	apiReq := apiRequest{
		Contents: ConvertMessages(req.Messages),
		Tools:    ConvertTools(req.Tools),
		GenerationConfig: apiGenerationConfig{
			MaxOutputTokens: int32(maxTokens),
			ThinkingConfig:  &genai.ThinkingConfig{IncludeThoughts: true},
		},
	}
	if req.ThinkingBudget > 0 {
		budget := int32(req.ThinkingBudget)
		apiReq.GenerationConfig.ThinkingConfig.ThinkingBudget = &budget
	}
	if req.SystemPrompt != "" {
		apiReq.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		apiReq.GenerationConfig.Temperature = &temp
	}
	return apiReq
}

// ConvertMessages converts llmux Messages to genai Contents.
// Exported for testing.
func ConvertMessages(msgs []llmux.Message) []*genai.Content {
	var result []*genai.Content
	for _, msg := range msgs {
		switch m := msg.(type) {
		case llmux.UserMessage:
			result = append(result, &genai.Content{
				Role:  "user",
				Parts: convertParts(m.Content),
			})
		case llmux.AssistantMessage:
			result = append(result, &genai.Content{
				Role:  "model",
				Parts: convertParts(m.Content),
			})
		case llmux.ToolResultMessage:
			text := extractText(m.Content)
			var responseMap map[string]any
			if m.IsError {
				responseMap = map[string]any{"error": text}
			} else {
				responseMap = map[string]any{"output": text}
			}
			result = append(result, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       m.ToolCallID,
						Name:     m.ToolName,
						Response: responseMap,
					},
				}},
			})
		}
	}
	return result
}

func convertParts(blocks []llmux.ContentBlock) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch bl := b.(type) {
		case llmux.TextBlock:
			parts = append(parts, &genai.Part{Text: bl.Text})
		case llmux.ThinkingBlock:
			p := &genai.Part{Text: bl.Thinking, Thought: true}
			if bl.Signature != nil {
				p.ThoughtSignature = bl.Signature
			}
			parts = append(parts, p)
		case llmux.ToolCallBlock:
			var args map[string]any
			_ = json.Unmarshal(bl.Arguments, &args)
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   bl.ID,
					Name: bl.Name,
					Args: args,
				},
			})
		case llmux.ImageBlock:
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: bl.MimeType,
					Data:     bl.Data,
				},
			})
		}
	}
	return parts
}

// extractText returns the text of the first TextBlock, or empty string if none.
func extractText(blocks []llmux.ContentBlock) string {
	for _, b := range blocks {
		if tb, ok := b.(llmux.TextBlock); ok {
			return tb.Text
		}
	}
	return ""
}

// ConvertTools converts llmux Tools to genai Tools.
// Exported for testing.
func ConvertTools(tools []llmux.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func parseHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	httpErr := &llmux.HTTPError{
		Provider:   "gemini",
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	var apiErr apiErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		httpErr.Type = apiErr.Error.Status
		httpErr.Message = apiErr.Error.Message
	}
	return httpErr
}
