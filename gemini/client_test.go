package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertMessages_UserMessage(t *testing.T) {
	t.Parallel()
	msgs := []llmux.Message{
		llmux.UserMessage{Content: []llmux.ContentBlock{llmux.TextBlock{Text: "Hello"}}},
	}
	got := gemini.ConvertMessages(msgs)
	require.Len(t, got, 1)
	assert.Equal(t, "user", got[0].Role)
	require.Len(t, got[0].Parts, 1)
	assert.Equal(t, "Hello", got[0].Parts[0].Text)
}

func TestConvertMessages_AssistantMessage(t *testing.T) {
	t.Parallel()
	msgs := []llmux.Message{
		llmux.AssistantMessage{Content: []llmux.ContentBlock{
			llmux.TextBlock{Text: "Let me help."},
		}},
	}
	got := gemini.ConvertMessages(msgs)
	require.Len(t, got, 1)
	assert.Equal(t, "model", got[0].Role)
	require.Len(t, got[0].Parts, 1)
	assert.Equal(t, "Let me help.", got[0].Parts[0].Text)
}

func TestConvertMessages_ThinkingWithSignature(t *testing.T) {
	t.Parallel()
	sig := []byte("thought-sig-data")
	msgs := []llmux.Message{
		llmux.AssistantMessage{Content: []llmux.ContentBlock{
			llmux.ThinkingBlock{Thinking: "reasoning", Signature: sig},
			llmux.TextBlock{Text: "Answer"},
		}},
	}
	got := gemini.ConvertMessages(msgs)
	require.Len(t, got, 1)
	require.Len(t, got[0].Parts, 2)
	assert.Equal(t, "reasoning", got[0].Parts[0].Text)
	assert.True(t, got[0].Parts[0].Thought)
	assert.Equal(t, []byte("thought-sig-data"), got[0].Parts[0].ThoughtSignature)
	assert.Equal(t, "Answer", got[0].Parts[1].Text)
}

func TestConvertMessages_ToolCallAndResult(t *testing.T) {
	t.Parallel()
	msgs := []llmux.Message{
		llmux.AssistantMessage{Content: []llmux.ContentBlock{
			llmux.ToolCallBlock{ID: "call_123", Name: "read", Arguments: json.RawMessage(`{"path":"foo.go"}`)},
		}},
		llmux.ToolResultMessage{
			ToolCallID: "call_123",
			ToolName:   "read",
			Content:    []llmux.ContentBlock{llmux.TextBlock{Text: "file contents"}},
		},
	}
	got := gemini.ConvertMessages(msgs)
	require.Len(t, got, 2)

	// Assistant with tool call: ID passed through.
	assert.Equal(t, "model", got[0].Role)
	require.Len(t, got[0].Parts, 1)
	require.NotNil(t, got[0].Parts[0].FunctionCall)
	assert.Equal(t, "call_123", got[0].Parts[0].FunctionCall.ID)
	assert.Equal(t, "read", got[0].Parts[0].FunctionCall.Name)
	assert.Equal(t, "foo.go", got[0].Parts[0].FunctionCall.Args["path"])

	// Tool result: ID correlates, output in "output" key.
	assert.Equal(t, "user", got[1].Role)
	require.Len(t, got[1].Parts, 1)
	require.NotNil(t, got[1].Parts[0].FunctionResponse)
	assert.Equal(t, "call_123", got[1].Parts[0].FunctionResponse.ID)
	assert.Equal(t, "read", got[1].Parts[0].FunctionResponse.Name)
	assert.Equal(t, "file contents", got[1].Parts[0].FunctionResponse.Response["output"])
}

func TestConvertMessages_ToolResultError(t *testing.T) {
	t.Parallel()
	msgs := []llmux.Message{
		llmux.AssistantMessage{Content: []llmux.ContentBlock{
			llmux.ToolCallBlock{ID: "call_err", Name: "bash", Arguments: json.RawMessage(`{"cmd":"ls"}`)},
		}},
		llmux.ToolResultMessage{
			ToolCallID: "call_err",
			ToolName:   "bash",
			Content:    []llmux.ContentBlock{llmux.TextBlock{Text: "permission denied"}},
			IsError:    true,
		},
	}
	got := gemini.ConvertMessages(msgs)
	require.Len(t, got, 2)

	// Error result uses "error" key.
	resp := got[1].Parts[0].FunctionResponse
	assert.Equal(t, "call_err", resp.ID)
	assert.Equal(t, "permission denied", resp.Response["error"])
	assert.Nil(t, resp.Response["output"])
}

func TestConvertMessages_ImageBlock(t *testing.T) {
	t.Parallel()
	msgs := []llmux.Message{
		llmux.UserMessage{Content: []llmux.ContentBlock{
			llmux.ImageBlock{Data: []byte("PNG"), MimeType: "image/png"},
		}},
	}
	got := gemini.ConvertMessages(msgs)
	require.Len(t, got, 1)
	require.Len(t, got[0].Parts, 1)
	require.NotNil(t, got[0].Parts[0].InlineData)
	assert.Equal(t, "image/png", got[0].Parts[0].InlineData.MIMEType)
	assert.Equal(t, []byte("PNG"), got[0].Parts[0].InlineData.Data)
}

func TestConvertTools(t *testing.T) {
	t.Parallel()
	tools := []llmux.Tool{
		{Name: "read", Description: "Read a file", Parameters: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)},
		{Name: "bash", Description: "Run a command", Parameters: json.RawMessage(`{"type":"object","properties":{"cmd":{"type":"string"}}}`)},
	}
	got := gemini.ConvertTools(tools)
	require.Len(t, got, 1) // single genai.Tool with multiple declarations
	require.Len(t, got[0].FunctionDeclarations, 2)
	assert.Equal(t, "read", got[0].FunctionDeclarations[0].Name)
	assert.Equal(t, "Read a file", got[0].FunctionDeclarations[0].Description)
	assert.Equal(t, "bash", got[0].FunctionDeclarations[1].Name)
}

func TestConvertTools_Empty(t *testing.T) {
	t.Parallel()
	got := gemini.ConvertTools(nil)
	assert.Nil(t, got)
}

func TestConvertMessages_ThinkingNoSignature(t *testing.T) {
	t.Parallel()
	msgs := []llmux.Message{
		llmux.AssistantMessage{Content: []llmux.ContentBlock{
			llmux.ThinkingBlock{Thinking: "just thinking"},
			llmux.TextBlock{Text: "Answer"},
		}},
	}
	got := gemini.ConvertMessages(msgs)
	require.Len(t, got, 1)
	require.Len(t, got[0].Parts, 2)
	assert.True(t, got[0].Parts[0].Thought)
	assert.Nil(t, got[0].Parts[0].ThoughtSignature)
}

const sseBody = "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"Hi\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"promptTokenCount\":3,\"candidatesTokenCount\":1}}\r\n\r\n"

func TestClient_Stream(t *testing.T) {
	t.Parallel()
	var (
		gotPath  string
		gotQuery string
		gotKey   string
		gotBody  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-Goog-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseBody)
	}))
	defer srv.Close()

	temp := 0.5
	client := gemini.New("test-key", gemini.WithBaseURL(srv.URL), gemini.WithModel("gemini-test"))
	stream, err := client.Stream(context.Background(), llmux.Request{
		SystemPrompt:   "be brief",
		Temperature:    &temp,
		ThinkingBudget: 1024,
		Messages: []llmux.Message{
			llmux.UserMessage{Content: []llmux.ContentBlock{llmux.TextBlock{Text: "Hello"}}},
		},
		Tools: []llmux.Tool{{Name: "read", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	require.NoError(t, err)
	msg, err := llmux.Drain(context.Background(), stream, nil)
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/gemini-test:streamGenerateContent", gotPath)
	assert.Equal(t, "alt=sse", gotQuery)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, []llmux.ContentBlock{llmux.TextBlock{Text: "Hi"}}, msg.Content)
	assert.Equal(t, 4, *msg.Usage.TotalTokens)

	sys := gotBody["systemInstruction"].(map[string]any)
	assert.Equal(t, "be brief", sys["parts"].([]any)[0].(map[string]any)["text"])
	cfg := gotBody["generationConfig"].(map[string]any)
	assert.InDelta(t, 0.5, cfg["temperature"], 1e-6)
	thinking := cfg["thinkingConfig"].(map[string]any)
	assert.Equal(t, true, thinking["includeThoughts"])
	assert.InDelta(t, 1024, thinking["thinkingBudget"], 0)
	tools := gotBody["tools"].([]any)
	require.Len(t, tools, 1)
}

func TestClient_StreamHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	client := gemini.New("bad-key", gemini.WithBaseURL(srv.URL))
	_, err := client.Stream(context.Background(), llmux.Request{})
	require.Error(t, err)

	var httpErr *llmux.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "gemini", httpErr.Provider)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", httpErr.Type)
	assert.Equal(t, "API key not valid", httpErr.Message)
	assert.Contains(t, httpErr.Body, "API key not valid")
}

func TestClient_ListModels(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = io.WriteString(w, `{"models":[
				{"name":"models/gemini-2.5-pro","displayName":"Gemini 2.5 Pro","inputTokenLimit":1048576,"outputTokenLimit":65536,"supportedGenerationMethods":["generateContent","countTokens"],"thinking":true},
				{"name":"models/text-embedding-004","supportedGenerationMethods":["embedContent"]}
			],"nextPageToken":"p2"}`)
			return
		}
		_, _ = io.WriteString(w, `{"models":[{"name":"models/gemini-2.5-flash","supportedGenerationMethods":["generateContent"]}]}`)
	}))
	defer srv.Close()

	client := gemini.New("test-key", gemini.WithBaseURL(srv.URL))
	models, err := client.ListModels(context.Background())
	require.NoError(t, err)

	require.Len(t, models, 2)
	assert.Equal(t, llmux.Model{
		Name:        "gemini-2.5-pro",
		DisplayName: "Gemini 2.5 Pro",
		Capabilities: llmux.Capabilities{
			Reasoning:       true,
			ContextWindow:   1048576,
			MaxOutputTokens: 65536,
		},
	}, models[0])
	assert.Equal(t, "gemini-2.5-flash", models[1].Name)
	assert.False(t, strings.HasPrefix(models[1].Name, "models/"))
}

func TestClient_ListModelsHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "denied")
	}))
	defer srv.Close()

	_, err := gemini.New("k", gemini.WithBaseURL(srv.URL)).ListModels(context.Background())
	var httpErr *llmux.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Equal(t, "gemini: HTTP 403: denied", err.Error())
}
