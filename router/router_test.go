package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/config"
	"github.com/fwojciec/llmux/mock"
	"github.com/fwojciec/llmux/router"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

// capture returns a provider that records the request it receives and
// replies with events.
func capture(got *llmux.Request, events ...llmux.Event) *mock.Provider {
	return &mock.Provider{
		StreamFn: func(_ context.Context, req llmux.Request) (llmux.Stream, error) {
			*got = req
			return mock.EventStream(events...), nil
		},
	}
}

var readTool = llmux.Tool{
	Name:        "read",
	Description: "Read a file.",
	Parameters:  json.RawMessage(`{"type":"object"}`),
}

func TestClient_Stream_PlainRequest(t *testing.T) {
	t.Parallel()
	var got llmux.Request
	c := router.New(&config.Config{}, map[string]llmux.Provider{
		"claude": capture(&got, llmux.EventFinish{Reason: llmux.FinishStop}),
	})

	s, err := c.Stream(context.Background(), llmux.Request{
		Model:        "claude/claude-sonnet-4-5",
		SystemPrompt: "be brief",
		Tools:        []llmux.Tool{readTool},
	})
	require.NoError(t, err)
	msg, err := llmux.Drain(context.Background(), s, nil)
	require.NoError(t, err)

	assert.Equal(t, llmux.Request{
		Model:        "claude-sonnet-4-5",
		SystemPrompt: "be brief",
		Tools:        []llmux.Tool{readTool},
	}, got)
	assert.Equal(t, llmux.FinishStop, msg.FinishReason)
}

func TestClient_Stream_ModelWithSlashes(t *testing.T) {
	t.Parallel()
	var got llmux.Request
	c := router.New(&config.Config{}, map[string]llmux.Provider{
		"or": capture(&got, llmux.EventFinish{Reason: llmux.FinishStop}),
	})

	_, err := c.Stream(context.Background(), llmux.Request{Model: "or/meta-llama/llama-3-70b"})
	require.NoError(t, err)
	assert.Equal(t, "meta-llama/llama-3-70b", got.Model)
}

func TestClient_Stream_BadModelReference(t *testing.T) {
	t.Parallel()
	c := router.New(&config.Config{}, map[string]llmux.Provider{"a": &mock.Provider{}})

	for _, ref := range []string{"", "nomodel", "/m", "a/"} {
		_, err := c.Stream(context.Background(), llmux.Request{Model: ref})
		assert.ErrorIs(t, err, llmux.ErrUnknownModel, "ref %q", ref)
	}

	_, err := c.Stream(context.Background(), llmux.Request{Model: "b/m"})
	assert.ErrorIs(t, err, llmux.ErrUnknownEndpoint)
}

func TestClient_Stream_AppliesOverride(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Overrides: []config.OverrideRule{
		{Pattern: "local/**", ModelOverride: llmux.ModelOverride{
			ThinkingLevel: strPtr("medium"),
			Temperature:   floatPtr(0.3),
		}},
	}}

	t.Run("fills unset fields", func(t *testing.T) {
		t.Parallel()
		var got llmux.Request
		c := router.New(cfg, map[string]llmux.Provider{"local": capture(&got, llmux.EventFinish{})})
		_, err := c.Stream(context.Background(), llmux.Request{Model: "local/qwen3"})
		require.NoError(t, err)

		assert.Equal(t, 16384, got.ThinkingBudget)
		require.NotNil(t, got.Temperature)
		assert.InDelta(t, 0.3, *got.Temperature, 1e-9)
	})

	t.Run("request values win", func(t *testing.T) {
		t.Parallel()
		var got llmux.Request
		c := router.New(cfg, map[string]llmux.Provider{"local": capture(&got, llmux.EventFinish{})})
		_, err := c.Stream(context.Background(), llmux.Request{
			Model:          "local/qwen3",
			ThinkingBudget: 1000,
			Temperature:    floatPtr(1.0),
		})
		require.NoError(t, err)

		assert.Equal(t, 1000, got.ThinkingBudget)
		assert.InDelta(t, 1.0, *got.Temperature, 1e-9)
	})
}

func TestClient_Stream_PromptBasedTools(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Overrides: []config.OverrideRule{
		{Pattern: "local/**", ModelOverride: llmux.ModelOverride{
			UsePromptBasedToolCalling: boolPtr(true),
			ParseThinkingTags:         boolPtr(true),
		}},
	}}
	var got llmux.Request
	c := router.New(cfg, map[string]llmux.Provider{"local": capture(&got,
		llmux.EventTextStart{ID: "t"},
		llmux.EventTextDelta{ID: "t", Delta: "<think>need the file</think>"},
		llmux.EventTextDelta{ID: "t", Delta: "<read><path>main.go</path></read>"},
		llmux.EventTextEnd{ID: "t"},
		llmux.EventFinish{Reason: llmux.FinishStop},
	)})

	s, err := c.Stream(context.Background(), llmux.Request{
		Model:        "local/qwen3",
		SystemPrompt: "You are helpful.",
		Tools:        []llmux.Tool{readTool},
		Messages: []llmux.Message{
			llmux.AssistantMessage{Content: []llmux.ContentBlock{
				llmux.ToolCallBlock{ID: "c0", Name: "read", Arguments: json.RawMessage(`{"path":"go.mod"}`)},
			}},
			llmux.ToolResultMessage{ToolCallID: "c0", ToolName: "read", Content: []llmux.ContentBlock{llmux.TextBlock{Text: "module x"}}},
		},
	})
	require.NoError(t, err)
	msg, err := llmux.Drain(context.Background(), s, nil)
	require.NoError(t, err)

	assert.Nil(t, got.Tools)
	assert.Contains(t, got.SystemPrompt, "You are helpful.\n\n# Tools")
	assert.Contains(t, got.SystemPrompt, "## read\nRead a file.")
	require.Len(t, got.Messages, 2)
	assert.IsType(t, llmux.UserMessage{}, got.Messages[1])

	require.Len(t, msg.Content, 2)
	assert.Equal(t, llmux.ThinkingBlock{Thinking: "need the file"}, msg.Content[0])
	call, ok := msg.Content[1].(llmux.ToolCallBlock)
	require.True(t, ok)
	assert.Equal(t, "read", call.Name)
	assert.JSONEq(t, `{"path":"main.go"}`, string(call.Arguments))
	assert.Equal(t, llmux.FinishToolCalls, msg.FinishReason)
}

func TestClient_Stream_InvalidRequest(t *testing.T) {
	t.Parallel()
	called := false
	c := router.New(&config.Config{}, map[string]llmux.Provider{"a": &mock.Provider{
		StreamFn: func(context.Context, llmux.Request) (llmux.Stream, error) {
			called = true
			return nil, nil
		},
	}})

	_, err := c.Stream(context.Background(), llmux.Request{Model: "a/m", MaxTokens: -1})
	require.ErrorIs(t, err, llmux.ErrValidation)
	assert.False(t, called)
}

func TestClient_Stream_ProviderError(t *testing.T) {
	t.Parallel()
	httpErr := &llmux.HTTPError{Provider: "openai", StatusCode: 401, Body: "nope"}
	c := router.New(&config.Config{}, map[string]llmux.Provider{"a": &mock.Provider{
		StreamFn: func(context.Context, llmux.Request) (llmux.Stream, error) {
			return nil, httpErr
		},
	}})

	_, err := c.Stream(context.Background(), llmux.Request{Model: "a/m"})
	var target *llmux.HTTPError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, 401, target.StatusCode)
}

func TestNewEndpoints(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Endpoints: []config.Endpoint{
		{Name: "a", Kind: config.KindAnthropic},
		{Name: "g", Kind: config.KindGemini, BaseURL: "http://localhost:1"},
		{Name: "o", Kind: config.KindOpenAI},
	}}

	eps, err := router.NewEndpoints(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, eps, 3)
	assert.Len(t, router.Providers(eps), 3)
	assert.Len(t, router.Listers(eps), 3)

	_, err = router.NewEndpoint(config.Endpoint{Name: "x", Kind: "bedrock"}, zerolog.Nop())
	require.ErrorIs(t, err, llmux.ErrValidation)
}
