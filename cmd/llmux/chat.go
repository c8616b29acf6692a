package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fwojciec/llmux"
	llmuxjson "github.com/fwojciec/llmux/json"
	"github.com/fwojciec/llmux/router"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type chatFlags struct {
	model       string
	system      string
	toolsPath   string
	maxTokens   int
	temperature float64
	reasoning   bool
	events      bool
}

func newChatCmd(env envConfig, logger zerolog.Logger) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Stream one turn; the prompt is read from stdin when no argument is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			req := llmux.Request{
				Model:        f.model,
				SystemPrompt: f.system,
				MaxTokens:    f.maxTokens,
				Messages: []llmux.Message{
					llmux.UserMessage{Content: []llmux.ContentBlock{llmux.TextBlock{Text: prompt}}},
				},
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &f.temperature
			}
			if f.toolsPath != "" {
				if req.Tools, err = loadTools(f.toolsPath); err != nil {
					return err
				}
			}

			cfg, err := loadConfig(env)
			if err != nil {
				return err
			}
			logConfig(logger, cfg)
			eps, err := router.NewEndpoints(cfg, logger)
			if err != nil {
				return err
			}
			client := router.New(cfg, router.Providers(eps), router.WithLogger(logger))

			s, err := client.Stream(cmd.Context(), req)
			if err != nil {
				return err
			}
			var msg llmux.AssistantMessage
			if f.events {
				msg, err = writeEvents(cmd.Context(), s, cmd.OutOrStdout())
			} else {
				msg, err = render(cmd.Context(), s, cmd.OutOrStdout(), reasoningWriter(f.reasoning, cmd.ErrOrStderr()))
			}
			if err != nil {
				return err
			}
			logUsage(logger, msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model reference, endpoint/model")
	cmd.Flags().StringVarP(&f.system, "system", "s", "", "System prompt")
	cmd.Flags().StringVar(&f.toolsPath, "tools", "", "Path to a JSON array of tool declarations")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "Maximum output tokens (provider default when 0)")
	cmd.Flags().Float64Var(&f.temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().BoolVar(&f.reasoning, "reasoning", false, "Print reasoning to stderr")
	cmd.Flags().BoolVar(&f.events, "events", false, "Write the canonical event stream as JSON lines")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}

type toolJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func loadTools(path string) ([]llmux.Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools: %w", err)
	}
	var decl []toolJSON
	if err := json.Unmarshal(data, &decl); err != nil {
		return nil, fmt.Errorf("parse tools %s: %w", path, err)
	}
	tools := make([]llmux.Tool, 0, len(decl))
	for _, d := range decl {
		tools = append(tools, llmux.Tool{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return tools, nil
}

func reasoningWriter(enabled bool, w io.Writer) io.Writer {
	if !enabled {
		return io.Discard
	}
	return w
}

// render drains s. Text goes to out as it arrives, reasoning to
// reasoningOut, and each tool call is written to out as one JSON line.
func render(ctx context.Context, s llmux.Stream, out, reasoningOut io.Writer) (llmux.AssistantMessage, error) {
	var (
		midLine bool
		enc     = json.NewEncoder(out)
	)
	msg, err := llmux.Drain(ctx, s, func(evt llmux.Event) {
		switch e := evt.(type) {
		case llmux.EventTextDelta:
			fmt.Fprint(out, e.Delta)
			midLine = !strings.HasSuffix(e.Delta, "\n")
		case llmux.EventReasoningDelta:
			fmt.Fprint(reasoningOut, e.Delta)
		case llmux.EventReasoningEnd:
			fmt.Fprintln(reasoningOut)
		case llmux.EventToolCall:
			if midLine {
				fmt.Fprintln(out)
				midLine = false
			}
			_ = enc.Encode(struct {
				ID    string          `json:"id"`
				Name  string          `json:"name"`
				Input json.RawMessage `json:"input"`
			}{e.ID, e.ToolName, e.Input})
		case llmux.EventFinish:
			if midLine {
				fmt.Fprintln(out)
				midLine = false
			}
		}
	})
	if err != nil {
		if midLine {
			fmt.Fprintln(out)
		}
		return msg, err
	}
	return msg, nil
}

// writeEvents drains s, writing every event to out as a JSON line.
func writeEvents(ctx context.Context, s llmux.Stream, out io.Writer) (llmux.AssistantMessage, error) {
	enc := llmuxjson.NewEncoder(out)
	var encErr error
	msg, err := llmux.Drain(ctx, s, func(evt llmux.Event) {
		if encErr == nil {
			encErr = enc.Encode(evt)
		}
	})
	if err != nil {
		return msg, err
	}
	return msg, encErr
}

func logUsage(logger zerolog.Logger, msg llmux.AssistantMessage) {
	evt := logger.Debug().Str("finish_reason", string(msg.FinishReason))
	if u := msg.Usage; u.InputTokens != nil {
		evt = evt.Int("input_tokens", *u.InputTokens)
	}
	if u := msg.Usage; u.OutputTokens != nil {
		evt = evt.Int("output_tokens", *u.OutputTokens)
	}
	evt.Msg("turn complete")
}
