// Command llmux streams chat turns from any configured LLM endpoint and
// lists the models they serve.
//
// Usage:
//
//	llmux models [--json]
//	llmux chat --model endpoint/model [--system text] [--reasoning] [--events] prompt...
//	llmux replay [--thinking-tags] [--tools a,b] [--events] [file]
//
// Endpoints come from the YAML file named by LLMUX_CONFIG. Without one they
// are detected from ANTHROPIC_API_KEY, GEMINI_API_KEY and OPENAI_API_KEY.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// envConfig is the process environment. It is read once in main and passed
// down as a value.
type envConfig struct {
	ConfigPath      string `env:"LLMUX_CONFIG"`
	LogLevel        string `env:"LLMUX_LOG_LEVEL" envDefault:"warn"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
}

func main() {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "llmux: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd(cfg, os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "llmux: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(cfg envConfig, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "llmux",
		Short:         "Stream from many LLM providers through one event protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	logger := newLogger(cfg.LogLevel, stderr)
	root.AddCommand(
		newModelsCmd(cfg, logger),
		newChatCmd(cfg, logger),
		newReplayCmd(),
	)
	return root
}

// newLogger writes human-readable logs to w. An unknown level falls back to
// warn.
func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().Timestamp().Logger()
}
