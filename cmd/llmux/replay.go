package main

import (
	"io"
	"os"
	"strings"

	llmuxjson "github.com/fwojciec/llmux/json"
	"github.com/fwojciec/llmux/pipeline"
	"github.com/spf13/cobra"
)

type replayFlags struct {
	thinkingTags bool
	tools        string
	trim         bool
	suppress     bool
	reasoning    bool
	events       bool
}

// newReplayCmd runs a recorded event log (as written by chat --events)
// through the post-processing stages, so their output can be inspected
// without calling a provider.
func newReplayCmd() *cobra.Command {
	var f replayFlags
	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Run a recorded JSON-lines event log through the stream stages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				r = file
			}

			s := pipeline.Compose(llmuxjson.NewStream(r), pipeline.Options{
				ParseThinkingTags:  f.thinkingTags,
				ToolNames:          splitList(f.tools),
				TrimToolParameters: f.trim,
				SuppressReasoning:  f.suppress,
			})
			var err error
			if f.events {
				_, err = writeEvents(cmd.Context(), s, cmd.OutOrStdout())
			} else {
				_, err = render(cmd.Context(), s, cmd.OutOrStdout(), reasoningWriter(f.reasoning, cmd.ErrOrStderr()))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&f.thinkingTags, "thinking-tags", false, "Split <think>/<thinking> markup into reasoning")
	cmd.Flags().StringVar(&f.tools, "tools", "", "Comma-separated tool names to extract from inline markup")
	cmd.Flags().BoolVar(&f.trim, "trim", false, "Trim whitespace around inline tool parameters")
	cmd.Flags().BoolVar(&f.suppress, "suppress-reasoning", false, "Drop reasoning events")
	cmd.Flags().BoolVar(&f.reasoning, "reasoning", false, "Print reasoning to stderr")
	cmd.Flags().BoolVar(&f.events, "events", false, "Write the resulting event stream as JSON lines")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
