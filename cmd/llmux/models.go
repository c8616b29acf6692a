package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/discovery"
	"github.com/fwojciec/llmux/router"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newModelsCmd(env envConfig, logger zerolog.Logger) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models of every configured endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(env)
			if err != nil {
				return err
			}
			logConfig(logger, cfg)
			eps, err := router.NewEndpoints(cfg, logger)
			if err != nil {
				return err
			}
			models, err := discovery.Discover(cmd.Context(), cfg, router.Listers(eps))
			if err != nil {
				return err
			}
			if asJSON {
				return writeModelsJSON(cmd.OutOrStdout(), models)
			}
			return writeModelsTable(cmd.OutOrStdout(), models)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type modelJSON struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName,omitempty"`
	Reasoning       bool   `json:"reasoning"`
	ToolCalling     bool   `json:"toolCalling"`
	Vision          bool   `json:"vision"`
	ContextWindow   int    `json:"contextWindow,omitempty"`
	MaxOutputTokens int    `json:"maxOutputTokens,omitempty"`
}

func writeModelsJSON(w io.Writer, models []llmux.Model) error {
	out := make([]modelJSON, 0, len(models))
	for _, m := range models {
		out = append(out, modelJSON{
			ID:              m.ID,
			DisplayName:     m.DisplayName,
			Reasoning:       m.Capabilities.Reasoning,
			ToolCalling:     m.Capabilities.ToolCalling,
			Vision:          m.Capabilities.Vision,
			ContextWindow:   m.Capabilities.ContextWindow,
			MaxOutputTokens: m.Capabilities.MaxOutputTokens,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeModelsTable(w io.Writer, models []llmux.Model) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tCONTEXT\tOUTPUT\tFEATURES")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID,
			count(m.Capabilities.ContextWindow),
			count(m.Capabilities.MaxOutputTokens),
			features(m.Capabilities))
	}
	return tw.Flush()
}

func count(n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.Itoa(n)
}

func features(c llmux.Capabilities) string {
	var s string
	add := func(ok bool, name string) {
		if !ok {
			return
		}
		if s != "" {
			s += ","
		}
		s += name
	}
	add(c.Reasoning, "reasoning")
	add(c.ToolCalling, "tools")
	add(c.Vision, "vision")
	if s == "" {
		return "-"
	}
	return s
}
