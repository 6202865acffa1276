package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/osgeo/wikiqa/internal/planner"
	"github.com/osgeo/wikiqa/internal/retrieval"
)

func currentDate() string {
	return time.Now().Format("2006-01-02")
}

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "run the agentic planner against the content store for one query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()
		a, err := newApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		language, _ := cmd.Flags().GetString("language")
		query := strings.Join(args, " ")

		eng := retrieval.New(a.pool)
		p := planner.New(a.llm, eng, planner.DefaultSchema, planner.Config{
			MaxIterations:         cfg.MaxIterations,
			GraphCitationsEnabled: cfg.GraphCitationsEnabled,
		})

		result := p.Ask(ctx, query, currentDate(), language)

		fmt.Fprintln(cmd.OutOrStdout(), result.Answer)
		for _, s := range result.Sources {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s: %s\n", s.Title, s.URL)
		}
		logger.Debug("ask complete", "iterations", result.Iterations, "sources", len(result.Sources))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().String("language", "English", "the language the answer should be written in")
}
