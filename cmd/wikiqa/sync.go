package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/osgeo/wikiqa/internal/ingest"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "run an incremental or full sync for one source",
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncWikiCmd, syncWordPressCmd, syncPlanetCmd)

	for _, c := range []*cobra.Command{syncWikiCmd, syncWordPressCmd, syncPlanetCmd} {
		c.Flags().Int("days", 0, "sync changes from the last N days")
		c.Flags().String("since", "", "sync changes since this RFC3339 timestamp")
		c.Flags().Bool("full", false, "ignore the date cutoff and sync everything")
		c.Flags().Bool("all", false, "alias for --full")
		c.Flags().Int("max", 0, "cap the number of items examined (0 = no cap)")
		c.Flags().Bool("dry-run", false, "report what would change without writing")
	}
	syncPlanetCmd.Flags().Int("prune-days", 0, "after syncing, delete planet posts not seen in N days (0 = skip)")
}

// syncWindow resolves the --days/--since/--full|--all flags into a single
// cutoff time and a full-sync flag. One window selector wins; --full/--all
// take precedence over an explicit cutoff.
func syncWindow(cmd *cobra.Command, defaultDays int) (since time.Time, full bool) {
	fullFlag, _ := cmd.Flags().GetBool("full")
	allFlag, _ := cmd.Flags().GetBool("all")
	if fullFlag || allFlag {
		return time.Time{}, true
	}

	if sinceStr, _ := cmd.Flags().GetString("since"); sinceStr != "" {
		t, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			fatalf("invalid --since %q: %v", sinceStr, err)
		}
		return t, false
	}

	days, _ := cmd.Flags().GetInt("days")
	if days <= 0 {
		days = defaultDays
	}
	return time.Now().Add(-time.Duration(days) * 24 * time.Hour), false
}

func printResult(cmd *cobra.Command, label string, res ingest.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: fetched=%d created=%d updated=%d skipped=%d tasks_queued=%d errors=%d\n",
		label, res.Fetched, res.Created, res.Updated, res.Skipped, res.TasksQueued, len(res.Errors))
	for _, e := range res.Errors {
		logger.Warn("sync item error", "source", label, "error", e)
	}
}

var syncWikiCmd = &cobra.Command{
	Use:   "wiki",
	Short: "sync changed pages from the MediaWiki recentchanges API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()
		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		since, full := syncWindow(cmd, 1)
		if full {
			since = time.Unix(0, 0)
		}
		max, _ := cmd.Flags().GetInt("max")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		syncer := ingest.NewWikiSyncer(cfg.WikiAPIBaseURL, a.store, a.queue)
		res, err := syncer.Sync(ctx, since, max, dryRun)
		if err != nil {
			return fmt.Errorf("sync wiki: %w", err)
		}
		printResult(cmd, "wiki", res)
		return nil
	},
}

var syncWordPressCmd = &cobra.Command{
	Use:   "wordpress",
	Short: "sync published pages from the WordPress REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()
		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		since, full := syncWindow(cmd, 7)
		max, _ := cmd.Flags().GetInt("max")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		syncer := ingest.NewWordPressSyncer(cfg.WordPressAPIBaseURL, a.store, a.queue)
		res, err := syncer.Sync(ctx, since, full, max, dryRun)
		if err != nil {
			return fmt.Errorf("sync wordpress: %w", err)
		}
		printResult(cmd, "wordpress", res)
		return nil
	},
}

var syncPlanetCmd = &cobra.Command{
	Use:   "planet",
	Short: "sync entries from the Planet RSS aggregator feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()
		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		since, full := syncWindow(cmd, 7)
		maxAge := time.Since(since)
		if full {
			maxAge = 36500 * 24 * time.Hour
		}
		max, _ := cmd.Flags().GetInt("max")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		syncer := ingest.NewPlanetSyncer(cfg.PlanetFeedURL, a.store, a.queue)
		res, err := syncer.Sync(ctx, maxAge, max, dryRun)
		if err != nil {
			return fmt.Errorf("sync planet: %w", err)
		}
		printResult(cmd, "planet", res)

		if pruneDays, _ := cmd.Flags().GetInt("prune-days"); pruneDays > 0 && !dryRun {
			pruned, err := syncer.Prune(ctx, pruneDays)
			if err != nil {
				return fmt.Errorf("prune planet: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "planet prune: removed=%d\n", pruned)
		}
		return nil
	},
}
