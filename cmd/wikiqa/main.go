// Command wikiqa is the process entry point for every sync and worker
// operation. Each source syncer and each derivation worker is a cobra
// subcommand rather than a long-running daemon: a one-binary-many-
// subcommands shape that drops the persistent-daemon machinery a service
// like this doesn't need.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/osgeo/wikiqa/internal/config"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wikiqa",
	Short: "wikiqa - ingestion and retrieval service for the OSGeo wiki",
	Long: `Syncs OSGeo wiki, WordPress, and Planet content into a Postgres content
store, drains derivation tasks (chunking, extensions, entities) off a
transactional queue, and answers questions over the result.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (env vars still take precedence)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log per-item progress to stderr")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// fatalf reports a startup or configuration error and exits non-zero.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// loadConfig loads and validates configuration the same way for every
// subcommand: configuration errors are fatal at startup, never deferred
// to a later retry.
func loadConfig() config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fatalf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("%v", err)
	}
	return cfg
}
