package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osgeo/wikiqa/internal/config"
	"github.com/osgeo/wikiqa/internal/llmclient"
	"github.com/osgeo/wikiqa/internal/queue"
	"github.com/osgeo/wikiqa/internal/store"
	"github.com/osgeo/wikiqa/internal/telemetry"
)

// app bundles the handles every subcommand needs, built once per process
// from the loaded configuration. Subcommands that don't need the LLM client
// (the three source syncers) simply leave it unused.
type app struct {
	cfg      config.Config
	pool     *pgxpool.Pool
	store    *store.Store
	queue    *queue.Queue
	llm      *llmclient.Client
	shutdown telemetry.Shutdown
}

// newApp connects to Postgres, runs pending migrations, wires the LLM
// fallback chain, and starts telemetry. Every subcommand's RunE calls this
// first and defers close(): storage opens once per invocation rather than
// being held open by a long-lived daemon connection.
func newApp(ctx context.Context, cfg config.Config, needLLM bool) (*app, error) {
	shutdown, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		shutdown(ctx) //nolint:errcheck
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		shutdown(ctx) //nolint:errcheck
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	a := &app{
		cfg:      cfg,
		pool:     pool,
		store:    store.New(pool),
		queue:    queue.New(pool, cfg.ClaimTTL, cfg.BackoffBaseDelay, cfg.BackoffMaxDelay),
		shutdown: shutdown,
	}

	if needLLM {
		llm, err := llmclient.New(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModelChain, cfg.LLMTimeout)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("build llm client: %w", err)
		}
		a.llm = llm
	}

	return a, nil
}

func (a *app) close(ctx context.Context) {
	a.pool.Close()
	if a.shutdown != nil {
		_ = a.shutdown(ctx)
	}
}
