package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osgeo/wikiqa/internal/queue"
	"github.com/osgeo/wikiqa/internal/types"
	"github.com/osgeo/wikiqa/internal/workers"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "drain one task type off the queue",
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerChunkCmd, workerExtensionCmd, workerEntityCmd)

	for _, c := range []*cobra.Command{workerChunkCmd, workerExtensionCmd, workerEntityCmd} {
		c.Flags().Int("limit", 100, "maximum tasks to process this invocation")
	}
}

// drain claims up to limit tasks of taskType and hands each to process,
// reporting success/failure back to the queue via Complete. This is the
// shared claim/process/complete loop every worker command runs: a bounded
// per-invocation work loop rather than a persistent daemon.
func drain(ctx context.Context, q *queue.Queue, taskType types.TaskType, limit int, process func(ctx context.Context, c *queue.Claimed) error) (processed, failed int, err error) {
	for i := 0; i < limit; i++ {
		claimed, err := q.Claim(ctx, taskType)
		if err != nil {
			return processed, failed, fmt.Errorf("claim %s: %w", taskType, err)
		}
		if claimed == nil {
			break
		}

		procErr := process(ctx, claimed)
		lastError := ""
		if procErr != nil {
			lastError = procErr.Error()
			logger.Warn("task failed", "task_type", taskType, "queue_id", claimed.QueueID, "error", procErr)
		}

		if err := q.Complete(ctx, claimed.QueueID, procErr == nil, lastError); err != nil {
			return processed, failed, fmt.Errorf("complete queue_id=%d: %w", claimed.QueueID, err)
		}

		if procErr != nil {
			failed++
		} else {
			processed++
		}
		logger.Debug("task processed", "task_type", taskType, "queue_id", claimed.QueueID, "ok", procErr == nil)
	}
	return processed, failed, nil
}

func printDrainResult(cmd *cobra.Command, label string, processed, failed int) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: processed=%d failed=%d\n", label, processed, failed)
}

var workerChunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "drain the chunking task queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()
		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		limit, _ := cmd.Flags().GetInt("limit")
		w := workers.NewChunkWorker(a.pool, a.store, a.queue, cfg.ChunkSize)

		processed, failed, err := drain(ctx, a.queue, types.TaskChunks, limit, func(ctx context.Context, c *queue.Claimed) error {
			_, err := w.Process(ctx, c.PageID, c.SourcePageID)
			return err
		})
		if err != nil {
			return err
		}
		printDrainResult(cmd, "chunk", processed, failed)
		return nil
	},
}

var workerExtensionCmd = &cobra.Command{
	Use:   "extension",
	Short: "drain the extension (résumé/keywords) task queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()
		a, err := newApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		limit, _ := cmd.Flags().GetInt("limit")
		w := workers.NewExtensionWorker(a.pool, a.store, a.llm)

		processed, failed, err := drain(ctx, a.queue, types.TaskExtensions, limit, func(ctx context.Context, c *queue.Claimed) error {
			_, err := w.Process(ctx, c.PageID)
			return err
		})
		if err != nil {
			return err
		}
		printDrainResult(cmd, "extension", processed, failed)
		return nil
	},
}

var workerEntityCmd = &cobra.Command{
	Use:   "entity",
	Short: "drain the entity/relationship extraction task queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()
		a, err := newApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		limit, _ := cmd.Flags().GetInt("limit")
		w := workers.NewEntityWorker(a.pool, a.store, a.llm)

		processed, failed, err := drain(ctx, a.queue, types.TaskEntities, limit, func(ctx context.Context, c *queue.Claimed) error {
			return w.Process(ctx, c.PageID, c.SourcePageID)
		})
		if err != nil {
			return err
		}
		printDrainResult(cmd, "entity", processed, failed)
		return nil
	},
}
