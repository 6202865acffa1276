package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "return tasks stuck past their claim TTL to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()
		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		n, err := a.queue.ReapExpired(ctx)
		if err != nil {
			return fmt.Errorf("reap: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reap: requeued=%d\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reapCmd)
}
