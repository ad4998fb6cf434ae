package main

import (
	"github.com/spf13/cobra"

	"github.com/OmerRastgar/studio-sub002/internal/reconcile"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-derive the whole graph from the system of record",
	Long: `Backfill merges every framework, tag, control, project, evidence item,
and user from the system of record into the graph in dependency order.
Safe to re-run at any time; it doubles as a self-healing resync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		backfiller := reconcile.NewBackfiller(a.source, a.store, a.logger, a.cfg.Record.PageSize)
		counts, err := backfiller.Run(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("standards: %d\n", counts.Standards)
		cmd.Printf("tags:      %d\n", counts.Tags)
		cmd.Printf("controls:  %d\n", counts.Controls)
		cmd.Printf("projects:  %d\n", counts.Projects)
		cmd.Printf("evidence:  %d\n", counts.Evidence)
		cmd.Printf("users:     %d\n", counts.Users)
		return nil
	},
}
