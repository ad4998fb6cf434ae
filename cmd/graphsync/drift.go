package main

import (
	"github.com/spf13/cobra"

	"github.com/OmerRastgar/studio-sub002/internal/reconcile"
)

var driftUserID string

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Compare a user's uploaded-evidence count in graph vs system of record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		report, err := reconcile.DetectDrift(ctx, a.source, a.store, driftUserID)
		if err != nil {
			return err
		}

		cmd.Printf("user %s: graph=%d source=%d\n", report.UserID, report.GraphCount, report.SourceCount)
		if report.Divergent {
			cmd.Println("DRIFT DETECTED: run backfill to resync")
		} else {
			cmd.Println("no drift")
		}
		return nil
	},
}

func init() {
	driftCmd.Flags().StringVar(&driftUserID, "user", "", "user id to audit")
	driftCmd.MarkFlagRequired("user")
}
