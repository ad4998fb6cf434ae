package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/OmerRastgar/studio-sub002/internal/reconcile"
)

var pruneDryRun bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete standards (and orphaned controls) missing from the system of record",
	Long: `Prune compares graph standards against the system of record and removes
the stale ones, cascading to controls left without any valid parent.
This is destructive: review with --dry-run first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		plan, err := reconcile.NewPruner(a.source, a.store, a.logger).Run(ctx, pruneDryRun)
		if err != nil {
			return err
		}

		if plan.Empty() {
			cmd.Println("nothing to prune")
			return nil
		}
		verb := "removed"
		if pruneDryRun {
			verb = "would remove"
		}
		for _, entry := range plan.Standards {
			cmd.Printf("%s standard %s (controls: %s)\n",
				verb, entry.StandardID, formatControls(entry.Controls))
		}
		return nil
	},
}

func formatControls(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "print the deletion plan without executing it")
}
