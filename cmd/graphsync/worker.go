package main

import (
	"github.com/spf13/cobra"

	"github.com/OmerRastgar/studio-sub002/internal/sync"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the graph sync worker until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		health := a.store.Health(ctx)
		a.logger.Info("graph store health", "state", health.State, "message", health.Message)

		registry, err := sync.NewCatalogueRegistry(a.logger, a.cfg.Worker.ReplaceAssignments)
		if err != nil {
			return err
		}

		worker, err := sync.NewWorker(a.store, a.queue, registry, a.logger,
			a.cfg.Worker, a.cfg.Queue.PollInterval)
		if err != nil {
			return err
		}
		return worker.Run(ctx)
	},
}
