package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sequencer_backend/internal/scheduler"
	"sequencer_backend/internal/state"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Push due steps onto the queue now",
	Long:  "Run a single sweep pass: reclaim stuck steps, claim everything due and enqueue it, without waiting for the scheduler's next tick.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		client, err := scheduler.NewClient(rt.cfg)
		if err != nil {
			return fmt.Errorf("connect to step queue: %w", err)
		}
		defer client.Close()

		scheduler.NewSweeper(client, state.NewRepository(rt.pool), rt.log).SweepOnce(ctx)

		fmt.Fprintln(os.Stdout, "Sweep complete.")
		return nil
	},
}
