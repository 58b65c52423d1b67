package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sequencer_backend/internal/events"
	"sequencer_backend/internal/journal"
	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
	"sequencer_backend/internal/trigger"
)

func init() {
	rootCmd.AddCommand(archiveCmd)
}

var archiveCmd = &cobra.Command{
	Use:   "archive <recipient-key> <sequence-type>",
	Short: "Archive the active instance of a recipient",
	Long:  "Archive the non-archived instance for this recipient and sequence type. Pending steps stop firing; a later trigger starts a fresh instance.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		catalog, err := sequence.LoadCatalog(rt.cfg.GetCatalogPath())
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		bus := events.NewInMemoryBus(rt.log)
		journalStore := journal.NewRepository(rt.pool)
		journal.New(journalStore, rt.log).RegisterHandlers(bus)

		// Archiving never dispatches, so the service runs without an
		// orchestrator here.
		svc := trigger.NewService(nil, state.NewRepository(rt.pool), journalStore, catalog, syncBus{bus}, rt.log)

		archived, err := svc.Archive(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		if archived == 0 {
			fmt.Fprintln(os.Stdout, "Nothing to archive.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "Archived %d instance(s) for %s/%s\n", archived, args[0], args[1])
		return nil
	},
}
