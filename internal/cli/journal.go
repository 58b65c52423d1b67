package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sequencer_backend/internal/journal"
)

var (
	journalLimit    int
	journalInstance string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().IntVar(&journalLimit, "limit", 50, "maximum number of entries")
	journalCmd.Flags().StringVar(&journalInstance, "instance", "", "filter by instance id instead of recipient")
}

var journalCmd = &cobra.Command{
	Use:   "journal [recipient-key]",
	Short: "Show the event journal",
	Long:  "List the newest journal entries for a recipient, or for one instance with --instance.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if len(args) == 0 && journalInstance == "" {
			return fmt.Errorf("a recipient key or --instance is required")
		}

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		store := journal.NewRepository(rt.pool)

		var records []journal.Record
		if journalInstance != "" {
			instanceID, err := uuid.Parse(journalInstance)
			if err != nil {
				return fmt.Errorf("invalid instance id: %w", err)
			}
			records, err = store.ListByInstance(ctx, instanceID, journalLimit)
			if err != nil {
				return fmt.Errorf("list journal: %w", err)
			}
		} else {
			records, err = store.ListByRecipient(ctx, args[0], journalLimit)
			if err != nil {
				return fmt.Errorf("list journal: %w", err)
			}
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "No journal entries found.")
			return nil
		}

		rows := make([][]string, 0, len(records))
		for _, rec := range records {
			instance := "-"
			if rec.InstanceID != nil {
				instance = rec.InstanceID.String()
			}
			position := "-"
			if rec.Position != nil {
				position = fmt.Sprintf("%d", *rec.Position)
			}
			rows = append(rows, []string{
				formatTimestamp(rec.OccurredAt),
				rec.EventName,
				rec.RecipientKey,
				instance,
				position,
			})
		}
		return writeTable(os.Stdout, []string{"OCCURRED AT", "EVENT", "RECIPIENT", "INSTANCE", "POS"}, rows)
	},
}
