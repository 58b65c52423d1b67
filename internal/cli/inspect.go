package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sequencer_backend/internal/state"
)

func init() {
	rootCmd.AddCommand(instancesCmd)
	rootCmd.AddCommand(stepsCmd)
}

var instancesCmd = &cobra.Command{
	Use:   "instances <recipient-key>",
	Short: "List sequence instances for a recipient",
	Long:  "List every sequence instance of a recipient, newest first, archived included.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		store := state.NewRepository(rt.pool)
		instances, err := store.ListByRecipient(ctx, args[0])
		if err != nil {
			return fmt.Errorf("list instances: %w", err)
		}

		if len(instances) == 0 {
			fmt.Fprintln(os.Stdout, "No instances found.")
			return nil
		}

		rows := make([][]string, 0, len(instances))
		for _, inst := range instances {
			rows = append(rows, []string{
				inst.ID.String(),
				string(inst.SequenceType),
				inst.Segment,
				inst.Mode,
				string(inst.Status),
				formatTimestamp(inst.AnchorAt),
				formatTimestamp(inst.CreatedAt),
			})
		}
		return writeTable(os.Stdout, []string{"ID", "TYPE", "SEGMENT", "MODE", "STATUS", "ANCHOR", "CREATED"}, rows)
	},
}

var stepsCmd = &cobra.Command{
	Use:   "steps <instance-id>",
	Short: "Show the step ledger of an instance",
	Long:  "Print the instance summary and its per-step delivery state in position order.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		instanceID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid instance id: %w", err)
		}

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		store := state.NewRepository(rt.pool)
		inst, err := store.Get(ctx, instanceID)
		if err != nil {
			return fmt.Errorf("load instance: %w", err)
		}
		steps, err := store.Steps(ctx, instanceID)
		if err != nil {
			return fmt.Errorf("load steps: %w", err)
		}

		fmt.Fprintf(os.Stdout, "%s %s for %s (segment %s, %s mode, status %s)\n",
			inst.SequenceType, inst.ID, inst.RecipientKey, inst.Segment, inst.Mode, inst.Status)
		fmt.Fprintf(os.Stdout, "anchor %s\n", formatTimestamp(inst.AnchorAt))

		rows := make([][]string, 0, len(steps))
		for _, step := range steps {
			lastError := "-"
			if step.LastError != nil {
				lastError = *step.LastError
			}
			sentBy := step.SentBy
			if sentBy == "" {
				sentBy = "-"
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", step.Position),
				step.TemplateRef,
				string(step.Status),
				formatTimestamp(step.FireAt),
				fmt.Sprintf("%d", step.Attempts),
				formatTimestampRef(step.SentAt),
				sentBy,
				lastError,
			})
		}
		return writeTable(os.Stdout, []string{"POS", "TEMPLATE", "STATUS", "FIRE AT", "ATTEMPTS", "SENT AT", "SENT BY", "ERROR"}, rows)
	},
}
