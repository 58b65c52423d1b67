package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sequencer_backend/internal/sequence"
	"sequencer_backend/platform/config"
)

var (
	planMode   string
	planAnchor string
)

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVar(&planMode, "mode", "production", "offset table to use (production or testing)")
	planCmd.Flags().StringVar(&planAnchor, "anchor", "", "anchor time in RFC3339, defaults to now")
}

var planCmd = &cobra.Command{
	Use:   "plan <sequence-type>",
	Short: "Dry-run the delay planner for a sequence type",
	Long:  "Print the steps and fire times a trigger for this sequence type would plan. Reads only the catalog, never the database.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		catalog, err := sequence.LoadCatalog(cfg.GetCatalogPath())
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		def, ok := catalog.Get(sequence.Type(args[0]))
		if !ok {
			return fmt.Errorf("unknown sequence type %q (known: %v)", args[0], catalog.Types())
		}

		mode, err := sequence.ParseMode(planMode)
		if err != nil {
			return err
		}

		anchor := time.Now().UTC()
		if planAnchor != "" {
			anchor, err = time.Parse(time.RFC3339, planAnchor)
			if err != nil {
				return fmt.Errorf("invalid anchor time: %w", err)
			}
		}

		// Mirror the real trigger path: a frontend-owned first step is never
		// planned by the engine.
		skip := map[int]bool{}
		if def.FirstStepExternal {
			skip[1] = true
		}

		plan, err := sequence.Plan(anchor, mode, def, skip)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%s (%s mode, anchor %s)\n", def.Name, mode, formatTimestamp(anchor))
		if def.FirstStepExternal {
			fmt.Fprintln(os.Stdout, "position 1 is sent by the frontend and excluded from the plan")
		}

		rows := make([][]string, 0, len(plan))
		for _, step := range plan {
			rows = append(rows, []string{
				fmt.Sprintf("%d", step.Position),
				step.TemplateRef,
				step.FireAt.Sub(anchor).String(),
				formatTimestamp(step.FireAt),
			})
		}
		return writeTable(os.Stdout, []string{"POS", "TEMPLATE", "OFFSET", "FIRE AT"}, rows)
	},
}
