package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sequencer_backend/internal/dispatch"
	"sequencer_backend/internal/events"
	"sequencer_backend/internal/journal"
	"sequencer_backend/internal/scheduler"
	"sequencer_backend/internal/segment"
	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
)

var (
	triggerRecipient    string
	triggerEmail        string
	triggerName         string
	triggerOrg          string
	triggerType         string
	triggerMode         string
	triggerAnchor       string
	triggerAnchorStatus string
	triggerRed          int
	triggerOrange       int
	triggerYellow       int
	triggerGreen        int
)

func init() {
	rootCmd.AddCommand(triggerCmd)
	triggerCmd.Flags().StringVar(&triggerRecipient, "recipient", "", "recipient key (required)")
	triggerCmd.Flags().StringVar(&triggerEmail, "email", "", "recipient email address")
	triggerCmd.Flags().StringVar(&triggerName, "name", "", "recipient display name")
	triggerCmd.Flags().StringVar(&triggerOrg, "org", "", "recipient organization name")
	triggerCmd.Flags().StringVar(&triggerType, "type", "", "sequence type (required)")
	triggerCmd.Flags().StringVar(&triggerMode, "mode", "", "operating mode, defaults to the configured mode")
	triggerCmd.Flags().StringVar(&triggerAnchor, "anchor", "", "anchor time in RFC3339, defaults to now")
	triggerCmd.Flags().StringVar(&triggerAnchorStatus, "anchor-status", "", "frontend outcome for position 1 (sent or failed)")
	triggerCmd.Flags().IntVar(&triggerRed, "red", 0, "red finding count")
	triggerCmd.Flags().IntVar(&triggerOrange, "orange", 0, "orange finding count")
	triggerCmd.Flags().IntVar(&triggerYellow, "yellow", 0, "yellow finding count")
	triggerCmd.Flags().IntVar(&triggerGreen, "green", 0, "green finding count")
	_ = triggerCmd.MarkFlagRequired("recipient")
	_ = triggerCmd.MarkFlagRequired("type")
}

// queuelessScheduler keeps trigger usable when REDIS_URL is not set: planned
// steps stay pending until a sweep pushes them onto a live queue.
type queuelessScheduler struct {
	reason error
}

func (s queuelessScheduler) ScheduleStep(context.Context, uuid.UUID, int, time.Time) error {
	return s.reason
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Fire a sequence trigger",
	Long:  "Run the full trigger pipeline against the database: classify, plan, persist and enqueue. Useful for smoke tests and manual replays.",
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

		var anchorAt *time.Time
		if triggerAnchor != "" {
			parsed, err := time.Parse(time.RFC3339, triggerAnchor)
			if err != nil {
				return fmt.Errorf("invalid anchor time: %w", err)
			}
			anchorAt = &parsed
		}

		trig := dispatch.Trigger{
			RecipientKey: triggerRecipient,
			Email:        triggerEmail,
			DisplayName:  triggerName,
			OrgName:      triggerOrg,
			Counters: segment.Counters{
				Red:    triggerRed,
				Orange: triggerOrange,
				Yellow: triggerYellow,
				Green:  triggerGreen,
			},
			SequenceType: sequence.Type(triggerType),
			Mode:         sequence.Mode(triggerMode),
			AnchorAt:     anchorAt,
			AnchorStatus: triggerAnchorStatus,
		}

		bus := events.NewInMemoryBus(rt.log)
		journalStore := journal.NewRepository(rt.pool)
		journal.New(journalStore, rt.log).RegisterHandlers(bus)

		var stepScheduler dispatch.StepScheduler
		if client, err := scheduler.NewClient(rt.cfg); err != nil {
			rt.log.Warn("step queue unavailable, planned steps stay pending until the next sweep", "error", err.Error())
			stepScheduler = queuelessScheduler{reason: err}
		} else {
			defer client.Close()
			stepScheduler = client
		}

		orch := dispatch.NewOrchestrator(state.NewRepository(rt.pool), catalog, stepScheduler, syncBus{bus}, rt.cfg, rt.log)

		result, err := orch.HandleTrigger(ctx, trig)
		if err != nil {
			return err
		}

		verb := "created"
		if result.Resumed {
			verb = "resumed"
		}
		fmt.Fprintf(os.Stdout, "Trigger accepted: %s instance %s (segment %s)\n", verb, result.InstanceID, result.Segment)
		fmt.Fprintf(os.Stdout, "planned %d step(s)\n", result.PlannedSteps)
		if result.Settled {
			fmt.Fprintln(os.Stdout, "nothing left to send; instance settled")
		}
		return nil
	},
}
