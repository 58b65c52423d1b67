// Package cli implements the seqctl operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"sequencer_backend/internal/events"
	"sequencer_backend/platform/config"
	"sequencer_backend/platform/db"
	"sequencer_backend/platform/logger"
)

var rootCmd = &cobra.Command{
	Use:           "seqctl",
	Short:         "Operate the sequence engine",
	Long:          "seqctl works directly against the engine's database and queue: inspect sequence state, fire triggers, push due steps and archive recipients.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command tree.
func Execute() error {
	return rootCmd.Execute()
}

// runtime bundles the dependencies most commands share. Logs go to stderr
// so stdout stays clean for tables and JSON.
type runtime struct {
	cfg  *config.Config
	log  *logger.Logger
	pool *pgxpool.Pool
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &runtime{
		cfg:  cfg,
		log:  logger.NewWithWriter(os.Stderr, cfg.Env),
		pool: pool,
	}, nil
}

func (r *runtime) Close() {
	r.pool.Close()
}

// syncBus publishes synchronously so journal writes land before the process
// exits. CLI commands are short-lived; the async bus would race shutdown.
type syncBus struct {
	events.Bus
}

func (b syncBus) Publish(ctx context.Context, event events.Event) {
	_ = b.Bus.PublishSync(ctx, event)
}

const tablePadding = 2

func writeTable(out io.Writer, headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(out, 0, 0, tablePadding, ' ', tabwriter.StripEscape)
	if len(headers) > 0 {
		fmt.Fprintln(writer, strings.Join(headers, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(writer, strings.Join(row, "\t"))
	}
	return writer.Flush()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimestampRef(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTimestamp(*t)
}
