package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sequencer_backend/internal/trigger"
)

var (
	replayFile        string
	replayURL         string
	replayAPIKey      string
	replayConcurrency int
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayFile, "file", "", "JSON file holding an array of trigger payloads (required)")
	replayCmd.Flags().StringVar(&replayURL, "url", "http://localhost:8080", "base URL of the running API")
	replayCmd.Flags().StringVar(&replayAPIKey, "api-key", "", "trigger API key, defaults to SEQUENCER_API_KEY")
	replayCmd.Flags().IntVar(&replayConcurrency, "concurrency", 4, "concurrent requests")
	_ = replayCmd.MarkFlagRequired("file")
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay captured trigger payloads against the ingress",
	Long:  "POST every trigger payload in a JSON file to the running API, through the same authenticated ingress the assessment tool uses. Triggers resume rather than duplicate, so replaying a capture is safe.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		apiKey := replayAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("SEQUENCER_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("an API key is required (--api-key or SEQUENCER_API_KEY)")
		}

		data, err := os.ReadFile(replayFile)
		if err != nil {
			return fmt.Errorf("read payload file: %w", err)
		}
		var payloads []json.RawMessage
		if err := json.Unmarshal(data, &payloads); err != nil {
			return fmt.Errorf("parse payload file: %w", err)
		}
		if len(payloads) == 0 {
			fmt.Fprintln(os.Stdout, "Nothing to replay.")
			return nil
		}
		if replayConcurrency < 1 {
			replayConcurrency = 1
		}

		client := &http.Client{Timeout: 15 * time.Second}
		endpoint := strings.TrimRight(replayURL, "/") + "/api/v1/sequences/trigger"

		// A transport error aborts the replay; a rejected payload is counted
		// and reported but does not stop the rest.
		var accepted, rejected atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(replayConcurrency)

		for i, payload := range payloads {
			i, payload := i, payload
			g.Go(func() error {
				status, detail, err := postTrigger(gctx, client, endpoint, apiKey, payload)
				if err != nil {
					return fmt.Errorf("payload %d: %w", i, err)
				}
				if status == http.StatusAccepted {
					accepted.Add(1)
					return nil
				}
				rejected.Add(1)
				fmt.Fprintf(os.Stderr, "payload %d rejected: status %d: %s\n", i, status, detail)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Replayed %d trigger(s): %d accepted, %d rejected\n",
			len(payloads), accepted.Load(), rejected.Load())
		if rejected.Load() > 0 {
			return fmt.Errorf("%d payload(s) were rejected", rejected.Load())
		}
		return nil
	},
}

func postTrigger(ctx context.Context, client *http.Client, endpoint, apiKey string, payload []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(trigger.APIKeyHeader, apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, "", nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, string(detail), nil
}
