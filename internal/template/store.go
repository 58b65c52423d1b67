package template

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sequencer_backend/internal/sequence"
	"sequencer_backend/platform/config"
)

// RemoteLookup fetches step copy from an external template store. Exactly one
// production implementation exists (StoreClient); the interface is what the
// resolver depends on.
type RemoteLookup interface {
	Lookup(ctx context.Context, seqType sequence.Type, position int) (Entry, error)
}

// StoreClient talks to the remote template store over HTTP. Every lookup is
// bounded by the configured timeout and retried once on transient failure;
// after that the caller falls back to the static table.
type StoreClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

const lookupRetryDelay = 250 * time.Millisecond

type storeTemplateResponse struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewStoreClient builds a client from config. Callers should only construct
// one when cfg.IsTemplateStoreEnabled() is true.
func NewStoreClient(cfg config.TemplateStoreConfig) *StoreClient {
	return &StoreClient{
		baseURL: cfg.GetTemplateStoreURL(),
		apiKey:  cfg.GetTemplateStoreAPIKey(),
		client:  &http.Client{Timeout: cfg.GetTemplateStoreTimeout()},
	}
}

// Lookup fetches the copy for one sequence step. Transport errors and 5xx
// responses are retried once; a 404 or an empty document is a deterministic
// miss and is returned immediately.
func (s *StoreClient) Lookup(ctx context.Context, seqType sequence.Type, position int) (Entry, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Entry{}, ctx.Err()
			case <-time.After(lookupRetryDelay):
			}
		}

		entry, retryable, err := s.fetch(ctx, seqType, position)
		if err == nil {
			return entry, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return Entry{}, lastErr
}

func (s *StoreClient) fetch(ctx context.Context, seqType sequence.Type, position int) (Entry, bool, error) {
	url := fmt.Sprintf("%s/templates/%s/%d", s.baseURL, seqType, position)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Entry{}, false, err
	}
	req.Header.Set("api-key", s.apiKey)
	req.Header.Set("accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Entry{}, true, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return Entry{}, false, fmt.Errorf("template store has no entry for %s position %d", seqType, position)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Entry{}, resp.StatusCode >= 500, fmt.Errorf("template store lookup failed: status %d: %s", resp.StatusCode, string(data))
	}

	var doc storeTemplateResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Entry{}, false, fmt.Errorf("template store returned invalid document: %w", err)
	}
	if doc.Subject == "" && doc.Body == "" {
		return Entry{}, false, fmt.Errorf("template store returned empty document for %s position %d", seqType, position)
	}

	return Entry{Subject: doc.Subject, Body: doc.Body}, false, nil
}
