package template

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sequencer_backend/internal/sequence"
)

type storeTestConfig struct {
	url string
}

func (c storeTestConfig) GetTemplateStoreURL() string            { return c.url }
func (c storeTestConfig) GetTemplateStoreAPIKey() string         { return "test-key" }
func (c storeTestConfig) GetTemplateStoreTimeout() time.Duration { return 2 * time.Second }
func (c storeTestConfig) IsTemplateStoreEnabled() bool           { return c.url != "" }

func TestStoreClientLookupDecodesDocument(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("api-key")
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"subject":"Store subject","body":"Store body"}`))
	}))
	defer srv.Close()

	client := NewStoreClient(storeTestConfig{url: srv.URL})
	entry, err := client.Lookup(context.Background(), sequence.TypeFiveDay, 2)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if entry.Subject != "Store subject" || entry.Body != "Store body" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if gotPath != "/templates/five_day/2" {
		t.Fatalf("request path = %q, want /templates/five_day/2", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("api-key header = %q, want test-key", gotKey)
	}
}

func TestStoreClientRetriesOnceOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"subject":"Recovered","body":"After retry"}`))
	}))
	defer srv.Close()

	client := NewStoreClient(storeTestConfig{url: srv.URL})
	entry, err := client.Lookup(context.Background(), sequence.TypePostCall, 1)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("server saw %d attempts, want 2", attempts)
	}
	if entry.Subject != "Recovered" {
		t.Fatalf("unexpected entry after retry: %+v", entry)
	}
}

func TestStoreClientGivesUpAfterSecondFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewStoreClient(storeTestConfig{url: srv.URL})
	if _, err := client.Lookup(context.Background(), sequence.TypeFiveDay, 1); err == nil {
		t.Fatalf("expected error after persistent 502s")
	}
	if attempts != 2 {
		t.Fatalf("server saw %d attempts, want exactly 2 (one retry)", attempts)
	}
}

func TestStoreClientDoesNotRetryNotFound(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewStoreClient(storeTestConfig{url: srv.URL})
	if _, err := client.Lookup(context.Background(), sequence.TypeFiveDay, 42); err == nil {
		t.Fatalf("expected miss error for 404")
	}
	if attempts != 1 {
		t.Fatalf("server saw %d attempts, want 1 (404 is deterministic)", attempts)
	}
}

func TestStoreClientRejectsEmptyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewStoreClient(storeTestConfig{url: srv.URL})
	if _, err := client.Lookup(context.Background(), sequence.TypeOnboarding, 1); err == nil {
		t.Fatalf("expected error for empty document")
	}
}
