package archive

import (
	"context"
	"testing"
)

func TestObjectKeyLayout(t *testing.T) {
	got := ObjectKey("lead-42", "five_day", 3, "abc-123@mail.example.com")
	want := "lead-42/five_day/step-3-abc-123_mail.example.com.json"
	if got != want {
		t.Fatalf("ObjectKey() = %q, want %q", got, want)
	}
}

func TestObjectKeySanitizesUnsafeCharacters(t *testing.T) {
	got := ObjectKey("lead/42", "five day", 1, "<id>")
	want := "lead_42/five_day/step-1-_id_.json"
	if got != want {
		t.Fatalf("ObjectKey() = %q, want %q", got, want)
	}
}

func TestObjectKeyNeverEmitsEmptySegments(t *testing.T) {
	got := ObjectKey("", "", 1, "")
	want := "unknown/unknown/step-1-unknown.json"
	if got != want {
		t.Fatalf("ObjectKey() = %q, want %q", got, want)
	}
}

func TestNoopArchiverAcceptsEverything(t *testing.T) {
	if err := (NoopArchiver{}).ArchiveMessage(context.Background(), Entry{}); err != nil {
		t.Fatalf("NoopArchiver returned error: %v", err)
	}
}

type archiveTestConfig struct {
	endpoint string
	bucket   string
}

func (c archiveTestConfig) GetMinIOEndpoint() string  { return c.endpoint }
func (c archiveTestConfig) GetMinIOAccessKey() string { return "access" }
func (c archiveTestConfig) GetMinIOSecretKey() string { return "secret" }
func (c archiveTestConfig) GetMinIOUseSSL() bool      { return false }
func (c archiveTestConfig) GetArchiveBucket() string  { return c.bucket }
func (c archiveTestConfig) IsArchiveEnabled() bool    { return c.endpoint != "" && c.bucket != "" }

func TestNewArchiverDisabledReturnsNoop(t *testing.T) {
	a, err := NewArchiver(archiveTestConfig{})
	if err != nil {
		t.Fatalf("NewArchiver returned error: %v", err)
	}
	if _, ok := a.(NoopArchiver); !ok {
		t.Fatalf("expected NoopArchiver, got %T", a)
	}
}

func TestNewArchiverEnabledReturnsMinIO(t *testing.T) {
	a, err := NewArchiver(archiveTestConfig{endpoint: "localhost:9000", bucket: "message-archive"})
	if err != nil {
		t.Fatalf("NewArchiver returned error: %v", err)
	}
	if _, ok := a.(*MinIOArchiver); !ok {
		t.Fatalf("expected *MinIOArchiver, got %T", a)
	}
}
