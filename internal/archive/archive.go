// Package archive keeps a copy of every sent message in object storage.
// Archiving is best-effort: a failed write is logged and never fails the
// send that produced it.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sequencer_backend/platform/config"
)

// Entry is the archived record of one sent step.
type Entry struct {
	RecipientKey   string    `json:"recipientKey"`
	SequenceType   string    `json:"sequenceType"`
	Position       int       `json:"position"`
	MessageID      string    `json:"messageId"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	Segment        string    `json:"segment"`
	TemplateSource string    `json:"templateSource"`
	SentBy         string    `json:"sentBy"`
	SentAt         time.Time `json:"sentAt"`
}

// Archiver stores sent messages. Implementations must be safe for concurrent
// use by multiple workers.
type Archiver interface {
	ArchiveMessage(ctx context.Context, e Entry) error
}

// NoopArchiver is used when no object storage is configured.
type NoopArchiver struct{}

func (NoopArchiver) ArchiveMessage(context.Context, Entry) error { return nil }

// MinIOArchiver writes one JSON object per sent message.
type MinIOArchiver struct {
	client *minio.Client
	bucket string
}

// NewArchiver selects the implementation from config.
func NewArchiver(cfg config.ArchiveConfig) (Archiver, error) {
	if !cfg.IsArchiveEnabled() {
		return NoopArchiver{}, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOArchiver{
		client: client,
		bucket: cfg.GetArchiveBucket(),
	}, nil
}

// EnsureBucketExists creates the archive bucket if it doesn't exist. Called
// once at startup, not per message.
func (a *MinIOArchiver) EnsureBucketExists(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}

	return nil
}

func (a *MinIOArchiver) ArchiveMessage(ctx context.Context, e Entry) error {
	if e.SentAt.IsZero() {
		e.SentAt = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal archive entry: %w", err)
	}

	key := ObjectKey(e.RecipientKey, e.SequenceType, e.Position, e.MessageID)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to archive message %s: %w", key, err)
	}
	return nil
}

var objectKeyUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds the storage key for one sent message:
// <recipient>/<sequence_type>/step-<position>-<message_id>.json
func ObjectKey(recipientKey, sequenceType string, position int, messageID string) string {
	return fmt.Sprintf("%s/%s/step-%d-%s.json",
		sanitizeKeyPart(recipientKey),
		sanitizeKeyPart(sequenceType),
		position,
		sanitizeKeyPart(messageID),
	)
}

func sanitizeKeyPart(part string) string {
	cleaned := objectKeyUnsafe.ReplaceAllString(part, "_")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
