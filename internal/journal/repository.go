// Package journal records every lifecycle event of the engine in Postgres.
// The journal is append-only and exists for operators: trigger replays,
// degraded-mode investigations and delivery audits all start here.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one journal row.
type Record struct {
	ID           int64
	EventName    string
	RecipientKey string
	InstanceID   *uuid.UUID
	Position     *int
	Payload      json.RawMessage
	OccurredAt   time.Time
	CreatedAt    time.Time
}

// InsertParams describes one append.
type InsertParams struct {
	EventName    string
	RecipientKey string
	InstanceID   *uuid.UUID
	Position     *int
	Payload      any
	OccurredAt   time.Time
}

// Store is the journal persistence surface.
type Store interface {
	Insert(ctx context.Context, p InsertParams) error
	ListByRecipient(ctx context.Context, recipientKey string, limit int) ([]Record, error)
	ListByInstance(ctx context.Context, instanceID uuid.UUID, limit int) ([]Record, error)
}

// Repository is the pgx-backed Store implementation.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Insert(ctx context.Context, p InsertParams) error {
	if p.EventName == "" {
		return fmt.Errorf("eventName is required")
	}
	if p.OccurredAt.IsZero() {
		p.OccurredAt = time.Now().UTC()
	}

	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO seq_journal (event_name, recipient_key, instance_id, position, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.EventName, p.RecipientKey, p.InstanceID, p.Position, payloadBytes, p.OccurredAt.UTC(),
	)
	return err
}

const journalColumns = `id, event_name, recipient_key, instance_id, position, payload, occurred_at, created_at`

func (r *Repository) ListByRecipient(ctx context.Context, recipientKey string, limit int) ([]Record, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+journalColumns+`
		 FROM seq_journal
		 WHERE recipient_key = $1
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $2`,
		recipientKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *Repository) ListByInstance(ctx context.Context, instanceID uuid.UUID, limit int) ([]Record, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+journalColumns+`
		 FROM seq_journal
		 WHERE instance_id = $1
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $2`,
		instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

type scannableRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectRecords(rows scannableRows) ([]Record, error) {
	var results []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventName, &rec.RecipientKey, &rec.InstanceID,
			&rec.Position, &rec.Payload, &rec.OccurredAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
