package exports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InstanceRow is one exported sequence instance with its delivery totals.
type InstanceRow struct {
	ID           uuid.UUID
	RecipientKey string
	Email        string
	DisplayName  string
	OrgName      string
	SequenceType string
	Segment      string
	Mode         string
	AnchorAt     time.Time
	Status       string
	CreatedAt    time.Time
	SentSteps    int
	FailedSteps  int
	OpenSteps    int
}

// StepRow is one exported delivery record joined with its instance
// coordinates.
type StepRow struct {
	InstanceID   uuid.UUID
	RecipientKey string
	SequenceType string
	Segment      string
	Position     int
	TemplateRef  string
	Status       string
	FireAt       time.Time
	Attempts     int
	SentAt       *time.Time
	SentBy       string
	MessageID    string
	LastError    *string
}

// Filter bounds an export query. From and To are inclusive; empty string
// fields match everything.
type Filter struct {
	From         time.Time
	To           time.Time
	SequenceType string
	Segment      string
	Status       string
	Limit        int
}

// Repository provides read access for export queries.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListInstances returns instances created inside the window with per-status
// step totals, oldest first so repeated exports stay stable.
func (r *Repository) ListInstances(ctx context.Context, f Filter) ([]InstanceRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.recipient_key, i.recipient_email, i.display_name, i.org_name,
			i.sequence_type, i.segment, i.mode, i.anchor_at, i.status, i.created_at,
			count(s.id) FILTER (WHERE s.status = 'sent') AS sent_steps,
			count(s.id) FILTER (WHERE s.status = 'failed') AS failed_steps,
			count(s.id) FILTER (WHERE s.status IN ('pending', 'enqueued', 'processing')) AS open_steps
		FROM seq_instances i
		LEFT JOIN seq_steps s ON s.instance_id = i.id
		WHERE i.created_at >= $1 AND i.created_at <= $2
			AND ($3 = '' OR i.sequence_type = $3)
			AND ($4 = '' OR i.segment = $4)
			AND ($5 = '' OR i.status = $5)
		GROUP BY i.id
		ORDER BY i.created_at ASC
		LIMIT $6
	`, f.From, f.To, f.SequenceType, f.Segment, f.Status, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]InstanceRow, 0)
	for rows.Next() {
		var item InstanceRow
		if err := rows.Scan(
			&item.ID, &item.RecipientKey, &item.Email, &item.DisplayName, &item.OrgName,
			&item.SequenceType, &item.Segment, &item.Mode, &item.AnchorAt, &item.Status, &item.CreatedAt,
			&item.SentSteps, &item.FailedSteps, &item.OpenSteps,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListSteps returns delivery records whose fire time falls inside the window.
func (r *Repository) ListSteps(ctx context.Context, f Filter) ([]StepRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.instance_id, i.recipient_key, i.sequence_type, i.segment,
			s.position, s.template_ref, s.status, s.fire_at, s.attempts,
			s.sent_at, s.sent_by, s.message_id, s.last_error
		FROM seq_steps s
		JOIN seq_instances i ON i.id = s.instance_id
		WHERE s.fire_at >= $1 AND s.fire_at <= $2
			AND ($3 = '' OR i.sequence_type = $3)
			AND ($4 = '' OR i.segment = $4)
			AND ($5 = '' OR s.status = $5)
		ORDER BY s.fire_at ASC, s.position ASC
		LIMIT $6
	`, f.From, f.To, f.SequenceType, f.Segment, f.Status, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]StepRow, 0)
	for rows.Next() {
		var item StepRow
		if err := rows.Scan(
			&item.InstanceID, &item.RecipientKey, &item.SequenceType, &item.Segment,
			&item.Position, &item.TemplateRef, &item.Status, &item.FireAt, &item.Attempts,
			&item.SentAt, &item.SentBy, &item.MessageID, &item.LastError,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
