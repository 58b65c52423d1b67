package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sequencer_backend/internal/sequence"
)

// Repository is the pgx-backed Store implementation.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const instanceColumns = `id, recipient_key, recipient_email, display_name, org_name, sequence_type, segment, mode,
	red_count, orange_count, yellow_count, green_count, anchor_at, status, created_at, updated_at`

func scanInstance(row pgx.Row) (Instance, error) {
	var inst Instance
	var seqType, status string
	err := row.Scan(&inst.ID, &inst.RecipientKey, &inst.Email, &inst.DisplayName, &inst.OrgName,
		&seqType, &inst.Segment, &inst.Mode,
		&inst.Counters.Red, &inst.Counters.Orange, &inst.Counters.Yellow, &inst.Counters.Green,
		&inst.AnchorAt, &status, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return Instance{}, err
	}
	inst.SequenceType = sequence.Type(seqType)
	inst.Status = InstanceStatus(status)
	return inst, nil
}

// GetOrCreate relies on the partial unique index over (recipient_key,
// sequence_type) WHERE status <> 'archived': the insert either wins and
// returns the new row, or conflicts and the existing non-archived instance
// is read back. Postgres blocks the conflicting insert until the winner
// commits, so the follow-up read always sees it.
func (r *Repository) GetOrCreate(ctx context.Context, p CreateParams) (Instance, bool, error) {
	if p.RecipientKey == "" {
		return Instance{}, false, fmt.Errorf("recipientKey is required")
	}
	if p.SequenceType == "" {
		return Instance{}, false, fmt.Errorf("sequenceType is required")
	}
	if p.AnchorAt.IsZero() {
		return Instance{}, false, fmt.Errorf("anchorAt is required")
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO seq_instances (recipient_key, recipient_email, display_name, org_name, sequence_type, segment, mode,
		                            red_count, orange_count, yellow_count, green_count, anchor_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'active')
		 ON CONFLICT (recipient_key, sequence_type) WHERE status <> 'archived' DO NOTHING
		 RETURNING `+instanceColumns,
		p.RecipientKey, p.Email, p.DisplayName, p.OrgName, string(p.SequenceType), p.Segment, p.Mode,
		p.Counters.Red, p.Counters.Orange, p.Counters.Yellow, p.Counters.Green, p.AnchorAt.UTC(),
	)
	inst, err := scanInstance(row)
	if err == nil {
		return inst, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Instance{}, false, err
	}

	inst, err = r.FindActive(ctx, p.RecipientKey, p.SequenceType)
	if err != nil {
		return Instance{}, false, err
	}
	return inst, false, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Instance, error) {
	inst, err := scanInstance(r.pool.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM seq_instances WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Instance{}, ErrNotFound
	}
	return inst, err
}

func (r *Repository) FindActive(ctx context.Context, recipientKey string, seqType sequence.Type) (Instance, error) {
	inst, err := scanInstance(r.pool.QueryRow(ctx,
		`SELECT `+instanceColumns+`
		 FROM seq_instances
		 WHERE recipient_key = $1 AND sequence_type = $2 AND status <> 'archived'`,
		recipientKey, string(seqType)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Instance{}, ErrNotFound
	}
	return inst, err
}

func (r *Repository) ListByRecipient(ctx context.Context, recipientKey string) ([]Instance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+instanceColumns+`
		 FROM seq_instances
		 WHERE recipient_key = $1
		 ORDER BY created_at DESC`,
		recipientKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, inst)
	}
	return results, rows.Err()
}

func (r *Repository) InsertSteps(ctx context.Context, instanceID uuid.UUID, steps []StepInsert) error {
	if len(steps) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, s := range steps {
		status := s.Status
		if status == "" {
			status = StepPending
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO seq_steps (instance_id, position, template_ref, fire_at, status, sent_by, sent_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (instance_id, position) DO NOTHING`,
			instanceID, s.Position, s.TemplateRef, s.FireAt.UTC(), string(status), s.SentBy, s.SentAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) Steps(ctx context.Context, instanceID uuid.UUID) ([]StepRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, instance_id, position, template_ref, fire_at, status, attempts, sent_at, sent_by, message_id, last_error, updated_at
		 FROM seq_steps
		 WHERE instance_id = $1
		 ORDER BY position ASC`,
		instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []StepRecord
	for rows.Next() {
		var rec StepRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.InstanceID, &rec.Position, &rec.TemplateRef, &rec.FireAt,
			&status, &rec.Attempts, &rec.SentAt, &rec.SentBy, &rec.MessageID, &rec.LastError, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Status = StepStatus(status)
		results = append(results, rec)
	}
	return results, rows.Err()
}

// RecordAttempt is last-write-wins with two carve-outs enforced in SQL: a
// sent status survives any later write, and sent_at/sent_by/message_id are
// fixed by the first send. All CASE expressions read the pre-update row, so
// "sent_at IS NULL" means "this is the first recorded send".
func (r *Repository) RecordAttempt(ctx context.Context, p AttemptParams) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE seq_steps SET
		     status     = CASE WHEN status = 'sent' THEN status ELSE $3 END,
		     sent_at    = CASE WHEN $3 = 'sent' THEN COALESCE(sent_at, now()) ELSE sent_at END,
		     sent_by    = CASE WHEN $3 = 'sent' AND sent_at IS NULL THEN $4 ELSE sent_by END,
		     message_id = CASE WHEN $3 = 'sent' AND sent_at IS NULL THEN $5 ELSE message_id END,
		     last_error = $6,
		     updated_at = now()
		 WHERE instance_id = $1 AND position = $2`,
		p.InstanceID, p.Position, string(p.Status), p.SentBy, p.MessageID, p.LastError,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record attempt for instance %s position %d: %w", p.InstanceID, p.Position, ErrNotFound)
	}
	return nil
}

func (r *Repository) IsAlreadySent(ctx context.Context, instanceID uuid.UUID, position int) (bool, error) {
	var sent bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM seq_steps
		    WHERE instance_id = $1 AND position = $2 AND status = 'sent')`,
		instanceID, position,
	).Scan(&sent)
	return sent, err
}

func (r *Repository) SentPositions(ctx context.Context, instanceID uuid.UUID) (map[int]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT position FROM seq_steps WHERE instance_id = $1 AND status = 'sent'`,
		instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sent := make(map[int]bool)
	for rows.Next() {
		var pos int
		if err := rows.Scan(&pos); err != nil {
			return nil, err
		}
		sent[pos] = true
	}
	return sent, rows.Err()
}

func (r *Repository) HasUnresolvedEarlier(ctx context.Context, instanceID uuid.UUID, position int) (bool, error) {
	var unresolved bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM seq_steps
		    WHERE instance_id = $1 AND position < $2
		      AND status NOT IN ('sent', 'failed', 'skipped'))`,
		instanceID, position,
	).Scan(&unresolved)
	return unresolved, err
}

func (r *Repository) IsArchived(ctx context.Context, instanceID uuid.UUID) (bool, error) {
	var archived bool
	err := r.pool.QueryRow(ctx,
		`SELECT status = 'archived' FROM seq_instances WHERE id = $1`,
		instanceID,
	).Scan(&archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	return archived, err
}

func (r *Repository) Archive(ctx context.Context, recipientKey string, seqType sequence.Type) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE seq_instances
		 SET status = 'archived', updated_at = now()
		 WHERE recipient_key = $1 AND sequence_type = $2 AND status <> 'archived'`,
		recipientKey, string(seqType),
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// SettleIfComplete transitions active -> settled once every step is terminal.
// The inner EXISTS guard keeps an instance whose steps have not been
// materialized yet from settling as trivially complete.
func (r *Repository) SettleIfComplete(ctx context.Context, instanceID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE seq_instances i
		 SET status = 'settled', updated_at = now()
		 WHERE i.id = $1 AND i.status = 'active'
		   AND EXISTS (SELECT 1 FROM seq_steps s WHERE s.instance_id = i.id)
		   AND NOT EXISTS (
		       SELECT 1 FROM seq_steps s
		       WHERE s.instance_id = i.id
		         AND s.status NOT IN ('sent', 'failed', 'skipped'))`,
		instanceID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ClaimDueSteps(ctx context.Context, limit int) ([]ClaimedStep, error) {
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT s.id
		FROM seq_steps s
		JOIN seq_instances i ON i.id = s.instance_id
		WHERE s.status = 'pending' AND s.fire_at <= now() AND i.status = 'active'
		ORDER BY s.fire_at ASC
		LIMIT $1
		FOR UPDATE OF s SKIP LOCKED
	)
	UPDATE seq_steps st
	SET status = 'enqueued', updated_at = now()
	FROM cte, seq_instances i
	WHERE st.id = cte.id AND i.id = st.instance_id
	RETURNING st.id, st.instance_id, st.position, st.fire_at, i.recipient_key, i.sequence_type`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ClaimedStep
	for rows.Next() {
		var c ClaimedStep
		var seqType string
		if err := rows.Scan(&c.StepID, &c.InstanceID, &c.Position, &c.FireAt, &c.RecipientKey, &seqType); err != nil {
			return nil, err
		}
		c.SequenceType = sequence.Type(seqType)
		results = append(results, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// ReclaimStuck handles queue loss: a step can be marked enqueued or
// processing and then never resolve if redis drops the task or a worker
// dies mid-send. Anything past due by olderThan with no write since then
// goes back to pending for the sweeper to re-dispatch.
func (r *Repository) ReclaimStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if limit < 1 {
		limit = 50
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE seq_steps
		 SET status = 'pending', updated_at = now()
		 WHERE id IN (
		     SELECT s.id
		     FROM seq_steps s
		     JOIN seq_instances i ON i.id = s.instance_id
		     WHERE s.status IN ('enqueued', 'processing')
		       AND i.status = 'active'
		       AND s.fire_at < now() - make_interval(secs => $1)
		       AND s.updated_at < now() - make_interval(secs => $1)
		     ORDER BY s.fire_at ASC
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )`,
		olderThan.Seconds(), limit,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) MarkEnqueued(ctx context.Context, instanceID uuid.UUID, position int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE seq_steps
		 SET status = 'enqueued', updated_at = now()
		 WHERE instance_id = $1 AND position = $2 AND status = 'pending'`,
		instanceID, position,
	)
	return err
}

func (r *Repository) MarkProcessing(ctx context.Context, instanceID uuid.UUID, position int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE seq_steps
		 SET status = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE instance_id = $1 AND position = $2 AND status <> 'sent'`,
		instanceID, position,
	)
	return err
}

func (r *Repository) MarkPending(ctx context.Context, stepID uuid.UUID, lastError *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE seq_steps
		 SET status = 'pending', last_error = $2, updated_at = now()
		 WHERE id = $1 AND status <> 'sent'`,
		stepID, lastError,
	)
	return err
}
