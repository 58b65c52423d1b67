// Package state persists sequence instances and their per-step delivery
// records. It is the source of truth for what has already been sent to a
// recipient, so every guard the dispatcher applies (duplicate trigger,
// already-sent, archived, strict ordering) reads from here.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"sequencer_backend/internal/segment"
	"sequencer_backend/internal/sequence"
)

// InstanceStatus is the lifecycle of one sequence instance. A settled or
// active instance still occupies the (recipient, sequence type) slot; only
// archiving frees it for a fresh run.
type InstanceStatus string

const (
	InstanceActive   InstanceStatus = "active"
	InstanceSettled  InstanceStatus = "settled"
	InstanceArchived InstanceStatus = "archived"
)

// StepStatus is the delivery lifecycle of a single step. pending means the
// step is waiting for its fire time, enqueued that the delayed queue owns it,
// processing that a worker picked it up. sent, failed and skipped are
// terminal; sent is additionally sticky - once a step is sent, no later
// write may downgrade it.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepEnqueued   StepStatus = "enqueued"
	StepProcessing StepStatus = "processing"
	StepSent       StepStatus = "sent"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// Terminal reports whether s is a final step state.
func (s StepStatus) Terminal() bool {
	return s == StepSent || s == StepFailed || s == StepSkipped
}

// SentByEngine and SentByFrontend record which system performed a send.
// Frontend sends happen before the trigger reaches this service (the first
// step of sequences marked FirstStepExternal).
const (
	SentByEngine   = "engine"
	SentByFrontend = "frontend"
)

// ErrNotFound is returned when an instance or step does not exist.
var ErrNotFound = errors.New("state: not found")

// Instance is one run of a sequence for one recipient. Everything a step
// needs at fire time (address, personalization fields, counters) is captured
// here at trigger time, because the send may happen days later.
type Instance struct {
	ID           uuid.UUID
	RecipientKey string
	Email        string
	DisplayName  string
	OrgName      string
	SequenceType sequence.Type
	Segment      string
	Mode         string
	Counters     segment.Counters
	AnchorAt     time.Time
	Status       InstanceStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StepRecord is the persisted delivery state of one step of an instance.
type StepRecord struct {
	ID          uuid.UUID
	InstanceID  uuid.UUID
	Position    int
	TemplateRef string
	FireAt      time.Time
	Status      StepStatus
	Attempts    int
	SentAt      *time.Time
	SentBy      string
	MessageID   string
	LastError   *string
	UpdatedAt   time.Time
}

// CreateParams describes the instance get_or_create upsert.
type CreateParams struct {
	RecipientKey string
	Email        string
	DisplayName  string
	OrgName      string
	SequenceType sequence.Type
	Segment      string
	Mode         string
	Counters     segment.Counters
	AnchorAt     time.Time
}

// StepInsert materializes one planned step. Status defaults to pending; the
// dispatcher seeds frontend-sent first steps with an explicit sent status and
// SentAt so the ledger reflects what already happened outside the engine.
type StepInsert struct {
	Position    int
	TemplateRef string
	FireAt      time.Time
	Status      StepStatus
	SentBy      string
	SentAt      *time.Time
}

// AttemptParams records a delivery outcome for one step.
type AttemptParams struct {
	InstanceID uuid.UUID
	Position   int
	Status     StepStatus
	MessageID  string
	SentBy     string
	LastError  *string
}

// ClaimedStep is a due step handed to the sweeper, joined with the instance
// coordinates the queue payload needs.
type ClaimedStep struct {
	StepID       uuid.UUID
	InstanceID   uuid.UUID
	Position     int
	FireAt       time.Time
	RecipientKey string
	SequenceType sequence.Type
}

// Store is the persistence surface the dispatcher and scheduler depend on.
// The pgx repository is the production implementation.
type Store interface {
	// GetOrCreate returns the non-archived instance for (recipient, sequence
	// type), creating it when none exists. created reports whether this call
	// made the row. Safe under concurrent triggers: at most one non-archived
	// instance per pair ever exists.
	GetOrCreate(ctx context.Context, p CreateParams) (Instance, bool, error)

	// Get returns one instance by id.
	Get(ctx context.Context, id uuid.UUID) (Instance, error)

	// FindActive returns the current non-archived instance for the pair, or
	// ErrNotFound.
	FindActive(ctx context.Context, recipientKey string, seqType sequence.Type) (Instance, error)

	// ListByRecipient returns all instances for a recipient, newest first,
	// archived included.
	ListByRecipient(ctx context.Context, recipientKey string) ([]Instance, error)

	// InsertSteps materializes planned steps. Existing (instance, position)
	// rows are left untouched, which makes replanning after a duplicate
	// trigger a no-op for everything already on file.
	InsertSteps(ctx context.Context, instanceID uuid.UUID, steps []StepInsert) error

	// Steps returns the step ledger of an instance ordered by position.
	Steps(ctx context.Context, instanceID uuid.UUID) ([]StepRecord, error)

	// RecordAttempt applies a delivery outcome. Last write wins, with two
	// protections: a sent status is never downgraded, and sent_at is set
	// once and never cleared.
	RecordAttempt(ctx context.Context, p AttemptParams) error

	// IsAlreadySent reports whether the step has a recorded send.
	IsAlreadySent(ctx context.Context, instanceID uuid.UUID, position int) (bool, error)

	// SentPositions returns the set of positions with a recorded send.
	SentPositions(ctx context.Context, instanceID uuid.UUID) (map[int]bool, error)

	// HasUnresolvedEarlier reports whether any step below position is not yet
	// terminal. Used to enforce strict ordering before a send.
	HasUnresolvedEarlier(ctx context.Context, instanceID uuid.UUID, position int) (bool, error)

	// IsArchived reports whether the owning instance has been archived.
	IsArchived(ctx context.Context, instanceID uuid.UUID) (bool, error)

	// Archive archives the non-archived instance for the pair and returns
	// how many instances were archived (0 or 1).
	Archive(ctx context.Context, recipientKey string, seqType sequence.Type) (int, error)

	// SettleIfComplete marks the instance settled when every step is
	// terminal. Returns true when this call performed the transition.
	SettleIfComplete(ctx context.Context, instanceID uuid.UUID) (bool, error)

	// ClaimDueSteps atomically moves up to limit due pending steps to
	// enqueued and returns them. Concurrent sweepers never claim the same
	// step twice.
	ClaimDueSteps(ctx context.Context, limit int) ([]ClaimedStep, error)

	// ReclaimStuck returns steps that have sat in enqueued or processing
	// past their fire time for longer than olderThan back to pending, so
	// the sweeper can re-dispatch work lost by the queue.
	ReclaimStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error)

	// MarkEnqueued, MarkProcessing and MarkPending move a step through the
	// queue lifecycle. MarkEnqueued only promotes pending rows;
	// MarkProcessing increments the attempt counter.
	MarkEnqueued(ctx context.Context, instanceID uuid.UUID, position int) error
	MarkProcessing(ctx context.Context, instanceID uuid.UUID, position int) error
	MarkPending(ctx context.Context, stepID uuid.UUID, lastError *string) error
}
