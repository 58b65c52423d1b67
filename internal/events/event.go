// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"sequencer_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Trigger Events
// =============================================================================

// TriggerAccepted is published when an assessment trigger passes validation
// and an instance exists for it (fresh or resumed).
type TriggerAccepted struct {
	BaseEvent
	InstanceID   uuid.UUID `json:"instanceId"`
	RecipientKey string    `json:"recipientKey"`
	SequenceType string    `json:"sequenceType"`
	Segment      string    `json:"segment"`
	Mode         string    `json:"mode"`
	Resumed      bool      `json:"resumed"`
}

func (e TriggerAccepted) EventName() string { return "sequences.trigger.accepted" }

// SequencePlanned is published after the step schedule for an instance has
// been materialized and handed to the delayed queue.
type SequencePlanned struct {
	BaseEvent
	InstanceID   uuid.UUID `json:"instanceId"`
	RecipientKey string    `json:"recipientKey"`
	SequenceType string    `json:"sequenceType"`
	AnchorAt     time.Time `json:"anchorAt"`
	StepCount    int       `json:"stepCount"`
}

func (e SequencePlanned) EventName() string { return "sequences.plan.created" }

// =============================================================================
// Step Events
// =============================================================================

// StepSent is published after a step email has been accepted by the
// provider.
type StepSent struct {
	BaseEvent
	InstanceID     uuid.UUID `json:"instanceId"`
	RecipientKey   string    `json:"recipientKey"`
	SequenceType   string    `json:"sequenceType"`
	Position       int       `json:"position"`
	MessageID      string    `json:"messageId"`
	TemplateSource string    `json:"templateSource"`
}

func (e StepSent) EventName() string { return "sequences.step.sent" }

// StepFailed is published when a step exhausts its delivery attempts. Later
// steps of the same instance are unaffected.
type StepFailed struct {
	BaseEvent
	InstanceID   uuid.UUID `json:"instanceId"`
	RecipientKey string    `json:"recipientKey"`
	SequenceType string    `json:"sequenceType"`
	Position     int       `json:"position"`
	Reason       string    `json:"reason"`
}

func (e StepFailed) EventName() string { return "sequences.step.failed" }

// StepSkipped is published when a step is deliberately not sent (archived
// instance, or a send already on record).
type StepSkipped struct {
	BaseEvent
	InstanceID   uuid.UUID `json:"instanceId"`
	RecipientKey string    `json:"recipientKey"`
	SequenceType string    `json:"sequenceType"`
	Position     int       `json:"position"`
	Reason       string    `json:"reason"`
}

func (e StepSkipped) EventName() string { return "sequences.step.skipped" }

// =============================================================================
// Instance Events
// =============================================================================

// StateWriteDegraded is published when the post-send state write fails. The
// email is already out; this event is the audit trail for the gap.
type StateWriteDegraded struct {
	BaseEvent
	InstanceID uuid.UUID `json:"instanceId"`
	Position   int       `json:"position"`
	Reason     string    `json:"reason"`
}

func (e StateWriteDegraded) EventName() string { return "sequences.state.write_degraded" }

// SequenceSettled is published when the last outstanding step of an instance
// reaches a terminal state.
type SequenceSettled struct {
	BaseEvent
	InstanceID   uuid.UUID `json:"instanceId"`
	RecipientKey string    `json:"recipientKey"`
	SequenceType string    `json:"sequenceType"`
}

func (e SequenceSettled) EventName() string { return "sequences.settled" }

// SequenceArchived is published when an operator archives the sequences of a
// recipient.
type SequenceArchived struct {
	BaseEvent
	RecipientKey string `json:"recipientKey"`
	SequenceType string `json:"sequenceType"`
	Archived     int    `json:"archived"`
}

func (e SequenceArchived) EventName() string { return "sequences.archived" }
