package trigger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"sequencer_backend/internal/dispatch"
	"sequencer_backend/internal/journal"
	"sequencer_backend/internal/segment"
	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
	"sequencer_backend/platform/sanitize"
)

// TriggerCounters is the nested finding-count object of the trigger payload.
// Pointer fields distinguish "absent" from an explicit zero; absent counts
// as zero findings.
type TriggerCounters struct {
	Red    *int `json:"red"`
	Orange *int `json:"orange"`
	Yellow *int `json:"yellow"`
	Green  *int `json:"green"`
}

// TriggerRequest is the wire form of an assessment trigger. Field names
// follow the upstream assessment tool's contract, not our response style.
// Semantic checks (known sequence type, valid mode, anchor status rules)
// happen in the dispatch pipeline so rejections have one shape.
type TriggerRequest struct {
	RecipientKey string          `json:"recipient_key" validate:"required,min=1,max=200"`
	Email        string          `json:"email" validate:"omitempty,email,max=320"`
	DisplayName  string          `json:"display_name" validate:"max=200"`
	OrgName      string          `json:"org_name" validate:"max=200"`
	Counters     TriggerCounters `json:"counters"`
	SequenceType string          `json:"sequence_type" validate:"required,max=100"`
	Mode         string          `json:"mode" validate:"omitempty,max=20"`
	AnchorAt     *time.Time      `json:"anchor_time"`
	AnchorStatus string          `json:"anchor_status" validate:"omitempty,max=20"`
}

// toTrigger maps the wire payload onto the dispatch pipeline's input.
// DisplayName and OrgName end up inside rendered HTML email bodies, so they
// are stripped of markup here at the boundary.
func (r TriggerRequest) toTrigger() dispatch.Trigger {
	return dispatch.Trigger{
		RecipientKey: r.RecipientKey,
		Email:        r.Email,
		DisplayName:  sanitize.Text(r.DisplayName),
		OrgName:      sanitize.Text(r.OrgName),
		Counters:     segment.CountersFromTrigger(r.Counters.Red, r.Counters.Orange, r.Counters.Yellow, r.Counters.Green),
		SequenceType: sequence.Type(r.SequenceType),
		Mode:         sequence.Mode(r.Mode),
		AnchorAt:     r.AnchorAt,
		AnchorStatus: r.AnchorStatus,
	}
}

// TriggerAcceptedResponse is the only shape a successful trigger returns.
type TriggerAcceptedResponse struct {
	Status     string    `json:"status"`
	InstanceID uuid.UUID `json:"instanceId"`
}

// CountersResponse mirrors the stored finding counts.
type CountersResponse struct {
	Red    int `json:"red"`
	Orange int `json:"orange"`
	Yellow int `json:"yellow"`
	Green  int `json:"green"`
}

// InstanceResponse is the operator view of a sequence instance.
type InstanceResponse struct {
	ID           uuid.UUID        `json:"id"`
	RecipientKey string           `json:"recipientKey"`
	Email        string           `json:"email,omitempty"`
	DisplayName  string           `json:"displayName,omitempty"`
	OrgName      string           `json:"orgName,omitempty"`
	SequenceType string           `json:"sequenceType"`
	Segment      string           `json:"segment"`
	Mode         string           `json:"mode"`
	Counters     CountersResponse `json:"counters"`
	AnchorAt     string           `json:"anchorAt"`
	Status       string           `json:"status"`
	CreatedAt    string           `json:"createdAt"`
	UpdatedAt    string           `json:"updatedAt"`
}

// StepResponse is the operator view of one step of the delivery ledger.
type StepResponse struct {
	Position    int     `json:"position"`
	TemplateRef string  `json:"templateRef"`
	FireAt      string  `json:"fireAt"`
	Status      string  `json:"status"`
	Attempts    int     `json:"attempts"`
	SentAt      *string `json:"sentAt,omitempty"`
	SentBy      string  `json:"sentBy,omitempty"`
	MessageID   string  `json:"messageId,omitempty"`
	LastError   *string `json:"lastError,omitempty"`
}

// InstanceDetailResponse combines an instance with its step ledger.
type InstanceDetailResponse struct {
	InstanceResponse
	Steps []StepResponse `json:"steps"`
}

// JournalEntryResponse is one journal row in operator queries.
type JournalEntryResponse struct {
	EventName  string          `json:"eventName"`
	InstanceID *uuid.UUID      `json:"instanceId,omitempty"`
	Position   *int            `json:"position,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt string          `json:"occurredAt"`
}

// ArchiveResponse reports how many instances an archive call retired.
type ArchiveResponse struct {
	Archived int `json:"archived"`
}

// APIKeyResponse is returned when listing or creating API keys.
type APIKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	IsActive  bool      `json:"isActive"`
	CreatedAt string    `json:"createdAt"`
}

// CreateAPIKeyResponse includes the plaintext key (shown only once).
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"` // plaintext, shown only once
}

// CreateAPIKeyRequest is the request body for creating a new API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

func toInstanceResponse(inst state.Instance) InstanceResponse {
	return InstanceResponse{
		ID:           inst.ID,
		RecipientKey: inst.RecipientKey,
		Email:        inst.Email,
		DisplayName:  inst.DisplayName,
		OrgName:      inst.OrgName,
		SequenceType: string(inst.SequenceType),
		Segment:      inst.Segment,
		Mode:         inst.Mode,
		Counters: CountersResponse{
			Red:    inst.Counters.Red,
			Orange: inst.Counters.Orange,
			Yellow: inst.Counters.Yellow,
			Green:  inst.Counters.Green,
		},
		AnchorAt:  formatTime(inst.AnchorAt),
		Status:    string(inst.Status),
		CreatedAt: formatTime(inst.CreatedAt),
		UpdatedAt: formatTime(inst.UpdatedAt),
	}
}

func toStepResponse(step state.StepRecord) StepResponse {
	return StepResponse{
		Position:    step.Position,
		TemplateRef: step.TemplateRef,
		FireAt:      formatTime(step.FireAt),
		Status:      string(step.Status),
		Attempts:    step.Attempts,
		SentAt:      formatTimeRef(step.SentAt),
		SentBy:      step.SentBy,
		MessageID:   step.MessageID,
		LastError:   step.LastError,
	}
}

func toJournalResponse(rec journal.Record) JournalEntryResponse {
	return JournalEntryResponse{
		EventName:  rec.EventName,
		InstanceID: rec.InstanceID,
		Position:   rec.Position,
		Payload:    rec.Payload,
		OccurredAt: formatTime(rec.OccurredAt),
	}
}

func toAPIKeyResponse(key APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		IsActive:  key.IsActive,
		CreatedAt: formatTime(key.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimeRef(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTime(*t)
	return &formatted
}
