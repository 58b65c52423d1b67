package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
	"sequencer_backend/platform/events"
)

// memStore is an in-memory state.Store with the same observable semantics
// as the Postgres repository: one non-archived instance per pair, sticky
// sent status, first-send-wins attribution.
type memStore struct {
	mu        sync.Mutex
	instances map[uuid.UUID]*state.Instance
	steps     map[uuid.UUID]map[int]*state.StepRecord

	recordErrs int // fail this many RecordAttempt calls
	recordErr  error
	getErr     error
}

func newMemStore() *memStore {
	return &memStore{
		instances: make(map[uuid.UUID]*state.Instance),
		steps:     make(map[uuid.UUID]map[int]*state.StepRecord),
	}
}

func (m *memStore) GetOrCreate(_ context.Context, p state.CreateParams) (state.Instance, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range m.instances {
		if inst.RecipientKey == p.RecipientKey && inst.SequenceType == p.SequenceType && inst.Status != state.InstanceArchived {
			return *inst, false, nil
		}
	}

	now := time.Now().UTC()
	inst := &state.Instance{
		ID:           uuid.New(),
		RecipientKey: p.RecipientKey,
		Email:        p.Email,
		DisplayName:  p.DisplayName,
		OrgName:      p.OrgName,
		SequenceType: p.SequenceType,
		Segment:      p.Segment,
		Mode:         p.Mode,
		Counters:     p.Counters,
		AnchorAt:     p.AnchorAt,
		Status:       state.InstanceActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.instances[inst.ID] = inst
	m.steps[inst.ID] = make(map[int]*state.StepRecord)
	return *inst, true, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (state.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return state.Instance{}, m.getErr
	}
	inst, ok := m.instances[id]
	if !ok {
		return state.Instance{}, state.ErrNotFound
	}
	return *inst, nil
}

func (m *memStore) FindActive(_ context.Context, recipientKey string, seqType sequence.Type) (state.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range m.instances {
		if inst.RecipientKey == recipientKey && inst.SequenceType == seqType && inst.Status != state.InstanceArchived {
			return *inst, nil
		}
	}
	return state.Instance{}, state.ErrNotFound
}

func (m *memStore) ListByRecipient(_ context.Context, recipientKey string) ([]state.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []state.Instance
	for _, inst := range m.instances {
		if inst.RecipientKey == recipientKey {
			out = append(out, *inst)
		}
	}
	return out, nil
}

func (m *memStore) InsertSteps(_ context.Context, instanceID uuid.UUID, steps []state.StepInsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPos, ok := m.steps[instanceID]
	if !ok {
		byPos = make(map[int]*state.StepRecord)
		m.steps[instanceID] = byPos
	}
	for _, s := range steps {
		if _, exists := byPos[s.Position]; exists {
			continue
		}
		status := s.Status
		if status == "" {
			status = state.StepPending
		}
		byPos[s.Position] = &state.StepRecord{
			ID:          uuid.New(),
			InstanceID:  instanceID,
			Position:    s.Position,
			TemplateRef: s.TemplateRef,
			FireAt:      s.FireAt,
			Status:      status,
			SentBy:      s.SentBy,
			SentAt:      s.SentAt,
			UpdatedAt:   time.Now().UTC(),
		}
	}
	return nil
}

func (m *memStore) Steps(_ context.Context, instanceID uuid.UUID) ([]state.StepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []state.StepRecord
	for _, rec := range m.steps[instanceID] {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) RecordAttempt(_ context.Context, p state.AttemptParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recordErrs > 0 {
		m.recordErrs--
		return m.recordErr
	}

	rec, ok := m.steps[p.InstanceID][p.Position]
	if !ok {
		return fmt.Errorf("step %d: %w", p.Position, state.ErrNotFound)
	}

	if rec.Status != state.StepSent {
		rec.Status = p.Status
	}
	if p.Status == state.StepSent && rec.SentAt == nil {
		now := time.Now().UTC()
		rec.SentAt = &now
		rec.SentBy = p.SentBy
		rec.MessageID = p.MessageID
	}
	rec.LastError = p.LastError
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) IsAlreadySent(_ context.Context, instanceID uuid.UUID, position int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.steps[instanceID][position]
	return ok && rec.Status == state.StepSent, nil
}

func (m *memStore) SentPositions(_ context.Context, instanceID uuid.UUID) (map[int]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sent := make(map[int]bool)
	for pos, rec := range m.steps[instanceID] {
		if rec.Status == state.StepSent {
			sent[pos] = true
		}
	}
	return sent, nil
}

func (m *memStore) HasUnresolvedEarlier(_ context.Context, instanceID uuid.UUID, position int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pos, rec := range m.steps[instanceID] {
		if pos < position && !rec.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) IsArchived(_ context.Context, instanceID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[instanceID]
	if !ok {
		return false, state.ErrNotFound
	}
	return inst.Status == state.InstanceArchived, nil
}

func (m *memStore) Archive(_ context.Context, recipientKey string, seqType sequence.Type) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	archived := 0
	for _, inst := range m.instances {
		if inst.RecipientKey == recipientKey && inst.SequenceType == seqType && inst.Status != state.InstanceArchived {
			inst.Status = state.InstanceArchived
			archived++
		}
	}
	return archived, nil
}

func (m *memStore) SettleIfComplete(_ context.Context, instanceID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[instanceID]
	if !ok || inst.Status != state.InstanceActive {
		return false, nil
	}
	byPos := m.steps[instanceID]
	if len(byPos) == 0 {
		return false, nil
	}
	for _, rec := range byPos {
		if !rec.Status.Terminal() {
			return false, nil
		}
	}
	inst.Status = state.InstanceSettled
	return true, nil
}

func (m *memStore) ClaimDueSteps(_ context.Context, limit int) ([]state.ClaimedStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var out []state.ClaimedStep
	for instID, byPos := range m.steps {
		inst := m.instances[instID]
		if inst == nil || inst.Status != state.InstanceActive {
			continue
		}
		for _, rec := range byPos {
			if len(out) >= limit {
				return out, nil
			}
			if rec.Status == state.StepPending && !rec.FireAt.After(now) {
				rec.Status = state.StepEnqueued
				out = append(out, state.ClaimedStep{
					StepID:       rec.ID,
					InstanceID:   instID,
					Position:     rec.Position,
					FireAt:       rec.FireAt,
					RecipientKey: inst.RecipientKey,
					SequenceType: inst.SequenceType,
				})
			}
		}
	}
	return out, nil
}

func (m *memStore) ReclaimStuck(_ context.Context, olderThan time.Duration, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	count := 0
	for instID, byPos := range m.steps {
		inst := m.instances[instID]
		if inst == nil || inst.Status != state.InstanceActive {
			continue
		}
		for _, rec := range byPos {
			if count >= limit {
				return count, nil
			}
			if (rec.Status == state.StepEnqueued || rec.Status == state.StepProcessing) &&
				rec.FireAt.Before(cutoff) && rec.UpdatedAt.Before(cutoff) {
				rec.Status = state.StepPending
				count++
			}
		}
	}
	return count, nil
}

func (m *memStore) MarkEnqueued(_ context.Context, instanceID uuid.UUID, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.steps[instanceID][position]
	if ok && rec.Status == state.StepPending {
		rec.Status = state.StepEnqueued
		rec.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *memStore) MarkProcessing(_ context.Context, instanceID uuid.UUID, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.steps[instanceID][position]
	if ok && rec.Status != state.StepSent {
		rec.Status = state.StepProcessing
		rec.Attempts++
		rec.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *memStore) MarkPending(_ context.Context, stepID uuid.UUID, lastError *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, byPos := range m.steps {
		for _, rec := range byPos {
			if rec.ID == stepID && rec.Status != state.StepSent {
				rec.Status = state.StepPending
				rec.LastError = lastError
				rec.UpdatedAt = time.Now().UTC()
			}
		}
	}
	return nil
}

func (m *memStore) stepStatus(instanceID uuid.UUID, position int) state.StepStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.steps[instanceID][position]
	if !ok {
		return ""
	}
	return rec.Status
}

func (m *memStore) markAllSent(instanceID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.steps[instanceID] {
		now := time.Now().UTC()
		rec.Status = state.StepSent
		rec.SentAt = &now
	}
}

var _ state.Store = (*memStore)(nil)

// fakeScheduler records delayed-queue handoffs.
type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledCall
	err   error
}

type scheduledCall struct {
	InstanceID uuid.UUID
	Position   int
	FireAt     time.Time
}

func (f *fakeScheduler) ScheduleStep(_ context.Context, instanceID uuid.UUID, position int, fireAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, scheduledCall{InstanceID: instanceID, Position: position, FireAt: fireAt})
	return nil
}

func (f *fakeScheduler) scheduled() []scheduledCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]scheduledCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// captureBus records events synchronously so tests can assert on them
// without racing the async publish goroutine.
type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBus) PublishSync(_ context.Context, event events.Event) error {
	b.Publish(context.Background(), event)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

func (b *captureBus) has(name string) bool {
	for _, n := range b.names() {
		if n == name {
			return true
		}
	}
	return false
}

var _ events.Bus = (*captureBus)(nil)

// dispatchTestConfig satisfies the dispatch Config composite.
type dispatchTestConfig struct {
	defaultMode string
}

func (c dispatchTestConfig) GetDefaultMode() string { return c.defaultMode }
func (c dispatchTestConfig) GetCatalogPath() string { return "" }

func (c dispatchTestConfig) GetBookingURL() string               { return "https://book.example.com/audit" }
func (c dispatchTestConfig) GetSendTimeout() time.Duration       { return 2 * time.Second }
func (c dispatchTestConfig) GetStateWriteTimeout() time.Duration { return 2 * time.Second }

func (c dispatchTestConfig) GetEmailEnabled() bool       { return true }
func (c dispatchTestConfig) GetEmailProvider() string    { return "smtp" }
func (c dispatchTestConfig) GetBrevoAPIKey() string      { return "" }
func (c dispatchTestConfig) GetSMTPHost() string         { return "mail.example.com" }
func (c dispatchTestConfig) GetSMTPPort() int            { return 587 }
func (c dispatchTestConfig) GetSMTPUsername() string     { return "mailer" }
func (c dispatchTestConfig) GetSMTPPassword() string     { return "secret" }
func (c dispatchTestConfig) GetEmailFromName() string    { return "Audit Team" }
func (c dispatchTestConfig) GetEmailFromAddress() string { return "audit@example.com" }

var errInjected = errors.New("injected failure")
