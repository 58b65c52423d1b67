package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"sequencer_backend/internal/archive"
	"sequencer_backend/internal/email"
	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
	"sequencer_backend/internal/template"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []email.Message
	failures int // fail this many Send calls before succeeding
	err      error
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeSender) messages() []email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]email.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

type captureArchiver struct {
	mu      sync.Mutex
	entries []archive.Entry
}

func (a *captureArchiver) ArchiveMessage(_ context.Context, e archive.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, sequence.Type, int) (template.Resolved, error) {
	return template.Resolved{}, template.ErrTemplateNotFound
}

// seedInstance runs a trigger through the orchestrator so the executor tests
// operate on state shaped exactly like production writes it.
func seedInstance(t *testing.T, store *memStore, trig Trigger) state.Instance {
	t.Helper()
	log, _ := testLogger()
	o := NewOrchestrator(store, sequence.BuiltinCatalog(), &fakeScheduler{}, &captureBus{}, dispatchTestConfig{defaultMode: "testing"}, log)
	res, err := o.HandleTrigger(context.Background(), trig)
	if err != nil {
		t.Fatalf("seed trigger: %v", err)
	}
	inst, err := store.Get(context.Background(), res.InstanceID)
	if err != nil {
		t.Fatalf("seed lookup: %v", err)
	}
	return inst
}

func newTestExecutor(store state.Store, sender email.Sender, arch archive.Archiver) (*Executor, *captureBus) {
	log, _ := testLogger()
	bus := &captureBus{}
	resolver := template.NewResolver(nil, template.NewFallbackTable(), log)
	return NewExecutor(store, resolver, sender, arch, bus, dispatchTestConfig{defaultMode: "testing"}, log), bus
}

func anchorAt(t time.Time) *time.Time { return &t }

func TestExecuteStepSendsRecordsAndArchives(t *testing.T) {
	store := newMemStore()
	inst := seedInstance(t, store, Trigger{
		RecipientKey: "lead-21",
		Email:        "dana@harbor-dental.test",
		DisplayName:  "Dana",
		OrgName:      "Harbor Dental",
		SequenceType: sequence.TypeOnboarding,
		AnchorAt:     anchorAt(time.Now().UTC()),
	})

	sender := &fakeSender{}
	arch := &captureArchiver{}
	exec, bus := newTestExecutor(store, sender, arch)

	if err := exec.ExecuteStep(context.Background(), inst.ID, 1); err != nil {
		t.Fatalf("ExecuteStep returned error: %v", err)
	}

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	if msgs[0].To != "dana@harbor-dental.test" || msgs[0].ToName != "Dana" {
		t.Fatalf("message addressed to %q (%q)", msgs[0].To, msgs[0].ToName)
	}
	if strings.Contains(msgs[0].Subject, "{{") || strings.Contains(msgs[0].Body, "{{") {
		t.Fatalf("rendered copy still contains placeholders:\n%s\n%s", msgs[0].Subject, msgs[0].Body)
	}
	if !strings.Contains(msgs[0].Body, "Dana") {
		t.Fatalf("body is not personalized:\n%s", msgs[0].Body)
	}

	rec := store.steps[inst.ID][1]
	if rec.Status != state.StepSent {
		t.Fatalf("step status = %s, want sent", rec.Status)
	}
	if rec.SentBy != state.SentByEngine || rec.MessageID != "msg-1" || rec.SentAt == nil {
		t.Fatalf("attribution wrong: sent_by=%q message_id=%q sent_at=%v", rec.SentBy, rec.MessageID, rec.SentAt)
	}

	if len(arch.entries) != 1 {
		t.Fatalf("archived %d entries, want 1", len(arch.entries))
	}
	entry := arch.entries[0]
	if entry.Position != 1 || entry.MessageID != "msg-1" || entry.SentBy != string(state.SentByEngine) {
		t.Fatalf("archive entry = %+v", entry)
	}
	if entry.TemplateSource != string(template.SourceFallback) {
		t.Fatalf("archive template source = %q, want fallback", entry.TemplateSource)
	}

	if !bus.has("sequences.step.sent") {
		t.Fatalf("step sent event missing, got %v", bus.names())
	}
}

// One failed email never cancels the rest: the failure is recorded as final
// (so the queue will not re-run it) and later positions still go out.
func TestExecuteStepFailureDoesNotCancelLaterSteps(t *testing.T) {
	store := newMemStore()
	inst := seedInstance(t, store, Trigger{
		RecipientKey: "lead-22",
		Email:        "kim@example.test",
		SequenceType: sequence.TypePostCall,
		AnchorAt:     anchorAt(time.Now().UTC()),
	})

	// Both attempts of position 1 fail.
	sender := &fakeSender{failures: 2, err: errInjected}
	exec, bus := newTestExecutor(store, sender, nil)

	if err := exec.ExecuteStep(context.Background(), inst.ID, 1); err != nil {
		t.Fatalf("recorded failure must not become a retry signal, got %v", err)
	}
	if got := store.stepStatus(inst.ID, 1); got != state.StepFailed {
		t.Fatalf("position 1 status = %s, want failed", got)
	}
	if !bus.has("sequences.step.failed") {
		t.Fatalf("step failed event missing, got %v", bus.names())
	}

	if err := exec.ExecuteStep(context.Background(), inst.ID, 2); err != nil {
		t.Fatalf("position 2 after a failed position 1: %v", err)
	}
	if got := store.stepStatus(inst.ID, 2); got != state.StepSent {
		t.Fatalf("position 2 status = %s, want sent", got)
	}
	if len(sender.messages()) != 1 {
		t.Fatalf("sent %d messages, want 1 (position 2 only)", len(sender.messages()))
	}

	// Failed and sent are both final, so the instance settles.
	if !bus.has("sequences.settled") {
		t.Fatalf("settled event missing, got %v", bus.names())
	}
	got, _ := store.Get(context.Background(), inst.ID)
	if got.Status != state.InstanceSettled {
		t.Fatalf("instance status = %s, want settled", got.Status)
	}
}

// A transient send hiccup is absorbed by the in-call retry.
func TestExecuteStepRetriesSendOnce(t *testing.T) {
	store := newMemStore()
	inst := seedInstance(t, store, Trigger{
		RecipientKey: "lead-23",
		Email:        "rory@example.test",
		SequenceType: sequence.TypePostCall,
		AnchorAt:     anchorAt(time.Now().UTC()),
	})

	sender := &fakeSender{failures: 1, err: errInjected}
	exec, _ := newTestExecutor(store, sender, nil)

	if err := exec.ExecuteStep(context.Background(), inst.ID, 1); err != nil {
		t.Fatalf("ExecuteStep returned error: %v", err)
	}
	if got := store.stepStatus(inst.ID, 1); got != state.StepSent {
		t.Fatalf("position 1 status = %s, want sent after retry", got)
	}
	if len(sender.messages()) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.messages()))
	}
}

// A store outage after the send is reported as degraded, never as unsent.
func TestExecuteStepStoreOutageAfterSendIsDegradedNotRetried(t *testing.T) {
	store := newMemStore()
	inst := seedInstance(t, store, Trigger{
		RecipientKey: "lead-24",
		Email:        "pat@example.test",
		SequenceType: sequence.TypePostCall,
		AnchorAt:     anchorAt(time.Now().UTC()),
	})
	store.recordErrs = 2
	store.recordErr = errInjected

	sender := &fakeSender{}
	log, logged := testLogger()
	bus := &captureBus{}
	resolver := template.NewResolver(nil, template.NewFallbackTable(), log)
	exec := NewExecutor(store, resolver, sender, nil, bus, dispatchTestConfig{defaultMode: "testing"}, log)

	if err := exec.ExecuteStep(context.Background(), inst.ID, 1); err != nil {
		t.Fatalf("a write-back failure must not requeue a delivered email, got %v", err)
	}
	if len(sender.messages()) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.messages()))
	}
	if !bus.has("sequences.state.write_degraded") {
		t.Fatalf("degraded write event missing, got %v", bus.names())
	}
	if !strings.Contains(logged.String(), "degraded_mode") {
		t.Fatalf("write-back failure not logged as degraded mode:\n%s", logged.String())
	}
}

func TestExecuteStepSkipsArchivedInstance(t *testing.T) {
	store := newMemStore()
	inst := seedInstance(t, store, Trigger{
		RecipientKey: "lead-25",
		Email:        "lee@example.test",
		SequenceType: sequence.TypeOnboarding,
		AnchorAt:     anchorAt(time.Now().UTC()),
	})
	if _, err := store.Archive(context.Background(), "lead-25", sequence.TypeOnboarding); err != nil {
		t.Fatalf("archive: %v", err)
	}

	sender := &fakeSender{}
	exec, bus := newTestExecutor(store, sender, nil)

	if err := exec.ExecuteStep(context.Background(), inst.ID, 1); err != nil {
		t.Fatalf("ExecuteStep returned error: %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatalf("archived instance still sent %d messages", len(sender.messages()))
	}
	if got := store.stepStatus(inst.ID, 1); got != state.StepSkipped {
		t.Fatalf("position 1 status = %s, want skipped", got)
	}
	if !bus.has("sequences.step.skipped") {
		t.Fatalf("step skipped event missing, got %v", bus.names())
	}
}

func TestExecuteStepAlreadySentIsNoOp(t *testing.T) {
	store := newMemStore()
	inst := seedInstance(t, store, Trigger{
		RecipientKey: "lead-26",
		Email:        "ash@example.test",
		SequenceType: sequence.TypePostCall,
		AnchorAt:     anchorAt(time.Now().UTC()),
	})
	store.markAllSent(inst.ID)

	sender := &fakeSender{}
	exec, _ := newTestExecutor(store, sender, nil)

	if err := exec.ExecuteStep(context.Background(), inst.ID, 1); err != nil {
		t.Fatalf("ExecuteStep returned error: %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatalf("already sent step was sent again")
	}
}

// Out-of-order delivery: a step whose predecessor has no recorded outcome
// yet is pushed back to the queue, not sent.
func TestExecuteStepHoldsUntilEarlierOutcome(t *testing.T) {
	store := newMemStore()
	inst := seedInstance(t, store, Trigger{
		RecipientKey: "lead-27",
		Email:        "noa@example.test",
		SequenceType: sequence.TypeOnboarding,
		AnchorAt:     anchorAt(time.Now().UTC()),
	})

	sender := &fakeSender{}
	exec, _ := newTestExecutor(store, sender, nil)

	err := exec.ExecuteStep(context.Background(), inst.ID, 2)
	if !errors.Is(err, ErrStepNotReady) {
		t.Fatalf("error = %v, want ErrStepNotReady", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatalf("held step was sent anyway")
	}
	if got := store.stepStatus(inst.ID, 2); got == state.StepSent || got == state.StepFailed {
		t.Fatalf("held step got a final status %s", got)
	}
}

// No remote copy and no static copy is the one unrecoverable resolution
// error, recorded as a final failure.
func TestExecuteStepMissingTemplateIsPermanentFailure(t *testing.T) {
	store := newMemStore()
	inst := seedInstance(t, store, Trigger{
		RecipientKey: "lead-28",
		Email:        "kai@example.test",
		SequenceType: sequence.TypePostCall,
		AnchorAt:     anchorAt(time.Now().UTC()),
	})

	sender := &fakeSender{}
	log, _ := testLogger()
	bus := &captureBus{}
	exec := NewExecutor(store, failingResolver{}, sender, nil, bus, dispatchTestConfig{defaultMode: "testing"}, log)

	if err := exec.ExecuteStep(context.Background(), inst.ID, 1); err != nil {
		t.Fatalf("missing template must not become a retry signal, got %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatalf("step without copy was sent")
	}
	if got := store.stepStatus(inst.ID, 1); got != state.StepFailed {
		t.Fatalf("position 1 status = %s, want failed", got)
	}
	rec := store.steps[inst.ID][1]
	if rec.LastError == nil || !strings.Contains(*rec.LastError, "template") {
		t.Fatalf("last error does not name the template miss: %v", rec.LastError)
	}
}

func TestExecuteStepMissingInstanceDropsTask(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	exec, _ := newTestExecutor(store, sender, nil)

	if err := exec.ExecuteStep(context.Background(), uuid.New(), 1); err != nil {
		t.Fatalf("task for a deleted instance must be dropped, got %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatalf("missing instance still produced a send")
	}
}

// The recipient key doubles as the address when no separate email was given.
func TestExecuteStepFallsBackToRecipientKeyAddress(t *testing.T) {
	store := newMemStore()
	inst := seedInstance(t, store, Trigger{
		RecipientKey: "mel@example.test",
		SequenceType: sequence.TypePostCall,
		AnchorAt:     anchorAt(time.Now().UTC()),
	})

	sender := &fakeSender{}
	exec, _ := newTestExecutor(store, sender, nil)

	if err := exec.ExecuteStep(context.Background(), inst.ID, 1); err != nil {
		t.Fatalf("ExecuteStep returned error: %v", err)
	}
	msgs := sender.messages()
	if len(msgs) != 1 || msgs[0].To != "mel@example.test" {
		t.Fatalf("message went to %v, want recipient key address", msgs)
	}
}
