package livefeed

import (
	"sequencer_backend/internal/events"
	apphttp "sequencer_backend/internal/http"
	"sequencer_backend/platform/logger"
)

// Module exposes the live event stream on the operator surface.
type Module struct {
	hub *Hub
}

func NewModule(log *logger.Logger) *Module {
	return &Module{hub: NewHub(log)}
}

// Name returns the module identifier
func (m *Module) Name() string {
	return "livefeed"
}

// RegisterHandlers subscribes the hub to all engine events.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.TriggerAccepted{}.EventName(), m.hub)
	bus.Subscribe(events.SequencePlanned{}.EventName(), m.hub)
	bus.Subscribe(events.StepSent{}.EventName(), m.hub)
	bus.Subscribe(events.StepFailed{}.EventName(), m.hub)
	bus.Subscribe(events.StepSkipped{}.EventName(), m.hub)
	bus.Subscribe(events.StateWriteDegraded{}.EventName(), m.hub)
	bus.Subscribe(events.SequenceSettled{}.EventName(), m.hub)
	bus.Subscribe(events.SequenceArchived{}.EventName(), m.hub)
}

// RegisterRoutes mounts the stream endpoint on the operator group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Ops.GET("/events/stream", m.hub.Handler())
}

// Close disconnects all stream subscribers.
func (m *Module) Close() {
	m.hub.Close()
}

// Ensure Module implements the apphttp.Module interface
var _ apphttp.Module = (*Module)(nil)
