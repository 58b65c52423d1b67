// Package livefeed streams engine events to connected operators over
// Server-Sent Events. The hub observes the same bus the journal does, so
// whatever an operator watches live is exactly what the journal persists.
package livefeed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gin-gonic/gin"

	"sequencer_backend/internal/events"
	"sequencer_backend/platform/logger"
)

// frame is one rendered SSE message: the event name plus its JSON payload.
type frame struct {
	name string
	data string
}

// client represents a connected SSE subscriber
type client struct {
	events chan frame
}

// Hub manages SSE connections and fans engine events out to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     *logger.Logger
}

// NewHub creates an empty hub. Subscribers attach through Handler.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
	}
}

// addClient registers a new subscriber connection
func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
}

// removeClient unregisters a subscriber connection
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.events)
	}
}

// Handle renders the event once and offers it to every subscriber. A slow
// subscriber drops frames rather than stalling the bus, and a render failure
// is logged and swallowed: the feed observes the pipeline, it must never
// stall it.
func (h *Hub) Handle(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("livefeed render failed", "event", event.EventName(), "error", err)
		return nil
	}

	f := frame{name: event.EventName(), data: string(data)}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.events <- f:
		default:
			h.log.Warn("livefeed subscriber buffer full, dropping frame", "event", f.name)
		}
	}
	return nil
}

// subscriberCount reports how many connections are attached.
func (h *Hub) subscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Handler returns a Gin handler that holds an SSE connection open until the
// operator disconnects or the hub closes.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			events: make(chan frame, 32),
		}
		h.addClient(cl)
		defer h.removeClient(cl)

		c.SSEvent("connected", gin.H{"subscribers": h.subscriberCount()})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case f, ok := <-cl.events:
				if !ok {
					return
				}
				c.SSEvent(f.name, f.data)
				c.Writer.Flush()
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.events)
	}
	h.clients = make(map[*client]struct{})
}
