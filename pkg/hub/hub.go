package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/pkg/tracking"
)

// Hub owns the subscriber set. All membership changes happen on the Run
// goroutine; the mutex only guards reads from other goroutines.
type Hub struct {
	name   string
	logger *slog.Logger

	subscribers map[*subscriber]struct{}
	broadcast   chan []byte
	register    chan *subscriber
	unregister  chan *subscriber
	done        chan struct{}

	mu      sync.RWMutex
	dropped uint64
}

// New creates a hub. Call Run before serving subscribers.
func New(name string) *Hub {
	return &Hub{
		name:        name,
		logger:      log.Component("hub").With("hub", name),
		subscribers: make(map[*subscriber]struct{}),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		done:        make(chan struct{}),
	}
}

// Run fans frames out until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.subscribers {
				h.remove(s)
			}
			h.mu.Unlock()
			return

		case s := <-h.register:
			h.mu.Lock()
			h.subscribers[s] = struct{}{}
			n := len(h.subscribers)
			h.mu.Unlock()
			h.logger.Info("subscriber connected", "subscribers", n)

		case s := <-h.unregister:
			h.mu.Lock()
			h.remove(s)
			n := len(h.subscribers)
			h.mu.Unlock()
			h.logger.Info("subscriber disconnected", "subscribers", n)

		case data := <-h.broadcast:
			h.mu.Lock()
			for s := range h.subscribers {
				select {
				case s.frames <- data:
				default:
					h.remove(s)
					h.logger.Warn("disconnected slow subscriber")
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held. Removing twice is a no-op.
func (h *Hub) remove(s *subscriber) {
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.frames)
	}
}

// Publish queues a frame for every subscriber. It never blocks; when the
// hub is saturated the frame is counted as dropped.
func (h *Hub) Publish(t Telemetry) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
		h.logger.Debug("broadcast queue full, dropping frame", "type", t.Type)
	}
	return nil
}

// Observe implements tracking.Observer.
func (h *Hub) Observe(ev tracking.Event) {
	if err := h.Publish(Telemetry{Type: TelemetryRunEvent, Event: &ev}); err != nil {
		h.logger.Warn("encode run event", "error", err)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many frames were discarded at the hub.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
