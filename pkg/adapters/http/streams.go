package http

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/skyscope/internal/logging"
	"github.com/aretw0/skyscope/pkg/explorer"
)

// message is one server-sent event.
type message struct {
	Event string
	Data  string
}

// StreamManager fans explorer events out to the SSE connections of each view.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan message]struct{} // view ID -> set of channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan message]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for the events of viewID. The returned
// function unregisters and closes it.
func (sm *StreamManager) Subscribe(viewID string) (<-chan message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan message, 16)
	if _, ok := sm.subscribers[viewID]; !ok {
		sm.subscribers[viewID] = make(map[chan message]struct{})
	}
	sm.subscribers[viewID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[viewID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, viewID)
				}
			}
		})
	}
}

// Subscribers returns the number of open connections for viewID.
func (sm *StreamManager) Subscribers(viewID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[viewID])
}

// Publish encodes ev and broadcasts it to the subscribers of its view.
func (sm *StreamManager) Publish(ev explorer.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		sm.logger.Error("SSE: encode event", "view_id", ev.ViewID, "err", err)
		return
	}
	sm.Broadcast(ev.ViewID, message{Event: string(ev.Kind), Data: string(data)})
}

// Broadcast delivers msg without blocking; slow clients lose messages.
func (sm *StreamManager) Broadcast(viewID string, msg message) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[viewID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "view_id", viewID, "event", msg.Event)
		}
	}
}
