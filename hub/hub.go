package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"transcribe-worker/dto"
)

// Sink is one live observer connection. A Write error means the observer is
// gone and the sink is dropped from the hub.
type Sink interface {
	Write(frame []byte) error
}

// Registration identifies a registered sink. Remove is idempotent.
type Registration struct {
	ID     string
	Remove func()
}

type frame struct {
	Type  string        `json:"type"`
	Event *dto.JobEvent `json:"event,omitempty"`
}

// Hub fans job events out to live observer sinks. Frames reach a given sink
// in emission order; dead sinks are pruned silently on the first failed
// write, so broadcasting never fails regardless of how many observers have
// disconnected.
type Hub struct {
	log zerolog.Logger

	mu    sync.Mutex
	sinks map[string]Sink
}

func New(log zerolog.Logger) *Hub {
	return &Hub{
		log:   log,
		sinks: make(map[string]Sink),
	}
}

func (h *Hub) AddClient(sink Sink) Registration {
	id := uuid.NewString()
	h.mu.Lock()
	h.sinks[id] = sink
	h.mu.Unlock()

	return Registration{
		ID: id,
		Remove: func() {
			h.mu.Lock()
			delete(h.sinks, id)
			h.mu.Unlock()
		},
	}
}

// Broadcast pushes one job event to every registered sink.
func (h *Hub) Broadcast(event dto.JobEvent) {
	h.push(frame{Type: "job", Event: &event})
}

// Heartbeat writes an application-level keep-alive frame to every sink, so
// idle connections are not reclaimed by intermediaries. Intended to run on a
// fixed cadence independent of job activity.
func (h *Hub) Heartbeat() {
	h.push(frame{Type: "ping"})
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}

// Reset drops every sink. Operational and test use.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = make(map[string]Sink)
}

func (h *Hub) push(f frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode push frame")
		return
	}

	h.mu.Lock()
	snapshot := make(map[string]Sink, len(h.sinks))
	for id, sink := range h.sinks {
		snapshot[id] = sink
	}
	h.mu.Unlock()

	var dead []string
	for id, sink := range snapshot {
		if err := sink.Write(payload); err != nil {
			dead = append(dead, id)
		}
	}

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, id := range dead {
		delete(h.sinks, id)
	}
	h.mu.Unlock()
	h.log.Debug().Int("removed", len(dead)).Msg("pruned dead observer sinks")
}
