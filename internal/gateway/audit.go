package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of a request's trip through the gateway.
type Outcome string

const (
	OutcomeForwarded      Outcome = "forwarded"
	OutcomeRejected       Outcome = "rejected"
	OutcomeUpstreamFailed Outcome = "upstream_failed"
	OutcomeNotFound       Outcome = "not_found"
)

// Event is an immutable, append-only enforcement decision record.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; it must never block or fail a request.
type Event struct {
	ID        string  `json:"id"`
	RequestID string  `json:"request_id"`
	Path      string  `json:"path"`
	Mode      Mode    `json:"mode,omitempty"`
	Outcome   Outcome `json:"outcome"`

	// Code is the error code surfaced to the caller, if any.
	Code string `json:"code,omitempty"`

	// UserID is set only when a token verified successfully.
	UserID string `json:"user_id,omitempty"`

	ClientIP  string    `json:"client_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder is the sink for enforcement decisions.
type Recorder interface {
	Record(e Event)
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}

// MemoryRecorder keeps a bounded ring of recent decisions for ops
// inspection and tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	max    int
	events []Event
}

func NewMemoryRecorder(max int) *MemoryRecorder {
	if max <= 0 {
		max = 1024
	}
	return &MemoryRecorder{max: max}
}

func (r *MemoryRecorder) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if len(r.events) > r.max {
		r.events = r.events[len(r.events)-r.max:]
	}
}

// Events returns a copy of the recorded decisions, oldest first.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
