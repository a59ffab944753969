package metrics

import (
	"maps"
	"sync"
)

// Counter names recorded by the relay.
const (
	Joins               = "joins"
	Leaves              = "leaves"
	Disconnects         = "disconnects"
	CallsForwarded      = "calls_forwarded"
	AnswersForwarded    = "answers_forwarded"
	CandidatesForwarded = "candidates_forwarded"
	RoutingMisses       = "routing_misses"
	RoomFull            = "room_full"
	RateLimited         = "rate_limited"
	BadPayload          = "bad_payload"
	BackpressureKicks   = "backpressure_kicks"
	FramesDropped       = "frames_dropped"
	IdentityDisplaced   = "identity_displaced"
)

// Metrics is a concurrency-safe counter registry. A nil *Metrics discards
// everything.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) { m.Add(name, 1) }

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.m)
}
