// Package monitor keeps a live snapshot of agent health. A background loop
// polls the agent on a fixed interval; the SPA reads the snapshot through
// the gateway instead of hitting the agent itself.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arvik-health/medgate/internal/agent"
	"github.com/arvik-health/medgate/internal/mesh"
)

const DefaultInterval = 30 * time.Second

// Clock abstracts time so tests can drive the poll loop deterministically.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// HealthFunc fetches agent health; the client's Health method satisfies it.
type HealthFunc func(ctx context.Context) (agent.HealthResponse, time.Duration, error)

// Snapshot is what GET /api/agent/status returns.
type Snapshot struct {
	Status      string    `json:"status"` // healthy, degraded, disconnected
	CanChat     bool      `json:"can_chat"`
	CanStart    bool      `json:"can_start"`
	ModelLoaded bool      `json:"model_loaded"`
	LastChecked time.Time `json:"last_checked"`
	LatencyMs   int64     `json:"latency_ms"`
	Detail      string    `json:"detail,omitempty"`
}

type Monitor struct {
	health   HealthFunc
	interval time.Duration
	clock    Clock
	bus      mesh.Bus
	log      *slog.Logger
	observe  func(status string)

	mu         sync.RWMutex
	snap       Snapshot
	appliedSeq uint64

	seq     atomic.Uint64
	stop    chan struct{}
	done    chan struct{}
	started bool
}

type Option func(*Monitor)

func WithClock(c Clock) Option       { return func(m *Monitor) { m.clock = c } }
func WithBus(b mesh.Bus) Option      { return func(m *Monitor) { m.bus = b } }
func WithLogger(l *slog.Logger) Option { return func(m *Monitor) { m.log = l } }

// WithObserver registers a callback invoked with the resulting status of
// every poll, including refreshes. Backs the poll counter on /metrics.
func WithObserver(f func(status string)) Option { return func(m *Monitor) { m.observe = f } }

func New(health HealthFunc, interval time.Duration, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		health:   health,
		interval: interval,
		clock:    realClock{},
		log:      slog.Default(),
		snap:     Snapshot{Status: "disconnected", Detail: "not yet polled"},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the poll loop: one poll immediately, then one per
// interval until Stop. Calling Start twice is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		m.poll(context.Background())
		ticker := m.clock.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C():
				m.poll(context.Background())
			}
		}
	}()
}

// Stop tears the loop down and releases its ticker. After Stop returns no
// further polls are issued.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.stop)
	<-m.done
}

// Status returns the latest snapshot.
func (m *Monitor) Status() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Refresh forces an immediate poll and returns the resulting snapshot.
// This backs the UI's retry button after a disconnect.
func (m *Monitor) Refresh(ctx context.Context) Snapshot {
	m.poll(ctx)
	return m.Status()
}

// poll fetches health and applies the outcome last-poll-wins: a result
// from an earlier-started poll never overwrites a later one.
func (m *Monitor) poll(ctx context.Context) {
	seq := m.seq.Add(1)

	timeout := 10 * time.Second
	if m.interval < timeout {
		timeout = m.interval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	health, latency, err := m.health(ctx)

	snap := Snapshot{
		LastChecked: m.clock.Now(),
		LatencyMs:   latency.Milliseconds(),
	}
	switch {
	case err != nil:
		snap.Status = "disconnected"
		snap.Detail = shortReason(err)
	case health.ModelLoaded:
		snap.Status = "healthy"
		snap.CanChat = true
		snap.CanStart = true
		snap.ModelLoaded = true
	default:
		snap.Status = "degraded"
		snap.CanStart = true
		snap.Detail = "model not loaded"
	}

	if m.observe != nil {
		m.observe(snap.Status)
	}

	m.mu.Lock()
	if seq < m.appliedSeq {
		m.mu.Unlock()
		return
	}
	prev := m.snap.Status
	m.appliedSeq = seq
	m.snap = snap
	m.mu.Unlock()

	if prev != snap.Status {
		m.log.Info("agent status changed", "from", prev, "to", snap.Status, "detail", snap.Detail)
		if m.bus != nil {
			_ = mesh.PublishJSON(context.Background(), m.bus, mesh.TopicAgentStatus, snap)
		}
	}
}

// shortReason keeps transport error detail out of anything user-facing
// while leaving enough in the snapshot for operators.
func shortReason(err error) string {
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}
