package agentclient

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var breakerOpenGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "medgate_agent_breaker_open",
	Help: "1 while the agent circuit breaker is open.",
})

func init() {
	prometheus.MustRegister(breakerOpenGauge)
}

// CircuitBreaker trips after `threshold` consecutive failures and stays
// open for `openFor`; the next allowed call after the window closes it
// again on success.
type CircuitBreaker struct {
	mu         sync.Mutex
	failures   int
	openedTill time.Time
	threshold  int
	openFor    time.Duration
	open       bool
}

func newBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		threshold: envInt("MEDGATE_CB_THRESHOLD", 5),
		openFor:   time.Duration(envInt("MEDGATE_CB_OPEN_SECONDS", 30)) * time.Second,
	}
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Now().Before(b.openedTill) {
		b.open = true
		breakerOpenGauge.Set(1)
		return false
	}
	if b.open {
		b.open = false
		breakerOpenGauge.Set(0)
	}
	return true
}

func (b *CircuitBreaker) ReportSuccess() {
	b.mu.Lock()
	b.failures = 0
	if b.open {
		b.open = false
		breakerOpenGauge.Set(0)
	}
	b.mu.Unlock()
}

func (b *CircuitBreaker) ReportFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openedTill = time.Now().Add(b.openFor)
		b.failures = 0
		b.open = true
		breakerOpenGauge.Set(1)
	}
}
