package resilience

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/cryptoctl/tradeengine/internal/apperr"
)

// ServiceSettings configures one named service's circuit breaker. This
// is the network-layer breaker (spec.md §4.6) — a single service
// (e.g. "exchange", "database") trips independently of the others.
// It is distinct from the three-tier STRATEGY/ACCOUNT/SYSTEM breaker
// in internal/breaker, which models domain-level trading halts rather
// than per-dependency failure isolation.
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// DefaultExchangeSettings mirror the teacher's exchange breaker tuning.
func DefaultExchangeSettings() ServiceSettings {
	return ServiceSettings{
		MinRequests:     5,
		FailureRatio:    0.6,
		OpenTimeout:     30 * time.Second,
		HalfOpenMaxReqs: 3,
		CountInterval:   10 * time.Second,
	}
}

// DefaultDatabaseSettings mirror the teacher's database breaker tuning.
func DefaultDatabaseSettings() ServiceSettings {
	return ServiceSettings{
		MinRequests:     10,
		FailureRatio:    0.6,
		OpenTimeout:     15 * time.Second,
		HalfOpenMaxReqs: 5,
		CountInterval:   10 * time.Second,
	}
}

// ServiceBreakers holds one gobreaker.CircuitBreaker per named
// dependency. Services are created lazily on first use so a process
// only pays for the breakers it actually calls through.
type ServiceBreakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	settings map[string]ServiceSettings
	metrics  *breakerMetrics
}

type breakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

var (
	globalBreakerMetrics *breakerMetrics
	breakerMetricsOnce   sync.Once
)

func initBreakerMetrics() *breakerMetrics {
	breakerMetricsOnce.Do(func() {
		globalBreakerMetrics = &breakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "network_circuit_breaker_state",
					Help: "Per-service network circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"service"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "network_circuit_breaker_requests_total",
					Help: "Requests observed by the per-service network circuit breaker",
				},
				[]string{"service", "result"},
			),
		}
	})
	return globalBreakerMetrics
}

// NewServiceBreakers builds an empty registry. Register known services
// up front with RegisterService, or let them default lazily via Call.
func NewServiceBreakers() *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		settings: make(map[string]ServiceSettings),
		metrics:  initBreakerMetrics(),
	}
}

// RegisterService pre-configures settings for a named service before
// first use; otherwise DefaultExchangeSettings is used as the fallback.
func (b *ServiceBreakers) RegisterService(name string, settings ServiceSettings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings[name] = settings
}

func (b *ServiceBreakers) breakerFor(name string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[name]; ok {
		return cb
	}

	settings, ok := b.settings[name]
	if !ok {
		settings = DefaultExchangeSettings()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.HalfOpenMaxReqs,
		Interval:    settings.CountInterval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(serviceName string, from, to gobreaker.State) {
			b.updateMetric(serviceName, to)
		},
	})
	b.breakers[name] = cb
	b.updateMetric(name, cb.State())
	return cb
}

func (b *ServiceBreakers) updateMetric(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 2
	}
	b.metrics.state.WithLabelValues(name).Set(v)
}

// Call executes op through the named service's breaker, translating
// gobreaker's ErrOpenState/ErrTooManyRequests into a BREAKER_TRIGGERED
// apperr so callers don't need to import gobreaker directly.
func (b *ServiceBreakers) Call(service string, op func() (any, error)) (any, error) {
	cb := b.breakerFor(service)
	result, err := cb.Execute(op)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		b.metrics.requests.WithLabelValues(service, "rejected").Inc()
		return nil, apperr.New(apperr.BreakerTriggered, service+" circuit breaker is open")
	}
	if err != nil {
		b.metrics.requests.WithLabelValues(service, "failure").Inc()
		return nil, err
	}
	b.metrics.requests.WithLabelValues(service, "success").Inc()
	return result, nil
}

// State returns the current state name for a service ("closed",
// "open", "half_open"), creating the breaker with default settings if
// it has never been called.
func (b *ServiceBreakers) State(service string) string {
	switch b.breakerFor(service).State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
