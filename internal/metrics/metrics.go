package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversion results
const (
	ResultConverted = "converted"
	ResultNotLazy   = "not_lazy"
	ResultFailed    = "failed"
)

// Metrics provides observability for the lazy user lifecycle
type Metrics struct {
	LazyUsersCreated  prometheus.Counter
	LazyCreateFailed  prometheus.Counter
	Conversions       *prometheus.CounterVec
	BlacklistedAgents prometheus.Counter
}

// New creates Metrics registered on reg.
// A nil reg creates unregistered collectors, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LazyUsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "lazysignup_lazy_users_created_total",
			Help: "Total number of lazy users created",
		}),
		LazyCreateFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "lazysignup_lazy_user_create_failures_total",
			Help: "Total number of failed lazy user creations",
		}),
		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lazysignup_conversions_total",
			Help: "Lazy to real conversions by result",
		}, []string{"result"}),
		BlacklistedAgents: factory.NewCounter(prometheus.CounterOpts{
			Name: "lazysignup_blacklisted_requests_total",
			Help: "Requests refused a lazy user because of their user agent",
		}),
	}
}

// IncrementLazyCreated records a successful lazy user creation
func (m *Metrics) IncrementLazyCreated() {
	m.LazyUsersCreated.Inc()
}

// IncrementLazyCreateFailed records a failed lazy user creation
func (m *Metrics) IncrementLazyCreateFailed() {
	m.LazyCreateFailed.Inc()
}

// ObserveConversion records a conversion attempt outcome
func (m *Metrics) ObserveConversion(result string) {
	m.Conversions.WithLabelValues(result).Inc()
}

// IncrementBlacklisted records a request skipped by the classifier
func (m *Metrics) IncrementBlacklisted() {
	m.BlacklistedAgents.Inc()
}
