// Package metrics holds the Prometheus collectors exported by quotagate.
//
// All methods are safe to call on a nil *Metrics so components can run
// without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quotagate"

// Decision results recorded by the admission path.
const (
	ResultAllowed       = "allowed"
	ResultThrottled     = "throttled"
	ResultNotConfigured = "not_configured"
	ResultError         = "error"
)

// Consumer message outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomePoison    = "poison"
	OutcomeMissing   = "missing_record"
)

// Metrics groups every collector the service exposes.
type Metrics struct {
	decisions        *prometheus.CounterVec
	publishFailures  prometheus.Counter
	publishDropped   prometheus.Counter
	consumerMessages *prometheus.CounterVec
	storeWrites      *prometheus.CounterVec
	deleteFailures   prometheus.Counter
	leader           prometheus.Gauge
	breakerState     *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by limiter and result.",
		}, []string{"limiter", "result"}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_event_publish_failures_total",
			Help:      "Throttle events that could not be published.",
		}),
		publishDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_event_publish_dropped_total",
			Help:      "Throttle events dropped because too many publishes were in flight.",
		}),
		consumerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_messages_total",
			Help:      "Throttle events handled by the consumer by outcome.",
		}, []string{"outcome"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_store_writes_total",
			Help:      "Quota record writes issued by the consumer.",
		}, []string{"result"}),
		deleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_delete_failures_total",
			Help:      "Queue messages whose deletion failed.",
		}),
		leader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leader",
			Help:      "1 when this node currently holds leadership.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.decisions,
			m.publishFailures,
			m.publishDropped,
			m.consumerMessages,
			m.storeWrites,
			m.deleteFailures,
			m.leader,
			m.breakerState,
		)
	}
	return m
}

func (m *Metrics) Decision(limiter, result string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(limiter, result).Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) PublishDropped() {
	if m == nil {
		return
	}
	m.publishDropped.Inc()
}

func (m *Metrics) ConsumerMessage(outcome string) {
	if m == nil {
		return
	}
	m.consumerMessages.WithLabelValues(outcome).Inc()
}

// StoreWrite records the result of one consumer write pass.
func (m *Metrics) StoreWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) DeleteFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deleteFailures.Add(float64(n))
}

func (m *Metrics) SetLeader(leader bool) {
	if m == nil {
		return
	}
	if leader {
		m.leader.Set(1)
		return
	}
	m.leader.Set(0)
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}
