package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ledger. Every method is safe
// to call on a nil *Metrics so services can run without instrumentation.
type Metrics struct {
	Registrations   prometheus.Counter
	StatusChanges   *prometheus.CounterVec
	TokensCreated   prometheus.Counter
	SupplyMinted    prometheus.Counter
	Transfers       *prometheus.CounterVec
	FailedOps       *prometheus.CounterVec
	ProposeDuration prometheus.Histogram
}

// New registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "tracechain_registrations_total",
			Help: "Total number of role requests accepted into the registry",
		}),
		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracechain_status_changes_total",
			Help: "Registration status changes by resulting status",
		}, []string{"status"}),
		TokensCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "tracechain_tokens_created_total",
			Help: "Total number of tokens minted",
		}),
		SupplyMinted: f.NewCounter(prometheus.CounterOpts{
			Name: "tracechain_supply_minted_total",
			Help: "Sum of total supply across minted tokens",
		}),
		Transfers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracechain_transfers_total",
			Help: "Transfers by lifecycle step (proposed, accepted, rejected)",
		}, []string{"step"}),
		FailedOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracechain_failed_operations_total",
			Help: "Failed ledger operations by operation and error code",
		}, []string{"operation", "code"}),
		ProposeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracechain_propose_duration_seconds",
			Help:    "Duration of Propose operations (balance lock critical path)",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
	}
}

func (m *Metrics) IncrementRegistrations() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}

func (m *Metrics) IncrementStatusChange(status string) {
	if m == nil {
		return
	}
	m.StatusChanges.WithLabelValues(status).Inc()
}

// RecordTokenCreated counts a mint and its supply.
func (m *Metrics) RecordTokenCreated(supply int64) {
	if m == nil {
		return
	}
	m.TokensCreated.Inc()
	m.SupplyMinted.Add(float64(supply))
}

func (m *Metrics) IncrementTransfer(step string) {
	if m == nil {
		return
	}
	m.Transfers.WithLabelValues(step).Inc()
}

func (m *Metrics) IncrementFailure(operation, code string) {
	if m == nil {
		return
	}
	m.FailedOps.WithLabelValues(operation, code).Inc()
}

// ObservePropose records the duration of a Propose call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObservePropose(start time.Time) {
	if m == nil {
		return
	}
	m.ProposeDuration.Observe(time.Since(start).Seconds())
}
