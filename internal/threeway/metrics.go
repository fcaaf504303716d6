package threeway

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts match outcomes and exception lifecycle events. A nil
// Metrics records nothing.
type Metrics struct {
	matches     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	bulkItems   *prometheus.CounterVec
	stale       *prometheus.GaugeVec

	staleMu        sync.Mutex
	staleCompanies map[string]struct{}
}

// NewMetrics registers the collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threeway_match_total",
			Help: "PO/bill evaluations partitioned by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threeway_exception_transitions_total",
			Help: "Match exception state changes partitioned by action.",
		}, []string{"action"}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threeway_bulk_resolve_items_total",
			Help: "Bulk resolve items partitioned by outcome.",
		}, []string{"outcome"}),
		stale: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "threeway_stale_exceptions",
			Help: "Unresolved exceptions older than the stale threshold per company.",
		}, []string{"company"}),
	}
	registerer.MustRegister(m.matches, m.transitions, m.bulkItems, m.stale)
	return m
}

func (m *Metrics) observeMatch(outcome string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeTransition(action Action) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) observeBulkItem(ok bool) {
	if m == nil {
		return
	}
	outcome := "resolved"
	if !ok {
		outcome = "failed"
	}
	m.bulkItems.WithLabelValues(outcome).Inc()
}

// PublishStale replaces the stale gauge with the counts of one scan. Companies
// published by an earlier scan but absent from counts drop to zero.
func (m *Metrics) PublishStale(counts map[string]int) {
	if m == nil {
		return
	}
	m.staleMu.Lock()
	defer m.staleMu.Unlock()
	for company := range m.staleCompanies {
		if _, ok := counts[company]; !ok {
			m.stale.WithLabelValues(company).Set(0)
		}
	}
	seen := make(map[string]struct{}, len(counts))
	for company, count := range counts {
		m.stale.WithLabelValues(company).Set(float64(count))
		seen[company] = struct{}{}
	}
	m.staleCompanies = seen
}
