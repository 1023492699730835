package resolution

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the resolution counters. A nil *Metrics records nothing.
type Metrics struct {
	outcomes       *prometheus.CounterVec
	failures       *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	oracleQueries  prometheus.Counter
	catalogQueries prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depgraph",
			Subsystem: "resolution",
			Name:      "outcomes_total",
			Help:      "Resolutions by outcome",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depgraph",
			Subsystem: "resolution",
			Name:      "failures_total",
			Help:      "Resolution failures by kind",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depgraph",
			Subsystem: "resolution",
			Name:      "cache_lookups_total",
			Help:      "Resolution cache lookups by result (hit, miss)",
		}, []string{"result"}),
		oracleQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "depgraph",
			Subsystem: "resolution",
			Name:      "market_data_queries_total",
			Help:      "Market data availability queries",
		}),
		catalogQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "depgraph",
			Subsystem: "resolution",
			Name:      "catalog_queries_total",
			Help:      "Function catalog candidate queries",
		}),
	}
	for _, c := range []prometheus.Collector{m.outcomes, m.failures, m.cacheLookups, m.oracleQueries, m.catalogQueries} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("resolution: register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) outcome(o Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) failure(kind FailureKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) oracleQuery() {
	if m == nil {
		return
	}
	m.oracleQueries.Inc()
}

func (m *Metrics) catalogQuery() {
	if m == nil {
		return
	}
	m.catalogQueries.Inc()
}
