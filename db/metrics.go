package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "atlasdb"
	subsystem = "store"

	// outcome label of a successful Execute; failures use the error kind.
	outcomeSuccess = "success"
)

// Metrics records Execute calls. A nil *Metrics records nothing.
type Metrics struct {
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.CounterVec
}

// NewMetrics registers the store metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "queries_total",
				Help:      "Executed queries by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "query_duration_seconds",
				Help:      "Time spent in Execute by command",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"command"},
		),
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rows_returned_total",
				Help:      "Rows returned by successful queries by command",
			},
			[]string{"command"},
		),
	}
}

func (m *Metrics) observe(command string, result Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if !result.Success {
		outcome = result.Kind().String()
	}
	m.queries.WithLabelValues(command, outcome).Inc()
	m.duration.WithLabelValues(command).Observe(elapsed.Seconds())
	if result.Success {
		m.rows.WithLabelValues(command).Add(float64(len(result.Rows)))
	}
}
