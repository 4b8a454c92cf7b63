package db

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordExecute(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	store := newTestStore(t, engineFactories(t)["git"], Options{Metrics: metrics})
	ctx := context.Background()

	require.True(t, store.Execute(ctx, "INSERT INTO saved_items", japan()).Success)
	require.True(t, store.Execute(ctx, "INSERT INTO saved_items", france()).Success)
	require.True(t, store.Execute(ctx, "SELECT * FROM saved_items").Success)
	require.False(t, store.Execute(ctx, "DELETE FROM saved_items").Success)
	require.False(t, store.Execute(ctx, "DROP TABLE saved_items").Success)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.queries.WithLabelValues("INSERT", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.queries.WithLabelValues("SELECT", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.queries.WithLabelValues("UNPARSED", "unsafe_operation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.queries.WithLabelValues("UNPARSED", "syntax_error")))
	// two rows written back plus two rows read
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.rows.WithLabelValues("INSERT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.rows.WithLabelValues("SELECT")))

	assert.Equal(t, 3, testutil.CollectAndCount(metrics.duration))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.observe("SELECT", Success(nil, ""), 0)
	})
}
