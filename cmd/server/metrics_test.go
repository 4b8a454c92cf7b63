package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	atlasdb "github.com/nickyhof/AtlasDB"
	"github.com/nickyhof/AtlasDB/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	store, err := atlasdb.Open(config.Default(), zaptest.NewLogger(t), atlasdb.WithMetrics(reg))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if result := store.Execute(context.Background(), "SELECT * FROM saved_items"); !result.Success {
		t.Fatalf("Select failed: %s", result.Message)
	}

	rec := httptest.NewRecorder()
	metricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	want := `atlasdb_store_queries_total{command="SELECT",outcome="success"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("Expected %q in metrics output:\n%s", want, body)
	}
}
