package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	m.RecordAgentCall(ctx, "team-3", 20*time.Millisecond, nil)
	m.RecordAgentCall(ctx, "team-3", 30*time.Millisecond, errors.New("timeout"))
	m.RecordUsage(ctx, "team-3", 100, 40, 0.0009)
	m.RecordUsage(ctx, "team-3", 50, 10, 0.0003)

	data := collect(t, reader)

	calls, ok := data["orchestrator_agent_calls_total"].(metricdata.Sum[int64])
	if !ok || len(calls.DataPoints) != 1 || calls.DataPoints[0].Value != 2 {
		t.Fatalf("agent calls = %+v", data["orchestrator_agent_calls_total"])
	}
	if v, _ := calls.DataPoints[0].Attributes.Value(attribute.Key("agent_id")); v.AsString() != "team-3" {
		t.Errorf("agent_id attribute = %v", v)
	}

	errs, ok := data["orchestrator_agent_errors_total"].(metricdata.Sum[int64])
	if !ok || len(errs.DataPoints) != 1 || errs.DataPoints[0].Value != 1 {
		t.Errorf("agent errors = %+v", data["orchestrator_agent_errors_total"])
	}

	in, ok := data["orchestrator_tokens_input_total"].(metricdata.Sum[int64])
	if !ok || len(in.DataPoints) != 1 || in.DataPoints[0].Value != 150 {
		t.Errorf("input tokens = %+v", data["orchestrator_tokens_input_total"])
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordRun(ctx, time.Second, false)
	m.RecordAgentCall(ctx, "team-1", time.Second, nil)
	m.RecordUsage(ctx, "team-1", 1, 1, 1)
	m.RecordAction(ctx, "notify", true)
	m.RecordStageFailure(ctx, "qa")
}

func TestInitMetrics_Handler(t *testing.T) {
	p, err := InitMetrics("test-service", true)
	if err != nil {
		t.Fatalf("InitMetrics() error = %v", err)
	}
	defer p.Shutdown(context.Background())

	p.Metrics.RecordRun(context.Background(), 150*time.Millisecond, false)

	srv := httptest.NewServer(p.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "orchestrator_runs_total") {
		t.Errorf("metrics output missing orchestrator_runs_total:\n%s", body)
	}
}

func TestInitMetrics_Disabled(t *testing.T) {
	p, err := InitMetrics("test-service", false)
	if err != nil {
		t.Fatalf("InitMetrics() error = %v", err)
	}
	if p.Metrics != nil {
		t.Error("disabled metrics should be nil")
	}

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
