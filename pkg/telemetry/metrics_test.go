package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/modules"
	"github.com/openfroyo/nodeflow/pkg/modules/core"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "nodeflow", ListenAddress: ":0"})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	return m
}

func TestMetrics_RecordsEngineActivity(t *testing.T) {
	m := newTestMetrics(t)
	e := engine.New(graph.New("metrics-test"), modules.Default(), engine.Options{Metrics: m})

	a := e.AddNode(core.SetTypeKind, nil)
	b := e.AddNode(core.SetTypeKind, nil)
	if _, err := e.Connect(graph.PortRef{NodeID: a, Key: "output"}, graph.PortRef{NodeID: b, Key: "input"}); err != nil {
		t.Fatalf("Expected connection to succeed, got: %v", err)
	}
	if _, err := e.Connect(graph.PortRef{NodeID: b, Key: "output"}, graph.PortRef{NodeID: a, Key: "input"}); !engine.IsLoop(err) {
		t.Fatalf("Expected loop error, got: %v", err)
	}

	if got := testutil.ToFloat64(m.mutations.WithLabelValues("add_node", "ok")); got != 2 {
		t.Errorf("Expected 2 add_node mutations, got %v", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("connect", "ok")); got != 1 {
		t.Errorf("Expected 1 successful connect, got %v", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("connect", "loop")); got != 1 {
		t.Errorf("Expected 1 connect refused as loop, got %v", got)
	}
	if got := testutil.ToFloat64(m.rejectedConns.WithLabelValues("loop")); got != 1 {
		t.Errorf("Expected 1 rejected connection, got %v", got)
	}

	e.Value(b, nil, "output")
	e.Value(b, nil, "output")
	if got := testutil.ToFloat64(m.queries.WithLabelValues("value", "hit")); got < 1 {
		t.Errorf("Expected at least one value cache hit, got %v", got)
	}

	if err := e.SetParam(a, "type", "String"); err != nil {
		t.Fatalf("Failed to set param: %v", err)
	}
	if got := testutil.CollectAndCount(m.invalidations); got == 0 {
		t.Error("Expected an invalidation to be recorded")
	}
}

func TestMetrics_RecordEvaluation(t *testing.T) {
	m := newTestMetrics(t)
	e := engine.New(graph.New("metrics-test"), modules.Default(), engine.Options{Metrics: m})
	e.AddNode(core.StringKind, map[string]any{"value": "hi"})
	e.AddNode(core.SetTypeKind, map[string]any{"type": "Banana"})

	if _, err := e.Evaluate(t.Context()); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got := testutil.ToFloat64(m.nodes); got != 2 {
		t.Errorf("Expected 2 nodes, got %v", got)
	}
	if got := testutil.ToFloat64(m.mismatches); got != 1 {
		t.Errorf("Expected 1 mismatch, got %v", got)
	}
	if got := testutil.CollectAndCount(m.evaluationDuration); got != 1 {
		t.Errorf("Expected evaluation histogram to be collected, got %d series", got)
	}
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	m.RecordQuery("value", true)
	m.RecordInvalidation("param_changed", 3)
	m.RecordMutation("connect", engine.NewLoopError("cycle"))
	m.RecordRejectedConnection("loop")

	if m.Registry() != nil {
		t.Error("Expected no registry when metrics are disabled")
	}
	if srv := m.StartMetricsServer(); srv != nil {
		t.Error("Expected no server when metrics are disabled")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordMutation("set_param", nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), `nodeflow_mutations_total{operation="set_param",status="ok"} 1`) {
		t.Errorf("Expected mutation counter in scrape, got:\n%s", body)
	}
}

func TestMutationStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"conflict", engine.NewConflictError("no"), "conflict"},
		{"wrapped not found", engine.NewNotFoundError("gone", nil), "not_found"},
		{"plain", io.EOF, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mutationStatus(tt.err); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
