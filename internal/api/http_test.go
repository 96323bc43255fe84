package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"foldcast/internal/config"
	"foldcast/internal/engine"
	"foldcast/internal/store"
	"foldcast/internal/telemetry"
)

func newTestHTTP(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	runs, err := store.NewSQLiteStore(filepath.Join(dir, "foldcast.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	reg := prometheus.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.NewEngine(engine.WithLogger(log), engine.WithMetrics(telemetry.New(reg)))
	parquet := store.NewParquetStore(dir)
	svc := NewService(eng, WithDatasets(parquet), WithRunStore(runs), WithFoldStore(parquet))

	srv := httptest.NewServer(NewHTTPServer(svc, config.Default(), reg, log).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHTTPRunBacktest(t *testing.T) {
	srv := newTestHTTP(t)

	resp := post(t, srv.URL+"/api/v1/backtests", `{
		"series": [{"id": "a", "values": [1, 2, null, 4, 5, 6, null, 8]}],
		"backtest": {"initial_train_size": 4, "test_size": 2, "step": 2},
		"persist": true
	}`)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var view ResultView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if view.RunID == "" || view.Length != 8 || len(view.Folds) != 2 {
		t.Fatalf("view = %+v", view)
	}
	// The missing truth at position 6 comes back as null.
	if yt := view.Folds[1].YTrue; len(yt) != 2 || !math.IsNaN(float64(yt[0])) || yt[1] != 8 {
		t.Errorf("fold 1 y_true = %v", yt)
	}
	if view.Folds[1].Evaluated != 1 {
		t.Errorf("fold 1 evaluated = %d, want 1", view.Folds[1].Evaluated)
	}
	// Defaults fill the fields the request left out.
	if len(view.MetricNames) != 1 || view.MetricNames[0] != "mean_absolute_error" {
		t.Errorf("metric names = %v", view.MetricNames)
	}

	// The run is listed and retrievable.
	listResp, err := http.Get(srv.URL + "/api/v1/runs?limit=5")
	if err != nil {
		t.Fatalf("GET runs: %v", err)
	}
	defer listResp.Body.Close()
	var runs []RunView
	if err := json.NewDecoder(listResp.Body).Decode(&runs); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != view.RunID || runs[0].Dataset != inlineDataset {
		t.Errorf("runs = %+v", runs)
	}

	getResp, err := http.Get(srv.URL + "/api/v1/runs/" + view.RunID)
	if err != nil {
		t.Fatalf("GET run: %v", err)
	}
	defer getResp.Body.Close()
	var run RunView
	if err := json.NewDecoder(getResp.Body).Decode(&run); err != nil {
		t.Fatalf("decoding run: %v", err)
	}
	if run.Result == nil || len(run.Result.Folds) != 2 || len(run.Result.Series) != 1 {
		t.Errorf("run = %+v", run)
	}
}

func TestHTTPPlan(t *testing.T) {
	srv := newTestHTTP(t)
	resp := post(t, srv.URL+"/api/v1/plans", `{"dataset": "fixture", "backtest": {"initial_train_size": 40, "test_size": 5, "step": 5}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var plan PlanView
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if plan.Length != 50 || len(plan.Folds) != 2 || plan.Folds[1].TrainStart != 5 || plan.Folds[1].TestEnd != 50 {
		t.Errorf("plan = %+v", plan)
	}
}

func TestHTTPErrors(t *testing.T) {
	srv := newTestHTTP(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"series": [`, http.StatusBadRequest},
		{"unknown field", `{"dataset": "fixture", "colour": "red"}`, http.StatusBadRequest},
		{"unknown metric", `{"dataset": "fixture", "backtest": {"initial_train_size": 45, "test_size": 5, "step": 5, "metrics": ["r2"]}}`, http.StatusBadRequest},
		{"unknown dataset", `{"dataset": "missing", "backtest": {"initial_train_size": 45}}`, http.StatusNotFound},
		{"oversized frequency grid", `{"series": [{"id": "a", "index": [0, 1], "values": [1, 2]}, {"id": "b", "index": [1125899906842624], "values": [3]}], "backtest": {"initial_train_size": 1}, "align": {"frequency": 1}}`, http.StatusBadRequest},
		{"fold failure", `{"series": [{"id": "a", "values": [null, null, null, 1, 2, 3]}], "backtest": {"initial_train_size": 3}}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/api/v1/backtests", tt.body)
			if resp.StatusCode != tt.want {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.want, body)
			}
		})
	}

	resp, err := http.Get(srv.URL + "/api/v1/runs/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET missing run status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs?limit=abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}
}

func TestHTTPHealthAndMetrics(t *testing.T) {
	srv := newTestHTTP(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	post(t, srv.URL+"/api/v1/backtests", `{"dataset": "fixture", "backtest": {"initial_train_size": 45, "test_size": 5, "step": 5}}`)

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `foldcast_folds_total{kind="",status="ok"} 2`) {
		t.Errorf("metrics output missing fold counter:\n%s", body)
	}
}
