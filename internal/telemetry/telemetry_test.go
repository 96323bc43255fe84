package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"foldcast/internal/domain"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFold(domain.FoldResult{Status: domain.FoldStatusOK}, time.Millisecond)
	m.ObserveFold(domain.FoldResult{Status: domain.FoldStatusOK}, time.Millisecond)
	m.ObserveFold(domain.FoldResult{Status: domain.FoldStatusFailed, ErrorKind: domain.ErrorKindFoldTimeout}, time.Second)
	m.ObserveRun(nil, time.Second)
	m.ObserveRun(errors.New("boom"), time.Second)

	if got := testutil.ToFloat64(m.folds.WithLabelValues("ok", "")); got != 2 {
		t.Errorf("ok folds = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.folds.WithLabelValues("failed", "fold_timeout")); got != 1 {
		t.Errorf("timed out folds = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("error")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.foldSeconds); n != 2 {
		t.Errorf("fold duration series = %d, want 2", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFold(domain.FoldResult{}, time.Second)
	m.ObserveRun(nil, time.Second)
}
