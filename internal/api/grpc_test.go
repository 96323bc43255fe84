package api

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"foldcast/internal/config"
)

func newTestGRPC() *GRPCServer {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGRPCServer(NewService(quietEngine()), config.Default(), log)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestGRPCRun(t *testing.T) {
	s := newTestGRPC()
	req := mustStruct(t, map[string]any{
		"dataset": "fixture",
		"backtest": map[string]any{
			"initial_train_size": 45,
			"test_size":          5,
			"step":               5,
			"metrics":            []any{"mean_absolute_error", "custom_metric"},
		},
	})

	out, err := s.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	m := out.AsMap()
	if m["length"] != float64(50) {
		t.Errorf("length = %v, want 50", m["length"])
	}
	folds, _ := m["folds"].([]any)
	if len(folds) != 2 {
		t.Fatalf("folds = %v", m["folds"])
	}
	metrics := folds[0].(map[string]any)["metrics"].(map[string]any)
	if metrics["mean_absolute_error"] != metrics["custom_metric"] {
		t.Errorf("fold metrics = %v", metrics)
	}
}

func TestGRPCPlan(t *testing.T) {
	s := newTestGRPC()
	out, err := s.Plan(context.Background(), mustStruct(t, map[string]any{
		"dataset":  "fixture",
		"backtest": map[string]any{"initial_train_size": 40, "test_size": 5, "step": 5, "refit": true},
	}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	folds := out.AsMap()["folds"].([]any)
	if len(folds) != 2 {
		t.Fatalf("folds = %v", folds)
	}
	last := folds[1].(map[string]any)
	if last["train_start"] != float64(0) || last["train_end"] != float64(45) {
		t.Errorf("expanding fold = %v", last)
	}
}

func TestGRPCErrorCodes(t *testing.T) {
	s := newTestGRPC()
	tests := []struct {
		name string
		req  map[string]any
		want codes.Code
	}{
		{"no input", map[string]any{}, codes.InvalidArgument},
		{"bad field type", map[string]any{"dataset": 7}, codes.InvalidArgument},
		{"unknown dataset", map[string]any{"dataset": "nope", "backtest": map[string]any{"initial_train_size": 3}}, codes.NotFound},
		{"unknown estimator", map[string]any{
			"dataset":   "fixture",
			"backtest":  map[string]any{"initial_train_size": 45},
			"estimator": map[string]any{"name": "arima"},
		}, codes.InvalidArgument},
		{"oversized frequency grid", map[string]any{
			"series": []any{
				map[string]any{"id": "a", "index": []any{0, 1}, "values": []any{1, 2}},
				map[string]any{"id": "b", "index": []any{100000}, "values": []any{3}},
			},
			"backtest": map[string]any{"initial_train_size": 1},
			"align":    map[string]any{"frequency": 1},
		}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Run(context.Background(), mustStruct(t, tt.req))
			if got := status.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestRecoverUnary(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	intercept := RecoverUnary(log)
	info := &grpc.UnaryServerInfo{FullMethod: RunMethod}

	_, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if got := status.Code(err); got != codes.Internal {
		t.Errorf("code = %v, want %v (err %v)", got, codes.Internal, err)
	}

	resp, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Errorf("intercept = %v, %v; want ok, nil", resp, err)
	}
}
