package foldcast

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"foldcast/internal/api"
	"foldcast/internal/config"
	"foldcast/internal/engine"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := api.NewService(engine.NewEngine(engine.WithLogger(log)))

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	api.NewGRPCServer(svc, config.Default(), log).RegisterGRPC(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientRun(t *testing.T) {
	c := newTestClient(t)

	req := map[string]any{
		"dataset": "fixture",
		"backtest": map[string]any{
			"initial_train_size": 45,
			"test_size":          5,
			"step":               5,
			"workers":            2,
		},
		"estimator": map[string]any{"name": "linear-ar", "lags": 3, "alpha": 1.0},
	}
	var res api.ResultView
	if err := c.Run(context.Background(), req, &res); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Length != 50 || len(res.Folds) != 2 || res.FailedFolds != 0 {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := res.Global["mean_absolute_error"]; !ok {
		t.Errorf("global metrics = %v", res.Global)
	}
}

func TestClientPlan(t *testing.T) {
	c := newTestClient(t)

	var plan api.PlanView
	err := c.Plan(context.Background(), map[string]any{
		"dataset":  "fixture",
		"backtest": map[string]any{"initial_train_size": 40, "test_size": 5, "step": 5},
	}, &plan)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Folds) != 2 || plan.Folds[0].TestStart != 40 || len(plan.Series) != 2 {
		t.Errorf("plan = %+v", plan)
	}
}

func TestClientError(t *testing.T) {
	c := newTestClient(t)
	err := c.Run(context.Background(), map[string]any{"dataset": "nope"}, nil)
	if status.Code(err) != codes.NotFound {
		t.Errorf("Run error = %v, want NotFound", err)
	}
}

func TestNewClientDoesNotOwnConn(t *testing.T) {
	c := NewClient(nil)
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
