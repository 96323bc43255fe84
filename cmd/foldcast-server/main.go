package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"foldcast/internal/api"
	"foldcast/internal/config"
	"foldcast/internal/engine"
	"foldcast/internal/store"
	"foldcast/internal/telemetry"
	"foldcast/internal/util"
)

func main() {
	cfgPath := "config/foldcast.yaml"
	if p := os.Getenv("FOLDCAST_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ps := store.NewParquetStore(cfg.Storage.DataDir)
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run history: %v", err)
	}
	defer runs.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng := engine.NewEngine(
		engine.WithLogger(logger.With("component", "engine")),
		engine.WithMetrics(telemetry.New(reg)),
	)
	svc := api.NewService(eng,
		api.WithDatasets(ps),
		api.WithFoldStore(ps),
		api.WithRunStore(runs),
	)
	srv := api.NewServer(cfg, svc, reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("foldcast-server starting",
		"http_port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
		"data_dir", cfg.Storage.DataDir,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("foldcast-server stopped")
}
