package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"foldcast/internal/api"
	"foldcast/internal/config"
	"foldcast/internal/engine"
	"foldcast/internal/store"
	"foldcast/internal/util"
)

const version = "0.1.0"

// app carries state shared by all subcommands.
type app struct {
	cfgPath string
	cfg     *config.Config
	out     io.Writer
	errOut  io.Writer
	log     *slog.Logger
}

func defaultConfigPath() string {
	if p := os.Getenv("FOLDCAST_CONFIG"); p != "" {
		return p
	}
	return "config/foldcast.yaml"
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "foldcast",
		Short: "Walk-forward backtesting for time-series forecasters",
		Long: `foldcast splits series into train/test folds, fits a forecaster on each
training window, scores its forecasts and aggregates the metrics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&a.cfgPath, "config", defaultConfigPath(), "path to the YAML config (env FOLDCAST_CONFIG)")

	root.AddCommand(
		a.versionCmd(),
		a.planCmd(),
		a.runCmd(),
		a.fixtureCmd(),
		a.fetchCmd(),
		a.datasetsCmd(),
		a.runsCmd(),
	)
	return root
}

// init loads the configuration and installs the logger. Logs go to errOut
// so command output stays machine-readable.
func (a *app) init() error {
	cfg, err := config.LoadOrDefault(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = util.NewLoggerTo(a.errOut, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(a.log)
	return nil
}

func (a *app) parquet() *store.ParquetStore {
	return store.NewParquetStore(a.cfg.Storage.DataDir)
}

// service builds a local Service. With runs set, run history is opened and
// must be closed by the caller.
func (a *app) service(withRuns bool) (*api.Service, func(), error) {
	eng := engine.NewEngine(engine.WithLogger(a.log.With("component", "engine")))
	ps := a.parquet()
	opts := []api.ServiceOption{api.WithDatasets(ps), api.WithFoldStore(ps)}
	closer := func() {}
	if withRuns {
		runs, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, api.WithRunStore(runs))
		closer = func() { runs.Close() }
	}
	return api.NewService(eng, opts...), closer, nil
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("foldcast %s\n", version)
		},
	}
}
