package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"foldcast/internal/api"
	"foldcast/pkg/foldcast"
)

// requestFlags holds the flags shared by plan and run. Only flags the user
// set override the configuration.
type requestFlags struct {
	dataset string

	initialTrainSize int
	testSize         int
	step             int
	refit            bool
	gap              int
	exogLag          int
	minTrainSize     int
	metrics          []string
	aggregation      string
	continueOnError  bool
	workers          int
	foldTimeout      string

	estimator string
	lags      int
	alpha     float64
	window    int
	period    int

	alignMode string
	frequency int64
	impute    string
}

func (f *requestFlags) register(cmd *cobra.Command, full bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.dataset, "dataset", api.FixtureDataset, "stored dataset to backtest")
	fs.IntVar(&f.initialTrainSize, "initial-train-size", 0, "size of the first training window")
	fs.IntVar(&f.testSize, "test-size", 0, "forecast horizon of each fold")
	fs.IntVar(&f.step, "step", 0, "positions between consecutive folds")
	fs.BoolVar(&f.refit, "refit", false, "expanding training window")
	fs.IntVar(&f.gap, "gap", 0, "positions skipped between train and test")
	fs.StringVar(&f.alignMode, "align", "", "index alignment: union or intersection")
	fs.Int64Var(&f.frequency, "frequency", 0, "expected index spacing, 0 to disable")
	fs.StringVar(&f.impute, "impute", "", "missing-value policy: none, ffill, bfill, zero, mean")
	if !full {
		return
	}
	fs.IntVar(&f.exogLag, "exog-lag", 0, "shift exog features by this many positions")
	fs.IntVar(&f.minTrainSize, "min-train-size", 0, "minimum observed training points per fold")
	fs.StringSliceVar(&f.metrics, "metrics", nil, "metrics to compute")
	fs.StringVar(&f.aggregation, "aggregation", "", "fold aggregation: mean, median or weighted")
	fs.BoolVar(&f.continueOnError, "continue-on-error", false, "record failed folds instead of aborting")
	fs.IntVar(&f.workers, "workers", 0, "folds evaluated concurrently")
	fs.StringVar(&f.foldTimeout, "fold-timeout", "", "per-fold time limit, e.g. 30s")
	fs.StringVar(&f.estimator, "estimator", "", "estimator: naive, mean, seasonal-naive, linear-ar")
	fs.IntVar(&f.lags, "lags", 0, "linear-ar autoregressive lags")
	fs.Float64Var(&f.alpha, "alpha", 0, "linear-ar ridge penalty")
	fs.IntVar(&f.window, "window", 0, "mean estimator window, 0 for all")
	fs.IntVar(&f.period, "period", 0, "seasonal-naive period")
}

func (f *requestFlags) apply(cmd *cobra.Command, req *api.Request) {
	changed := cmd.Flags().Changed
	req.Dataset = f.dataset

	b := &req.Backtest
	if changed("initial-train-size") {
		b.InitialTrainSize = f.initialTrainSize
	}
	if changed("test-size") {
		b.TestSize = f.testSize
	}
	if changed("step") {
		b.Step = f.step
	}
	if changed("refit") {
		b.Refit = f.refit
	}
	if changed("gap") {
		b.Gap = f.gap
	}
	if changed("exog-lag") {
		b.ExogLag = f.exogLag
	}
	if changed("min-train-size") {
		b.MinTrainSize = f.minTrainSize
	}
	if changed("metrics") {
		b.Metrics = f.metrics
	}
	if changed("aggregation") {
		b.Aggregation = f.aggregation
	}
	if changed("continue-on-error") {
		b.ContinueOnError = f.continueOnError
	}
	if changed("workers") {
		b.Workers = f.workers
	}
	if changed("fold-timeout") {
		b.FoldTimeout = f.foldTimeout
	}

	e := &req.Estimator
	if changed("estimator") {
		e.Name = f.estimator
	}
	if changed("lags") {
		e.Lags = f.lags
	}
	if changed("alpha") {
		e.Alpha = f.alpha
	}
	if changed("window") {
		e.Window = f.window
	}
	if changed("period") {
		e.Period = f.period
	}

	if changed("align") {
		req.Align.Mode = f.alignMode
	}
	if changed("frequency") {
		req.Align.Frequency = f.frequency
	}
	if changed("impute") {
		req.Align.Impute = f.impute
	}
}

func (a *app) planCmd() *cobra.Command {
	var (
		flags  requestFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List the folds a backtest would evaluate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := api.NewRequest(a.cfg)
			flags.apply(cmd, &req)

			svc, closer, err := a.service(false)
			if err != nil {
				return err
			}
			defer closer()

			plan, err := svc.Plan(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.out, plan)
			}
			printPlan(a.out, plan)
			return nil
		},
	}
	flags.register(cmd, false)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var (
		flags     requestFlags
		persist   bool
		remote    string
		showFolds bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest",
		Long: `Run a backtest over a stored dataset (or the built-in fixture) and print
per-series and global metrics. With --remote the backtest runs on a
foldcast-server over gRPC.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := api.NewRequest(a.cfg)
			flags.apply(cmd, &req)
			req.Persist = persist

			var view api.ResultView
			start := time.Now()
			if remote != "" {
				c, err := foldcast.Dial(remote)
				if err != nil {
					return err
				}
				defer c.Close()
				if err := c.Run(cmd.Context(), req, &view); err != nil {
					return fmt.Errorf("remote run: %w", err)
				}
			} else {
				svc, closer, err := a.service(persist)
				if err != nil {
					return err
				}
				defer closer()
				out, err := svc.Run(cmd.Context(), req)
				if err != nil {
					return err
				}
				view = out.View()
			}
			a.log.Debug("backtest done", "elapsed", time.Since(start).Round(time.Millisecond))

			if asJSON {
				return writeJSON(a.out, view)
			}
			printResult(a.out, view, showFolds)
			return nil
		},
	}
	flags.register(cmd, true)
	cmd.Flags().BoolVar(&persist, "persist", false, "record the run in the run history")
	cmd.Flags().StringVar(&remote, "remote", "", "gRPC address of a foldcast-server")
	cmd.Flags().BoolVar(&showFolds, "folds", false, "print per-fold metrics")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
