package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"foldcast/internal/api"
	"foldcast/internal/gather"
)

func (a *app) fixtureCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Store the built-in two-series fixture as a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := gather.Import(cmd.Context(), gather.FixtureSource{}, a.parquet(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "stored dataset %s: %d series, %d exog columns\n", name, len(ds.Series), ds.Exog.Width())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", api.FixtureDataset, "dataset name")
	return cmd
}

func (a *app) fetchCmd() *cobra.Command {
	var (
		name      string
		startDate string
		endDate   string
		feed      string
	)
	cmd := &cobra.Command{
		Use:   "fetch SYMBOL...",
		Short: "Download daily closes from Alpaca into a dataset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Alpaca.APIKey == "" || a.cfg.Alpaca.APISecret == "" {
				return errors.New("alpaca credentials are not configured (APCA_API_KEY_ID / APCA_API_SECRET_KEY)")
			}
			f := a.cfg.Fetch
			if cmd.Flags().Changed("start") {
				f.StartDate = startDate
			}
			if cmd.Flags().Changed("end") {
				f.EndDate = endDate
			}
			if cmd.Flags().Changed("feed") {
				f.Feed = feed
			}
			dates, err := gather.ParseDateRange(f.StartDate, f.EndDate)
			if err != nil {
				return err
			}

			src := gather.NewAlpacaSource(
				a.cfg.Alpaca.APIKey,
				a.cfg.Alpaca.APISecret,
				a.cfg.Alpaca.DataURL,
				args,
				dates,
				f.Feed,
				f.BatchSize,
				f.RateLimitPerMin,
			)
			ds, err := gather.Import(cmd.Context(), src, a.parquet(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "stored dataset %s: %d series\n", name, len(ds.Series))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "alpaca", "dataset name")
	cmd.Flags().StringVar(&startDate, "start", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "end", "", "last date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&feed, "feed", "", "Alpaca data feed: sip or iex")
	return cmd
}

func (a *app) datasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List stored datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := a.parquet().ListDatasets(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(a.out, n)
			}
			return nil
		},
	}
}
