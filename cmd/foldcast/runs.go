package main

import (
	"github.com/spf13/cobra"

	"foldcast/internal/api"
)

func (a *app) runsCmd() *cobra.Command {
	var (
		limit     int
		showFolds bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "runs [ID]",
		Short: "List recorded runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := a.service(true)
			if err != nil {
				return err
			}
			defer closer()

			if len(args) == 1 {
				run, err := svc.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				view := api.NewRunView(*run, true)
				if asJSON {
					return writeJSON(a.out, view)
				}
				printRunHeader(a.out, view)
				printResult(a.out, *view.Result, showFolds)
				return nil
			}

			runs, err := svc.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			views := make([]api.RunView, 0, len(runs))
			for _, r := range runs {
				views = append(views, api.NewRunView(r, false))
			}
			if asJSON {
				return writeJSON(a.out, views)
			}
			printRuns(a.out, views)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&showFolds, "folds", false, "print per-fold metrics")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
