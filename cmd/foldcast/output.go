package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"foldcast/internal/api"
	"foldcast/internal/domain"
)

// styles renders for one writer, so piped output carries no escape codes.
type styles struct {
	header lipgloss.Style
	cell   lipgloss.Style
	dim    lipgloss.Style
	failed lipgloss.Style
	border lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1),
		cell:   r.NewStyle().Padding(0, 1),
		dim:    r.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1),
		failed: r.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1),
		border: r.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

func (s styles) table(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.border).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return s.cell
		})
}

// formatFloat prints v with six significant digits; missing values print as "-".
func formatFloat(v api.Float) string {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "-"
	}
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func span(start, end int) string {
	return fmt.Sprintf("[%d, %d)", start, end)
}

func printPlan(w io.Writer, plan *api.PlanView) {
	st := newStyles(w)
	fmt.Fprintf(w, "%d folds over %d positions, series: %v\n", len(plan.Folds), plan.Length, plan.Series)
	if len(plan.Folds) == 0 {
		return
	}
	t := st.table("fold", "train", "test", "train size")
	for _, f := range plan.Folds {
		t.Row(strconv.Itoa(f.Index), span(f.TrainStart, f.TrainEnd), span(f.TestStart, f.TestEnd), strconv.Itoa(f.TrainSize()))
	}
	fmt.Fprintln(w, t.String())
}

func metricRow(label string, names []string, m map[string]api.Float) []string {
	row := []string{label}
	for _, n := range names {
		v, ok := m[n]
		if !ok {
			row = append(row, "-")
			continue
		}
		row = append(row, formatFloat(v))
	}
	return row
}

func printResult(w io.Writer, v api.ResultView, showFolds bool) {
	st := newStyles(w)

	header := fmt.Sprintf("aggregation=%s failed_folds=%d", v.Aggregation, v.FailedFolds)
	if v.Dataset != "" {
		header = fmt.Sprintf("dataset=%s length=%d %s", v.Dataset, v.Length, header)
	}
	if v.RunID != "" {
		header = "run=" + v.RunID + " " + header
	}
	fmt.Fprintln(w, header)

	summary := st.table(append([]string{"series", "folds", "failed"}, v.MetricNames...)...)
	for _, s := range v.Series {
		row := metricRow(s.SeriesID, v.MetricNames, s.Metrics)
		row = append([]string{row[0], strconv.Itoa(s.Folds), strconv.Itoa(s.FailedFolds)}, row[1:]...)
		summary.Row(row...)
	}
	for _, agg := range []struct {
		label string
		m     map[string]api.Float
	}{{"(global)", v.Global}, {"(pooled)", v.Pooled}} {
		row := metricRow(agg.label, v.MetricNames, agg.m)
		row = append([]string{row[0], "", ""}, row[1:]...)
		summary.Row(row...)
	}
	fmt.Fprintln(w, summary.String())

	if !showFolds || len(v.Folds) == 0 {
		return
	}
	failedRows := make(map[int]bool)
	folds := st.table(append([]string{"series", "fold", "test", "status", "n"}, v.MetricNames...)...)
	for i, f := range v.Folds {
		row := metricRow(f.SeriesID, v.MetricNames, f.Metrics)
		status := string(f.Status)
		if f.Status == domain.FoldStatusFailed {
			status += " (" + string(f.ErrorKind) + ")"
			failedRows[i] = true
		}
		row = append([]string{row[0], strconv.Itoa(f.Fold.Index), span(f.Fold.TestStart, f.Fold.TestEnd), status, strconv.Itoa(f.Evaluated)}, row[1:]...)
		folds.Row(row...)
	}
	folds.StyleFunc(func(row, _ int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return st.header
		case failedRows[row]:
			return st.failed
		}
		return st.cell
	})
	fmt.Fprintln(w, folds.String())
}

func printRunHeader(w io.Writer, v api.RunView) {
	fmt.Fprintf(w, "run %s  %s  dataset=%s estimator=%s\n", v.ID, v.CreatedAt.Local().Format(time.DateTime), v.Dataset, v.Estimator)
}

func printRuns(w io.Writer, runs []api.RunView) {
	st := newStyles(w)
	if len(runs) == 0 {
		fmt.Fprintln(w, st.dim.Render("no runs recorded"))
		return
	}
	t := st.table("id", "created", "dataset", "estimator")
	for _, r := range runs {
		t.Row(r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Dataset, r.Estimator)
	}
	fmt.Fprintln(w, t.String())
}
