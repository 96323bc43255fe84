package api

import (
	"encoding/json"
	"math"
	"time"

	"foldcast/internal/config"
	"foldcast/internal/domain"
	"foldcast/internal/store"
)

// Float is a float64 that encodes NaN and infinities as JSON null and
// decodes null as NaN.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func floats(in []Float) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func toFloats(in []float64) []Float {
	if in == nil {
		return nil
	}
	out := make([]Float, len(in))
	for i, v := range in {
		out[i] = Float(v)
	}
	return out
}

func toFloatMap(in map[string]float64) map[string]Float {
	if in == nil {
		return nil
	}
	out := make(map[string]Float, len(in))
	for k, v := range in {
		out[k] = Float(v)
	}
	return out
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// SeriesInput is an inline target series. An empty Index means positions
// 0..len(Values)-1.
type SeriesInput struct {
	ID     string  `json:"id"`
	Index  []int64 `json:"index,omitempty"`
	Values []Float `json:"values"`
}

// ExogInput is an inline exog table. An empty Index means positions.
type ExogInput struct {
	Index   []int64   `json:"index,omitempty"`
	Names   []string  `json:"names"`
	Columns [][]Float `json:"columns"`
}

// Request describes a backtest or a plan. Either Dataset names a stored
// dataset (or the built-in "fixture") or Series carries the data inline.
type Request struct {
	Dataset   string           `json:"dataset,omitempty"`
	Series    []SeriesInput    `json:"series,omitempty"`
	Exog      *ExogInput       `json:"exog,omitempty"`
	Backtest  config.Backtest  `json:"backtest"`
	Align     config.Align     `json:"align"`
	Estimator config.Estimator `json:"estimator"`
	// Persist records the run in the run history when the service has one.
	Persist bool `json:"persist,omitempty"`
}

// NewRequest returns a Request carrying the backtest, align and estimator
// settings of cfg. Decoding JSON into it overrides only the given fields.
func NewRequest(cfg *config.Config) Request {
	return Request{
		Backtest:  cfg.Backtest,
		Align:     cfg.Align,
		Estimator: cfg.Estimator,
	}
}

// settings is the persisted form of a Request, without inline data.
func (r Request) settings() string {
	b, err := json.Marshal(struct {
		Dataset   string           `json:"dataset,omitempty"`
		Backtest  config.Backtest  `json:"backtest"`
		Align     config.Align     `json:"align"`
		Estimator config.Estimator `json:"estimator"`
	}{r.Dataset, r.Backtest, r.Align, r.Estimator})
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// FoldView is the JSON form of a domain.FoldResult.
type FoldView struct {
	SeriesID  string            `json:"series_id"`
	Fold      domain.Fold       `json:"fold"`
	Status    domain.FoldStatus `json:"status"`
	YTrue     []Float           `json:"y_true,omitempty"`
	YPred     []Float           `json:"y_pred,omitempty"`
	Metrics   map[string]Float  `json:"metrics,omitempty"`
	Evaluated int               `json:"evaluated"`
	ErrorKind domain.ErrorKind  `json:"error_kind,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// SummaryView is the JSON form of a domain.SeriesSummary.
type SummaryView struct {
	SeriesID    string           `json:"series_id"`
	Folds       int              `json:"folds"`
	FailedFolds int              `json:"failed_folds"`
	Metrics     map[string]Float `json:"metrics"`
}

// ResultView is the JSON form of a backtest run.
type ResultView struct {
	RunID       string             `json:"run_id,omitempty"`
	Dataset     string             `json:"dataset,omitempty"`
	Length      int                `json:"length,omitempty"`
	MetricNames []string           `json:"metric_names"`
	Aggregation domain.Aggregation `json:"aggregation"`
	FailedFolds int                `json:"failed_folds"`
	Folds       []FoldView         `json:"folds,omitempty"`
	Series      []SummaryView      `json:"series"`
	Global      map[string]Float   `json:"global"`
	Pooled      map[string]Float   `json:"pooled"`
}

// NewResultView converts res for JSON encoding.
func NewResultView(res *domain.BacktestResult) ResultView {
	v := ResultView{
		MetricNames: res.MetricNames,
		Aggregation: res.Aggregation,
		FailedFolds: res.FailedFolds(),
		Global:      toFloatMap(res.Global),
		Pooled:      toFloatMap(res.Pooled),
	}
	for _, f := range res.Folds {
		v.Folds = append(v.Folds, FoldView{
			SeriesID:  f.SeriesID,
			Fold:      f.Fold,
			Status:    f.Status,
			YTrue:     toFloats(f.YTrue),
			YPred:     toFloats(f.YPred),
			Metrics:   toFloatMap(f.Metrics),
			Evaluated: f.Evaluated,
			ErrorKind: f.ErrorKind,
			Error:     f.Error,
		})
	}
	for _, s := range res.Series {
		v.Series = append(v.Series, SummaryView{
			SeriesID:    s.SeriesID,
			Folds:       s.Folds,
			FailedFolds: s.FailedFolds,
			Metrics:     toFloatMap(s.Metrics),
		})
	}
	return v
}

// PlanView lists the folds a request would evaluate.
type PlanView struct {
	Length int           `json:"length"`
	Series []string      `json:"series"`
	Folds  []domain.Fold `json:"folds"`
}

// RunView is the JSON form of a stored run.
type RunView struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Dataset   string          `json:"dataset"`
	Estimator string          `json:"estimator"`
	Config    json.RawMessage `json:"config,omitempty"`
	Result    *ResultView     `json:"result,omitempty"`
}

// NewRunView converts a stored run for JSON encoding. Listed runs carry no
// result summaries.
func NewRunView(r store.Run, withResult bool) RunView {
	v := RunView{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Dataset:   r.Dataset,
		Estimator: r.Estimator,
	}
	if json.Valid([]byte(r.Config)) {
		v.Config = json.RawMessage(r.Config)
	}
	if withResult && r.Result != nil {
		res := NewResultView(r.Result)
		res.RunID = r.ID
		v.Result = &res
	}
	return v
}
