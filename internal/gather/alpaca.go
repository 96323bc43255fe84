package gather

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // Session dates need America/New_York everywhere.

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"foldcast/internal/series"
	"foldcast/internal/store"
	"foldcast/internal/util"
)

var _ Source = (*AlpacaSource)(nil)

// BarsClient is the subset of the Alpaca market-data client used by
// AlpacaSource.
type BarsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// newYork is the exchange timezone used to assign daily bars to sessions.
var newYork = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AlpacaSource builds a dataset of daily closing prices, one series per
// symbol, from the Alpaca market-data API. Series are indexed by the Unix
// seconds of the session date at UTC midnight.
type AlpacaSource struct {
	client     BarsClient
	symbols    []string
	dates      DateRange
	feed       string
	batchSize  int
	limiter    *util.RateLimiter
	attempts   int
	retryDelay time.Duration
	log        *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource configured with the given Alpaca
// credentials, symbols and fetch parameters.
func NewAlpacaSource(apiKey, apiSecret, dataURL string, symbols []string, dates DateRange, feed string, batchSize, rateLimitPerMin int) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newAlpacaSource(marketdata.NewClient(opts), symbols, dates, feed, batchSize, rateLimitPerMin)
}

func newAlpacaSource(client BarsClient, symbols []string, dates DateRange, feed string, batchSize, rateLimitPerMin int) *AlpacaSource {
	if batchSize <= 0 {
		batchSize = 100
	}
	if feed == "" {
		feed = "sip"
	}
	syms := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		syms = append(syms, s)
	}
	return &AlpacaSource{
		client:     client,
		symbols:    syms,
		dates:      dates,
		feed:       feed,
		batchSize:  batchSize,
		limiter:    util.NewRateLimiter(rateLimitPerMin),
		attempts:   3,
		retryDelay: time.Second,
		log:        slog.Default().With("source", "alpaca-daily"),
	}
}

// Name returns the source identifier.
func (s *AlpacaSource) Name() string { return "alpaca-daily" }

// Fetch downloads daily bars in batches of symbols and returns one close
// series per symbol that had any bars, in the order the symbols were given.
func (s *AlpacaSource) Fetch(ctx context.Context) (*store.Dataset, error) {
	if len(s.symbols) == 0 {
		return nil, fmt.Errorf("no symbols to fetch")
	}

	closes := make(map[string]map[int64]float64, len(s.symbols))
	for i := 0; i < len(s.symbols); i += s.batchSize {
		batch := s.symbols[i:min(i+s.batchSize, len(s.symbols))]

		var bars map[string][]marketdata.Bar
		err := util.Retry(ctx, s.attempts, s.retryDelay, func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return util.Permanent(err)
			}
			var err error
			bars, err = s.client.GetMultiBars(batch, marketdata.GetBarsRequest{
				TimeFrame: marketdata.OneDay,
				Start:     s.dates.Start,
				End:       s.dates.End,
				Feed:      marketdata.Feed(s.feed),
			})
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("GetMultiBars: %w", err)
		}

		for symbol, symBars := range bars {
			symbol = strings.ToUpper(symbol)
			m := closes[symbol]
			if m == nil {
				m = make(map[int64]float64, len(symBars))
				closes[symbol] = m
			}
			for _, b := range symBars {
				m[sessionKey(b.Timestamp)] = b.Close
			}
		}
		s.log.Debug("batch done", "symbols", len(batch), "hits", len(bars))
	}

	ds := &store.Dataset{}
	for _, sym := range s.symbols {
		m := closes[sym]
		if len(m) == 0 {
			s.log.Warn("no bars", "symbol", sym)
			continue
		}
		ds.Series = append(ds.Series, closeSeries(sym, m))
	}
	if len(ds.Series) == 0 {
		return nil, fmt.Errorf("no bars returned for %d symbols", len(s.symbols))
	}
	s.log.Info("fetched daily closes", "symbols", len(ds.Series), "requested", len(s.symbols))
	return ds, nil
}

// sessionKey maps a bar timestamp to the Unix seconds of its New York
// session date at UTC midnight.
func sessionKey(ts time.Time) int64 {
	y, m, d := ts.In(newYork).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

func closeSeries(id string, m map[int64]float64) series.Series {
	idx := make([]int64, 0, len(m))
	for k := range m {
		idx = append(idx, k)
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })
	vals := make([]float64, len(idx))
	for i, k := range idx {
		vals[i] = m[k]
	}
	return series.Series{ID: id, Index: idx, Values: vals}
}
