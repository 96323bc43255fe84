package series

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"foldcast/internal/domain"
)

// AlignMode selects how the master index is derived from the input series.
type AlignMode string

const (
	AlignUnion        AlignMode = "union"
	AlignIntersection AlignMode = "intersection"
)

// Impute selects the missing-value policy applied to target series at
// alignment time. ImputeNone leaves gaps as NaN for the estimator.
type Impute string

const (
	ImputeNone         Impute = "none"
	ImputeForwardFill  Impute = "ffill"
	ImputeBackwardFill Impute = "bfill"
	ImputeZero         Impute = "zero"
	ImputeMean         Impute = "mean"
)

// DefaultGridFactor bounds a frequency grid relative to the input size when
// AlignOptions.MaxLength is zero.
const DefaultGridFactor = 16

// AlignOptions configures Align.
type AlignOptions struct {
	// Mode defaults to AlignUnion.
	Mode AlignMode
	// Frequency is the expected spacing between consecutive index values.
	// When > 0 the master index is a regular grid and series gaps must be
	// multiples of Frequency. Zero disables the check.
	Frequency int64
	// MinLength is the minimum master length accepted in intersection mode.
	MinLength int
	// MaxLength caps a frequency grid. Zero allows up to
	// DefaultGridFactor times the number of input points.
	MaxLength int
	// Impute defaults to ImputeNone.
	Impute Impute
}

// Set is an immutable collection of series aligned on a master index, plus
// an optional exog table on the same index. It is safe for concurrent reads.
type Set struct {
	index  []int64
	ids    []string
	rank   map[string]int
	values [][]float64
	exog   *ExogTable
}

// Align normalizes the input series onto one master index. Series order is
// preserved. The exog table, when given, must already carry exactly the
// master index; it is never reindexed.
func Align(input []Series, exog *ExogTable, opts AlignOptions) (*Set, error) {
	if opts.Mode == "" {
		opts.Mode = AlignUnion
	}
	if opts.Impute == "" {
		opts.Impute = ImputeNone
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: no series given", domain.ErrMisalignedSeries)
	}

	rank := make(map[string]int, len(input))
	for i, s := range input {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: series %d has an empty id", domain.ErrMisalignedSeries, i)
		}
		if _, dup := rank[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate series id %q", domain.ErrMisalignedSeries, s.ID)
		}
		rank[s.ID] = i
		if err := checkSeries(s); err != nil {
			return nil, err
		}
	}

	var origin int64
	if opts.Frequency > 0 {
		origin = input[0].Index[0]
		for _, s := range input[1:] {
			origin = min(origin, s.Index[0])
		}
		for _, s := range input {
			if err := checkFrequency(s, origin, opts.Frequency); err != nil {
				return nil, err
			}
		}
	}

	limit := opts.MaxLength
	if limit <= 0 {
		points := 0
		for _, s := range input {
			points += len(s.Index)
		}
		limit = DefaultGridFactor * points
	}

	var master []int64
	var err error
	switch opts.Mode {
	case AlignUnion:
		master, err = unionIndex(input, opts.Frequency, limit)
	case AlignIntersection:
		master, err = intersectIndex(input, opts.Frequency, limit)
		if err != nil {
			break
		}
		if len(master) == 0 || len(master) < opts.MinLength {
			return nil, fmt.Errorf("%w: intersection leaves %d points, need at least %d",
				domain.ErrMisalignedSeries, len(master), max(opts.MinLength, 1))
		}
	}
	if err != nil {
		return nil, err
	}

	set := &Set{
		index:  master,
		ids:    make([]string, len(input)),
		rank:   rank,
		values: make([][]float64, len(input)),
	}
	pos := make(map[int64]int, len(master))
	for i, v := range master {
		pos[v] = i
	}
	for i, s := range input {
		set.ids[i] = s.ID
		vals := make([]float64, len(master))
		for j := range vals {
			vals[j] = math.NaN()
		}
		for k, idx := range s.Index {
			if p, ok := pos[idx]; ok {
				vals[p] = s.Values[k]
			}
		}
		impute(vals, opts.Impute)
		set.values[i] = vals
	}

	if exog != nil {
		if err := exog.validate(); err != nil {
			return nil, err
		}
		if !equalIndex(exog.Index, master) {
			return nil, fmt.Errorf("%w: exog index (%d points) does not match master index (%d points)",
				domain.ErrMisalignedSeries, len(exog.Index), len(master))
		}
		cp, _ := NewExogTable(exog.Index, exog.Names, exog.Columns)
		set.exog = cp
	}
	return set, nil
}

func (o AlignOptions) validate() error {
	switch o.Mode {
	case AlignUnion, AlignIntersection:
	default:
		return fmt.Errorf("%w: unknown align mode %q", domain.ErrConfiguration, o.Mode)
	}
	switch o.Impute {
	case ImputeNone, ImputeForwardFill, ImputeBackwardFill, ImputeZero, ImputeMean:
	default:
		return fmt.Errorf("%w: unknown impute policy %q", domain.ErrConfiguration, o.Impute)
	}
	if o.Frequency < 0 {
		return fmt.Errorf("%w: frequency must be >= 0, got %d", domain.ErrConfiguration, o.Frequency)
	}
	return nil
}

func checkSeries(s Series) error {
	if len(s.Index) != len(s.Values) {
		return fmt.Errorf("%w: series %q has %d index values and %d values",
			domain.ErrMisalignedSeries, s.ID, len(s.Index), len(s.Values))
	}
	if len(s.Index) == 0 {
		return fmt.Errorf("%w: series %q is empty", domain.ErrMisalignedSeries, s.ID)
	}
	for i := 1; i < len(s.Index); i++ {
		if s.Index[i] <= s.Index[i-1] {
			return fmt.Errorf("%w: series %q index not strictly increasing at position %d (%d after %d)",
				domain.ErrMisalignedSeries, s.ID, i, s.Index[i], s.Index[i-1])
		}
	}
	return nil
}

func checkFrequency(s Series, origin, freq int64) error {
	for i, v := range s.Index {
		if (uint64(v)-uint64(origin))%uint64(freq) != 0 {
			return fmt.Errorf("%w: series %q index %d at position %d is off the frequency grid (origin %d, frequency %d)",
				domain.ErrMisalignedSeries, s.ID, v, i, origin, freq)
		}
	}
	return nil
}

func unionIndex(input []Series, freq int64, limit int) ([]int64, error) {
	lo, hi := input[0].Index[0], input[0].Index[len(input[0].Index)-1]
	for _, s := range input[1:] {
		lo = min(lo, s.Index[0])
		hi = max(hi, s.Index[len(s.Index)-1])
	}
	if freq > 0 {
		return grid(lo, hi, freq, limit)
	}

	seen := make(map[int64]struct{})
	var out []int64
	for _, s := range input {
		for _, v := range s.Index {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// intersectIndex returns the common span on the frequency grid when freq > 0,
// otherwise the exact set intersection.
func intersectIndex(input []Series, freq int64, limit int) ([]int64, error) {
	if freq > 0 {
		lo, hi := input[0].Index[0], input[0].Index[len(input[0].Index)-1]
		for _, s := range input[1:] {
			lo = max(lo, s.Index[0])
			hi = min(hi, s.Index[len(s.Index)-1])
		}
		if lo > hi {
			return nil, nil
		}
		return grid(lo, hi, freq, limit)
	}

	counts := make(map[int64]int)
	for _, s := range input {
		for _, v := range s.Index {
			counts[v]++
		}
	}
	var out []int64
	for _, v := range input[0].Index {
		if counts[v] == len(input) {
			out = append(out, v)
		}
	}
	return out, nil
}

// grid lists lo, lo+step, ... up to hi. The span is computed unsigned so
// extreme indexes cannot overflow.
func grid(lo, hi, step int64, limit int) ([]int64, error) {
	steps := (uint64(hi) - uint64(lo)) / uint64(step)
	if steps >= uint64(limit) {
		return nil, fmt.Errorf("%w: frequency %d over [%d, %d] exceeds the %d point grid limit",
			domain.ErrMisalignedSeries, step, lo, hi, limit)
	}
	out := make([]int64, steps+1)
	for i := range out {
		out[i] = lo + int64(i)*step
	}
	return out, nil
}

func equalIndex(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func impute(vals []float64, policy Impute) {
	switch policy {
	case ImputeForwardFill:
		last := math.NaN()
		for i, v := range vals {
			if math.IsNaN(v) {
				vals[i] = last
			} else {
				last = v
			}
		}
	case ImputeBackwardFill:
		next := math.NaN()
		for i := len(vals) - 1; i >= 0; i-- {
			if math.IsNaN(vals[i]) {
				vals[i] = next
			} else {
				next = vals[i]
			}
		}
	case ImputeZero:
		fill(vals, 0)
	case ImputeMean:
		observed := make([]float64, 0, len(vals))
		for _, v := range vals {
			if !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		if len(observed) > 0 {
			fill(vals, stat.Mean(observed, nil))
		}
	}
}

func fill(vals []float64, with float64) {
	for i, v := range vals {
		if math.IsNaN(v) {
			vals[i] = with
		}
	}
}

// Len returns the master index length.
func (s *Set) Len() int { return len(s.index) }

// Index returns a copy of the master index.
func (s *Set) Index() []int64 { return append([]int64(nil), s.index...) }

// IDs returns the series identifiers in insertion order.
func (s *Set) IDs() []string { return append([]string(nil), s.ids...) }

// Rank returns the insertion position of series id, or -1.
func (s *Set) Rank(id string) int {
	if r, ok := s.rank[id]; ok {
		return r
	}
	return -1
}

// HasExog reports whether the set carries exogenous features.
func (s *Set) HasExog() bool { return s.exog != nil && s.exog.Width() > 0 }

// ExogNames returns the exogenous feature names in column order.
func (s *Set) ExogNames() []string {
	if s.exog == nil {
		return nil
	}
	return append([]string(nil), s.exog.Names...)
}

// Slice returns a copy of series id over master positions [start, end).
// Missing positions are NaN; they are never dropped.
func (s *Set) Slice(id string, start, end int) ([]float64, error) {
	r, ok := s.rank[id]
	if !ok {
		return nil, fmt.Errorf("unknown series %q", id)
	}
	if err := s.checkRange(start, end); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.values[r][start:end]...), nil
}

// SliceExog returns exog rows for master positions [start-lag, end-lag), one
// row per position in [start, end). Rows before position 0 are all NaN. It
// returns nil when the set has no exog.
func (s *Set) SliceExog(start, end, lag int) ([][]float64, error) {
	if lag < 0 {
		return nil, fmt.Errorf("exog lag must be >= 0, got %d", lag)
	}
	if err := s.checkRange(start, end); err != nil {
		return nil, err
	}
	if !s.HasExog() {
		return nil, nil
	}

	width := s.exog.Width()
	rows := make([][]float64, end-start)
	for i := range rows {
		p := start - lag + i
		row := make([]float64, width)
		for j := range row {
			if p < 0 {
				row[j] = math.NaN()
			} else {
				row[j] = s.exog.Columns[j][p]
			}
		}
		rows[i] = row
	}
	return rows, nil
}

func (s *Set) checkRange(start, end int) error {
	if start < 0 || end > len(s.index) || start > end {
		return fmt.Errorf("range [%d, %d) outside master index of length %d", start, end, len(s.index))
	}
	return nil
}
