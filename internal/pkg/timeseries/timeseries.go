// Package timeseries aligns scalar, list and CSV backed inputs to the time
// index of a model.
package timeseries

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Kind selects whether a series is sampled on time points or on intervals.
type Kind int

const (
	// Interval series have one value per time step (flows, demands, prices).
	Interval Kind = iota
	// Point series have one value per time point (storage levels).
	Point
)

func (k Kind) String() string {
	if k == Point {
		return "point"
	}
	return "interval"
}

// FilePrefix marks a CSV specifier of the form FILE:path:column.
const FilePrefix = "FILE:"

// TimeIndex is a regular grid of Steps intervals starting at Start.
type TimeIndex struct {
	Start time.Time
	Freq  time.Duration
	Steps int
}

// Points is the number of time points, one more than the number of steps.
func (ti TimeIndex) Points() int { return ti.Steps + 1 }

// StepHours is the length of one step in hours.
func (ti TimeIndex) StepHours() float64 { return ti.Freq.Hours() }

// Times lists the time points.
func (ti TimeIndex) Times() []time.Time {
	out := make([]time.Time, ti.Points())
	for i := range out {
		out[i] = ti.Start.Add(time.Duration(i) * ti.Freq)
	}
	return out
}

// Validate checks the index describes at least one step.
func (ti TimeIndex) Validate() error {
	if ti.Steps < 1 {
		return fmt.Errorf("time index needs at least one step, got %d", ti.Steps)
	}
	if ti.Freq <= 0 {
		return fmt.Errorf("time index frequency must be positive, got %s", ti.Freq)
	}
	return nil
}

// Handler resolves series specifiers against a time index. CSV files are
// read once and cached by path.
type Handler struct {
	index   TimeIndex
	baseDir string

	mux   sync.Mutex
	cache map[string]dataframe.DataFrame
}

// NewHandler returns a Handler; relative CSV paths resolve against baseDir.
func NewHandler(index TimeIndex, baseDir string) *Handler {
	return &Handler{
		index:   index,
		baseDir: baseDir,
		cache:   make(map[string]dataframe.DataFrame),
	}
}

// Index returns the time index of the handler.
func (h *Handler) Index() TimeIndex { return h.index }

// Length is the expected series length for kind.
func (h *Handler) Length(kind Kind) int {
	if kind == Point {
		return h.index.Points()
	}
	return h.index.Steps
}

// Get resolves spec into a series of the length required by kind. Scalars
// are broadcast; slices must match exactly.
func (h *Handler) Get(spec interface{}, kind Kind) ([]float64, error) {
	n := h.Length(kind)
	switch v := spec.(type) {
	case nil:
		return nil, fmt.Errorf("missing %s series", kind)
	case float64:
		return Broadcast(v, n), nil
	case float32:
		return Broadcast(float64(v), n), nil
	case int:
		return Broadcast(float64(v), n), nil
	case int64:
		return Broadcast(float64(v), n), nil
	case []float64:
		return checkLength(v, n, kind)
	case []int:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return checkLength(out, n, kind)
	case []interface{}:
		out := make([]float64, len(v))
		for i, x := range v {
			f, ok := toFloat(x)
			if !ok {
				return nil, fmt.Errorf("series element %d has non-numeric type %T", i, x)
			}
			out[i] = f
		}
		return checkLength(out, n, kind)
	case string:
		if !strings.HasPrefix(v, FilePrefix) {
			return nil, fmt.Errorf("unsupported series specifier %q", v)
		}
		values, err := h.readColumn(strings.TrimPrefix(v, FilePrefix))
		if err != nil {
			return nil, err
		}
		return checkLength(values, n, kind)
	default:
		return nil, fmt.Errorf("unsupported series specifier of type %T", spec)
	}
}

// Broadcast repeats v n times.
func Broadcast(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func checkLength(values []float64, n int, kind Kind) ([]float64, error) {
	if len(values) != n {
		return nil, fmt.Errorf("%s series has length %d, expected %d", kind, len(values), n)
	}
	out := make([]float64, n)
	copy(out, values)
	return out, nil
}

func toFloat(x interface{}) (float64, bool) {
	switch v := x.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// readColumn parses "path:column". The column is split at the last colon so
// paths containing colons still work.
func (h *Handler) readColumn(spec string) ([]float64, error) {
	sep := strings.LastIndex(spec, ":")
	if sep <= 0 || sep == len(spec)-1 {
		return nil, fmt.Errorf("file specifier %q must be FILE:path:column", FilePrefix+spec)
	}
	path, column := spec[:sep], spec[sep+1:]
	if !filepath.IsAbs(path) && h.baseDir != "" {
		path = filepath.Join(h.baseDir, path)
	}

	df, err := h.frame(path)
	if err != nil {
		return nil, err
	}

	col := df.Col(column)
	if col.Err != nil {
		return nil, fmt.Errorf("column %q in %s: %w", column, path, col.Err)
	}
	if col.Type() != series.Float && col.Type() != series.Int {
		return nil, fmt.Errorf("column %q in %s is not numeric", column, path)
	}
	return col.Float(), nil
}

func (h *Handler) frame(path string) (dataframe.DataFrame, error) {
	h.mux.Lock()
	defer h.mux.Unlock()

	if df, ok := h.cache[path]; ok {
		return df, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("reading %s: %w", path, df.Err)
	}
	h.cache[path] = df
	return df, nil
}
