package genome

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Box is the five-number summary drawn by a box plot. Low and High are the
// true extremes, not whisker limits.
type Box struct {
	Low    float64 `json:"low"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	High   float64 `json:"high"`
}

// Percentile reads the p-th percentile of sorted. When the rank p/100*n is a
// whole number the two neighbouring values are averaged, otherwise the value
// at the floor of the rank is taken.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	index := p / 100 * float64(n)
	if math.Floor(index) == index {
		i := int(index)
		if i <= 0 {
			return sorted[0]
		}
		if i >= n {
			return sorted[n-1]
		}
		return (sorted[i-1] + sorted[i]) / 2
	}
	return sorted[int(math.Floor(index))]
}

// BoxStats summarises values, ignoring NaN. Infinities are numbers and
// stay in. ok is false when nothing is left.
func BoxStats(values []float64) (Box, bool) {
	data := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		data = append(data, v)
	}
	if len(data) == 0 {
		return Box{}, false
	}
	sort.Float64s(data)

	return Box{
		Low:    floats.Min(data),
		Q1:     Percentile(data, 25),
		Median: Percentile(data, 50),
		Q3:     Percentile(data, 75),
		High:   floats.Max(data),
	}, true
}

// BoxStatsOf accepts loosely typed values as decoded from JSON. Numbers and
// numeric strings are kept; everything else is dropped.
func BoxStatsOf(values []any) (Box, bool) {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := ToFloat(v); ok {
			nums = append(nums, f)
		}
	}
	return BoxStats(nums)
}

// ToFloat converts a JSON-ish scalar to a float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Mean of values; NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return floats.Sum(values) / float64(len(values))
}
