package genome

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Scored is a record with a marker and a LOD score.
type Scored interface {
	MarkerID() string
	LODScore() float64
}

// FilterPeaksByThreshold keeps records whose LOD is at least threshold,
// preserving order.
func FilterPeaksByThreshold[T Scored](records []T, threshold float64) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if r.LODScore() >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// Range is a closed numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func lodExtent[T Scored](records []T) (lo, hi float64, ok bool) {
	if len(records) == 0 {
		return 0, 0, false
	}
	scores := make([]float64, len(records))
	for i, r := range records {
		scores[i] = r.LODScore()
	}
	return floats.Min(scores), floats.Max(scores), true
}

// SliderBounds is the range offered by the threshold slider:
// [floor(min)-1, ceil(max)+1].
func SliderBounds[T Scored](records []T) (Range, bool) {
	lo, hi, ok := lodExtent(records)
	if !ok {
		return Range{}, false
	}
	return Range{Min: math.Floor(lo) - 1, Max: math.Ceil(hi) + 1}, true
}

// LODDomain is the y axis domain for LOD plots; like SliderBounds but the
// lower end never drops below zero.
func LODDomain[T Scored](records []T) (Range, bool) {
	r, ok := SliderBounds(records)
	if !ok {
		return Range{}, false
	}
	r.Min = math.Max(0, r.Min)
	return r, true
}

// AxisMax rounds a maximum score up to the next integer plus one.
func AxisMax(max float64) float64 {
	return math.Ceil(max) + 1
}

// Differential subtracts the additive scan from the covariate scan point by
// point. Both scans must list the same markers in the same order.
func Differential[T Scored](covariate, additive []T) ([]float64, error) {
	if len(covariate) != len(additive) {
		return nil, fmt.Errorf("%w: %d vs %d records", ErrMismatchedScans, len(covariate), len(additive))
	}
	out := make([]float64, len(covariate))
	for i := range covariate {
		if covariate[i].MarkerID() != additive[i].MarkerID() {
			return nil, fmt.Errorf("%w: record %d is %q vs %q", ErrMismatchedScans, i,
				covariate[i].MarkerID(), additive[i].MarkerID())
		}
		out[i] = covariate[i].LODScore() - additive[i].LODScore()
	}
	return out, nil
}

// LegendEntry is one label placed on a two-column legend grid.
type LegendEntry struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Text  string  `json:"text"`
	Color string  `json:"color"`
}

type Legend struct {
	Name    string        `json:"name"`
	Height  int           `json:"height"`
	XDomain [2]int        `json:"x_domain"`
	Entries []LegendEntry `json:"entries"`
}

const legendRowHeight = 12

// LayoutLegend places labels two per row; a single label is centred.
func LayoutLegend(name string, labels, colors []string) Legend {
	lg := Legend{Name: name, Height: legendRowHeight, XDomain: [2]int{0, 2}}
	color := func(i int) string {
		if i < len(colors) {
			return colors[i]
		}
		return ""
	}

	if len(labels) == 1 {
		lg.XDomain = [2]int{0, 1}
		lg.Entries = []LegendEntry{{X: 0.5, Y: 1, Text: labels[0], Color: color(0)}}
		return lg
	}

	lg.Height = int(math.Ceil(float64(len(labels))/2)) * legendRowHeight
	for i, l := range labels {
		lg.Entries = append(lg.Entries, LegendEntry{
			X:     float64(i % 2),
			Y:     float64(i / 2),
			Text:  l,
			Color: color(i),
		})
	}
	return lg
}
