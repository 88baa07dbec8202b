// Package render builds the chart payloads drawn by the browser from the
// reshaped artifacts. Payloads never carry NaN: missing values are null.
package render

import (
	"math"
	"sort"
	"strings"

	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/dispatch"
	"github.com/yumyai/qtlview/pkg/genome"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/state"
)

const axisTickCount = 10

type Tick struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

type Axis struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Ticks []Tick  `json:"ticks"`
}

// Band is one chromosome's stretch of the genome axis. Alternate bands are
// shaded.
type Band struct {
	Name   string  `json:"name"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Shaded bool    `json:"shaded"`
}

// Point is one drawn mark. Index is the row of the artifact it came from;
// clickable points are posted back as {artifact, index}.
type Point struct {
	X         float64  `json:"x"`
	Y         *float64 `json:"y"`
	Color     string   `json:"color,omitempty"`
	Tooltip   string   `json:"tooltip,omitempty"`
	Index     int      `json:"index"`
	Clickable bool     `json:"clickable,omitempty"`
}

type Series struct {
	Name   string  `json:"name"`
	Color  string  `json:"color,omitempty"`
	Points []Point `json:"points"`
}

// BoxMark is a box plot category; the statistics are null when the
// category has no values.
type BoxMark struct {
	Name   string   `json:"name"`
	N      int      `json:"n"`
	Low    *float64 `json:"low"`
	Q1     *float64 `json:"q1"`
	Median *float64 `json:"median"`
	Q3     *float64 `json:"q3"`
	High   *float64 `json:"high"`
}

// Chart is the payload for one plot.
type Chart struct {
	Kind     string         `json:"kind"`
	Title    string         `json:"title,omitempty"`
	Artifact string         `json:"artifact,omitempty"`
	Filename string         `json:"filename,omitempty"`
	XAxis    Axis           `json:"x_axis"`
	YAxis    Axis           `json:"y_axis"`
	Y2Axis   *Axis          `json:"y2_axis,omitempty"`
	Bands    []Band         `json:"bands,omitempty"`
	Series   []Series       `json:"series"`
	Boxes    []BoxMark      `json:"boxes,omitempty"`
	Legend   *genome.Legend `json:"legend,omitempty"`
}

func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// GenomeAxis lays the chromosomes of t along x with a tick at each
// chromosome's midpoint.
func GenomeAxis(t *genome.Table) (Axis, []Band) {
	ax := Axis{Label: "Chromosome", Max: t.Length()}
	var bands []Band
	for i, c := range t.Chromosomes() {
		ax.Ticks = append(ax.Ticks, Tick{Value: c.Mid, Label: c.Name})
		bands = append(bands, Band{Name: c.Name, Start: c.Start, End: c.End, Shaded: i%2 == 1})
	}
	return ax, bands
}

// ValueAxis spans [lo, hi] with nicely rounded ticks.
func ValueAxis(label string, lo, hi float64) Axis {
	ax := Axis{Label: label, Min: lo, Max: hi}
	for _, v := range genome.NiceTicks(lo, hi, axisTickCount) {
		ax.Ticks = append(ax.Ticks, Tick{Value: v, Label: formatScore(v)})
	}
	return ax
}

// lodAxis is the LOD axis from zero, or from below zero for differentials,
// up to AxisMax of the highest score.
func lodAxis(label string, scores ...[]float64) Axis {
	lo, hi := 0.0, 0.0
	for _, s := range scores {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			hi = math.Max(hi, v)
			lo = math.Min(lo, v)
		}
	}
	if lo < 0 {
		lo = math.Floor(lo) - 1
	}
	return ValueAxis(label, lo, genome.AxisMax(hi))
}

func lodSeries(name, color string, a *dispatch.Artifact[dispatch.LODPoint]) (Series, []float64) {
	s := Series{Name: name, Color: color, Points: make([]Point, len(a.Rows))}
	scores := make([]float64, len(a.Rows))
	for i, r := range a.Rows {
		s.Points[i] = Point{
			X:       r.X,
			Y:       num(r.LOD),
			Index:   i,
			Tooltip: tooltip("marker", markerTip{ID: r.MarkerID, Chrom: r.Chrom, Pos: r.Pos, LOD: r.LOD}),
		}
		scores[i] = r.LOD
	}
	return s, scores
}

// LODChart draws the additive scan and, for an interactive covariate, the
// full and differential scans on the genome axis.
func LODChart(t *genome.Table, v *dispatch.LODView) Chart {
	ch := Chart{Kind: "lod", Artifact: dispatch.KeyLOD, Filename: v.Additive.Filename()}
	ch.XAxis, ch.Bands = GenomeAxis(t)

	var all [][]float64
	s, scores := lodSeries("additive", "#000000", v.Additive)
	ch.Series = append(ch.Series, s)
	all = append(all, scores)
	if v.Full != nil {
		s, scores = lodSeries(v.Full.Covariate, seriesColor(0), v.Full)
		ch.Series = append(ch.Series, s)
		all = append(all, scores)
	}
	if v.Diff != nil {
		s, scores = lodSeries(v.Diff.Covariate+" - additive", seriesColor(3), v.Diff)
		ch.Series = append(ch.Series, s)
		all = append(all, scores)
	}
	ch.YAxis = lodAxis("LOD", all...)
	return ch
}

func peakTipOf(r dispatch.PeakRow) peakTip {
	tip := peakTip{
		EntityID: r.Peak.EntityID(),
		MarkerID: r.Peak.MarkerID(),
		Chrom:    r.Peak.Chrom(),
		Pos:      r.Peak.Pos(),
		LOD:      r.Peak.LODScore(),
	}
	if g, ok := qtl.GeneOf(r.Peak); ok {
		tip.Symbol, tip.GeneChrom, tip.GeneMid = g.Symbol, g.Chrom, g.Mid
	}
	if p, ok := r.Peak.(qtl.PhenoPeak); ok {
		tip.ShortName = p.ShortName
	}
	return tip
}

// PeaksChart draws the thresholded peaks. Gene-based datasets plot the
// marker against the gene position; phenotype peaks plot marker against
// LOD. Colour follows the LOD over the whole peak set.
func PeaksChart(ds *dataset.Dataset, a *dispatch.Artifact[dispatch.PeakRow], sum dispatch.PeakSummary) Chart {
	t := ds.Table()
	ch := Chart{Kind: "peaks", Title: ds.DisplayName, Artifact: dispatch.KeyPeaks, Filename: a.Filename()}
	ch.XAxis, ch.Bands = GenomeAxis(t)
	ch.XAxis.Label = "Marker"

	lo, hi := sum.Domain.Min, sum.Domain.Max
	s := Series{Name: a.Covariate, Points: make([]Point, 0, len(a.Rows))}
	if s.Name == "" {
		s.Name = dataset.Additive
	}
	for i, r := range a.Rows {
		p := Point{
			X:         r.X,
			Color:     lodColor(r.Peak.LODScore(), lo, hi),
			Index:     i,
			Tooltip:   tooltip("peak", peakTipOf(r)),
			Y:         num(r.Y),
			Clickable: true,
		}
		s.Points = append(s.Points, p)
	}
	ch.Series = []Series{s}

	if ds.Datatype.IsGeneBased() {
		ch.YAxis, _ = GenomeAxis(t)
		ch.YAxis.Label = "Gene"
	} else {
		ch.YAxis = ValueAxis("LOD", lo, hi)
	}
	lg := genome.LayoutLegend("LOD", lodLegend(lo, hi), lodBuckets)
	ch.Legend = &lg
	return ch
}

// EffectCharts draws one chart per covariate category: a line per founder
// strain plus the LOD on a second axis.
func EffectCharts(v *dispatch.EffectView) []Chart {
	var charts []Chart
	for _, a := range v.Plots {
		ch := Chart{
			Kind:     "effect",
			Title:    a.Variant,
			Artifact: dispatch.EffectKey(a.Variant),
			Filename: a.Filename(),
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		eLo, eHi := math.Inf(1), math.Inf(-1)
		var lods []float64
		for _, r := range a.Rows {
			lo, hi = math.Min(lo, r.Position), math.Max(hi, r.Position)
			for _, c := range r.Coef {
				if !math.IsNaN(c) {
					eLo, eHi = math.Min(eLo, c), math.Max(eHi, c)
				}
			}
			lods = append(lods, r.LOD)
		}
		if len(a.Rows) == 0 {
			lo, hi = 0, 0
		}
		if math.IsInf(eLo, 1) {
			eLo, eHi = 0, 0
		}

		for si, strain := range qtl.StrainNames {
			s := Series{Name: strain, Color: StrainColors[si], Points: make([]Point, len(a.Rows))}
			for i, r := range a.Rows {
				s.Points[i] = Point{
					X:     r.Position,
					Y:     num(r.Coef[si]),
					Index: i,
					Tooltip: tooltip("effect", effectTip{
						Strain: strain, Value: r.Coef[si], ID: r.ID, Chrom: r.Chromosome, Pos: r.Position,
					}),
				}
			}
			ch.Series = append(ch.Series, s)
		}
		lod := Series{Name: "LOD", Color: "#000000", Points: make([]Point, len(a.Rows))}
		for i, r := range a.Rows {
			lod.Points[i] = Point{
				X:       r.Position,
				Y:       num(r.LOD),
				Index:   i,
				Tooltip: tooltip("marker", markerTip{ID: r.ID, Chrom: r.Chromosome, Pos: r.Position, LOD: r.LOD}),
			}
		}
		ch.Series = append(ch.Series, lod)

		ch.XAxis = ValueAxis("Chromosome "+v.Chromosome, lo, hi)
		ch.YAxis = ValueAxis("Allele effect", eLo, eHi)
		y2 := lodAxis("LOD", lods)
		ch.Y2Axis = &y2
		lg := genome.LayoutLegend("Strain", qtl.StrainNames[:], StrainColors[:])
		ch.Legend = &lg
		charts = append(charts, ch)
	}
	return charts
}

// MediationChart draws the mediation LOD of each candidate on the genome
// axis of the selected dataset.
func MediationChart(t *genome.Table, v *dispatch.MediationView) Chart {
	a := v.Plot
	ch := Chart{Kind: "mediation", Title: v.Marker, Artifact: dispatch.KeyMediation, Filename: a.Filename()}
	ch.XAxis, ch.Bands = GenomeAxis(t)

	s := Series{Name: v.Against, Color: seriesColor(0), Points: make([]Point, len(a.Rows))}
	scores := make([]float64, len(a.Rows))
	for i, r := range a.Rows {
		s.Points[i] = Point{
			X:         r.X,
			Y:         num(r.LOD),
			Index:     i,
			Clickable: true,
			Tooltip: tooltip("mediator", mediatorTip{
				ID: r.EntityID(), Symbol: r.Symbol, Chrom: r.Chromosome, Pos: r.Position, LOD: r.LOD,
			}),
		}
		scores[i] = r.LOD
	}
	ch.Series = []Series{s}
	ch.YAxis = lodAxis("Mediation LOD", scores)
	return ch
}

// SNPChart draws the association scan around the selected location.
func SNPChart(v *dispatch.SNPView) Chart {
	a := v.Plot
	ch := Chart{Kind: "snp", Title: v.Chromosome, Artifact: dispatch.KeySNP, Filename: a.Filename()}

	scores := make([]float64, len(a.Rows))
	lo, hi := v.Location-state.SNPWindow, v.Location+state.SNPWindow
	for i, r := range a.Rows {
		scores[i] = r.LOD
		lo, hi = math.Min(lo, r.Position), math.Max(hi, r.Position)
	}
	ch.YAxis = lodAxis("LOD", scores)

	s := Series{Name: "SNP", Points: make([]Point, len(a.Rows))}
	for i, r := range a.Rows {
		s.Points[i] = Point{
			X:     r.Position,
			Y:     num(r.LOD),
			Color: lodColor(r.LOD, 0, ch.YAxis.Max),
			Index: i,
			Tooltip: tooltip("snp", snpTip{
				ID: r.ID, Alleles: r.Alleles(), Chrom: r.Chromosome, Pos: r.Position,
				Consequence: r.Consequence, SDP: r.SDP, LOD: r.LOD,
			}),
		}
	}
	ch.Series = []Series{s}
	ch.XAxis = ValueAxis("Chromosome "+v.Chromosome, lo, hi)
	return ch
}

// CorrelationPlotChart is the scatter of the two entities across samples,
// coloured by the levels of colorBy when given.
func CorrelationPlotChart(v *dispatch.CorrelationPlotView, colorBy string) Chart {
	a := v.Plot
	ch := Chart{Kind: "correlation-plot", Artifact: dispatch.KeyCorrelationPlot, Filename: a.Filename()}
	xLabel, yLabel := "x", "y"
	if len(a.Header) == 3 {
		xLabel, yLabel = a.Header[1], a.Header[2]
	}

	levels := v.Levels[colorBy]
	index := map[string]int{}
	for i, l := range levels {
		index[l] = i
		ch.Series = append(ch.Series, Series{Name: l, Color: seriesColor(i)})
	}
	other := -1

	xs := make([]float64, len(a.Rows))
	ys := make([]float64, len(a.Rows))
	for i, r := range a.Rows {
		xs[i], ys[i] = r.X, r.Y
		level := r.Sample.Factor(colorBy)
		p := Point{
			X:     r.X,
			Y:     num(r.Y),
			Index: i,
			Tooltip: tooltip("sample", sampleTip{
				SampleID: r.SampleID,
				Series:   level,
				Values:   []namedValue{{xLabel, r.X}, {yLabel, r.Y}},
			}),
		}
		si, ok := index[level]
		if !ok {
			if other < 0 {
				other = len(ch.Series)
				ch.Series = append(ch.Series, Series{Name: "samples", Color: missingColor})
			}
			si = other
		}
		ch.Series[si].Points = append(ch.Series[si].Points, p)
	}
	ch.XAxis = ValueAxis(xLabel, minOf(xs), maxOf(xs))
	ch.YAxis = ValueAxis(yLabel, minOf(ys), maxOf(ys))

	if len(levels) > 0 {
		colors := make([]string, len(levels))
		for i := range levels {
			colors[i] = seriesColor(i)
		}
		lg := genome.LayoutLegend(colorBy, levels, colors)
		ch.Legend = &lg
	}
	return ch
}

// CorrelationEntry is one row of the correlation table.
type CorrelationEntry struct {
	Index       int      `json:"index"`
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol,omitempty"`
	Correlation *float64 `json:"correlation"`
	Color       string   `json:"color"`
	Tooltip     string   `json:"tooltip"`
}

type CorrelationTable struct {
	Artifact string             `json:"artifact"`
	Filename string             `json:"filename"`
	Entries  []CorrelationEntry `json:"entries"`
}

// CorrelationList renders the correlation listing, strongest first.
func CorrelationList(a *dispatch.Artifact[dispatch.CorrelationRow]) CorrelationTable {
	tbl := CorrelationTable{Artifact: dispatch.KeyCorrelation, Filename: a.Filename()}
	for i, r := range a.Rows {
		tbl.Entries = append(tbl.Entries, CorrelationEntry{
			Index:       i,
			ID:          r.ID,
			Symbol:      r.Symbol,
			Correlation: num(r.Cor),
			Color:       correlationColor(r.Cor),
			Tooltip: tooltip("correlation", correlationTip{
				ID: r.ID, Symbol: r.Symbol, Chrom: r.Chrom, Start: r.Start, End: r.End, Cor: r.Cor,
			}),
		})
	}
	sort.SliceStable(tbl.Entries, func(i, j int) bool {
		ci, cj := tbl.Entries[i].Correlation, tbl.Entries[j].Correlation
		if ci == nil || cj == nil {
			return cj == nil && ci != nil
		}
		return math.Abs(*ci) > math.Abs(*cj)
	})
	return tbl
}

// ProfileChart draws the expression boxes with the samples over them.
func ProfileChart(p *dispatch.Profile, colorBy string, filename string) Chart {
	ch := Chart{Kind: "profile", Artifact: dispatch.KeyProfile, Filename: filename}
	ch.XAxis = Axis{Label: strings.Join(p.Title, " : "), Min: -0.5, Max: float64(len(p.Categories)) - 0.5}
	for i, c := range p.Categories {
		ch.XAxis.Ticks = append(ch.XAxis.Ticks, Tick{Value: float64(i), Label: c.Name})
		box := BoxMark{Name: c.Name, N: c.N}
		if c.HasBox {
			box.Low, box.Q1, box.Median = num(c.Box.Low), num(c.Box.Q1), num(c.Box.Median)
			box.Q3, box.High = num(c.Box.Q3), num(c.Box.High)
		}
		ch.Boxes = append(ch.Boxes, box)
	}

	index := map[string]int{}
	for i, s := range p.Series {
		index[s] = i
		ch.Series = append(ch.Series, Series{Name: s, Color: seriesColor(i)})
	}
	if len(ch.Series) == 0 {
		ch.Series = []Series{{Name: "samples", Color: seriesColor(0)}}
	}

	ys := make([]float64, len(p.Points))
	for i, pt := range p.Points {
		ys[i] = pt.Y
		si, ok := index[pt.Series]
		if !ok {
			si = 0
		}
		ch.Series[si].Points = append(ch.Series[si].Points, Point{
			X:       float64(pt.X),
			Y:       num(pt.Y),
			Index:   i,
			Tooltip: tooltip("sample", sampleTip{SampleID: pt.SampleID, Series: pt.Series, Values: []namedValue{{"expression", pt.Y}}}),
		})
	}
	ch.YAxis = ValueAxis("Expression", minOf(ys), maxOf(ys))

	if len(p.Series) > 0 {
		colors := make([]string, len(p.Series))
		for i := range colors {
			colors[i] = seriesColor(i)
		}
		lg := genome.LayoutLegend(colorBy, p.Series, colors)
		ch.Legend = &lg
	}
	return ch
}

func minOf(values []float64) float64 {
	lo := math.Inf(1)
	for _, v := range values {
		if !math.IsNaN(v) {
			lo = math.Min(lo, v)
		}
	}
	if math.IsInf(lo, 1) {
		return 0
	}
	return lo
}

func maxOf(values []float64) float64 {
	hi := math.Inf(-1)
	for _, v := range values {
		if !math.IsNaN(v) {
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(hi, -1) {
		return 0
	}
	return hi
}
