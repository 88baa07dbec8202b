package dispatch

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/genome"
	"github.com/yumyai/qtlview/pkg/qtl"
)

// Artifact names, as they appear in export filenames.
const (
	NameLOD             = "LOD"
	NameLODPeaks        = "LODPEAKS"
	NameEffect          = "EFFECT"
	NameMediation       = "MEDIATION"
	NameSNP             = "SNPASSOC"
	NameCorrelationPlot = "CORRELATION"
	NameCorrelation     = "correlation"
	NameProfile         = "PROFILE"

	VariantFull = "FULL"
	VariantDiff = "DIFF"
)

var (
	ErrNoPeaks     = errors.New("no peaks for covariate")
	ErrEmptyLevels = errors.New("covariate has no levels")
)

// LODPoint is one marker of a LOD scan placed on the genome axis.
type LODPoint struct {
	MarkerID string  `json:"id"`
	Chrom    string  `json:"chr"`
	Pos      float64 `json:"chr_pos"`
	X        float64 `json:"x"`
	LOD      float64 `json:"y"`
}

func (p LODPoint) CSV() []Cell {
	return []Cell{Str(p.MarkerID), Str(p.Chrom), Num(p.Pos), Num(p.LOD)}
}

func (p LODPoint) LODScore() float64 { return p.LOD }

// ReshapeLOD places a scan on the genome axis sorted by x. Markers on
// chromosomes missing from the table are returned in skipped.
func ReshapeLOD(t *genome.Table, entityID, covar, variant string, scan []qtl.ScanPoint) (*Artifact[LODPoint], []genome.Skipped[qtl.ScanPoint]) {
	placed, skipped := genome.LinearizeAll(t, scan)
	a := &Artifact[LODPoint]{
		Name:     NameLOD,
		EntityID: entityID,
		Header:   []string{"id", "chromosome", "position", "lod"},
		Rows:     make([]LODPoint, 0, len(placed)),
	}
	if covar != "" && covar != dataset.Additive {
		a.Covariate = covar
		a.Variant = variant
	}
	for _, p := range placed {
		a.Rows = append(a.Rows, LODPoint{
			MarkerID: p.Item.ID,
			Chrom:    p.Item.Chromosome,
			Pos:      p.Item.Position,
			X:        p.X,
			LOD:      p.Item.LOD,
		})
	}
	sort.SliceStable(a.Rows, func(i, j int) bool { return a.Rows[i].X < a.Rows[j].X })
	return a, skipped
}

// ReshapeLODDiff is the covariate scan minus the additive scan, marker by
// marker. The scans must list the same markers in the same order.
func ReshapeLODDiff(t *genome.Table, entityID, covar string, covarScan, additive []qtl.ScanPoint) (*Artifact[LODPoint], []genome.Skipped[qtl.ScanPoint], error) {
	diff, err := genome.Differential(covarScan, additive)
	if err != nil {
		return nil, nil, err
	}
	scan := make([]qtl.ScanPoint, len(covarScan))
	for i, p := range covarScan {
		scan[i] = qtl.ScanPoint{Marker: p.Marker, LOD: diff[i]}
	}
	a, skipped := ReshapeLOD(t, entityID, covar, VariantDiff, scan)
	return a, skipped, nil
}

// PeakRow is a peak placed on the genome axis. Y is the gene's genome-axis
// position for gene-based datasets and the LOD score otherwise.
type PeakRow struct {
	DatasetID string
	Peak      qtl.Peak
	X         float64
	Y         float64
}

func (r PeakRow) CSV() []Cell {
	var cells []Cell
	marker := []Cell{Str(r.Peak.MarkerID()), Str(r.Peak.Chrom()), Num(r.Peak.Pos())}
	geneCells := func(g qtl.Gene) []Cell {
		return []Cell{Str(g.ID), Str(g.Symbol), Str(g.Chrom), Num(g.Mid)}
	}

	switch p := r.Peak.(type) {
	case qtl.MRNAPeak:
		cells = append(geneCells(p.Gene), marker...)
	case qtl.ProteinPeak:
		cells = append([]Cell{Str(p.ProteinID)}, geneCells(p.Gene)...)
		cells = append(cells, marker...)
	case qtl.PhosPeak:
		cells = append([]Cell{Str(p.PhosID), Str(p.ProteinID)}, geneCells(p.Gene)...)
		cells = append(cells, marker...)
	case qtl.PhenoPeak:
		cells = append(marker, Str(p.ShortName))
	}
	cells = append(cells, Num(r.Peak.LODScore()))

	if ae := r.Peak.Effects(); ae != nil {
		for _, v := range ae {
			cells = append(cells, Num(v))
		}
	}
	return cells
}

func peakHeader(dt qtl.Datatype, withEffects bool) []string {
	gene := []string{"gene_id", "symbol", "gene_chrom", "gene_mid", "marker_id", "marker_chrom", "marker_position", "lod"}
	var h []string
	switch dt {
	case qtl.MRNA:
		h = gene
	case qtl.Protein:
		h = append([]string{"protein_id"}, gene...)
	case qtl.Phos:
		h = append([]string{"phos_id", "protein_id"}, gene...)
	case qtl.Phenotype:
		h = []string{"marker_id", "marker_chrom", "marker_position", "phenotype", "lod"}
	}
	if withEffects {
		h = append(h, qtl.Strains[:]...)
	}
	return h
}

// PeakSummary carries the axis and slider ranges of the full peak set for
// a covariate, independent of the threshold.
type PeakSummary struct {
	Slider    genome.Range `json:"slider"`
	Domain    genome.Range `json:"domain"`
	Threshold float64      `json:"threshold"`
	Total     int          `json:"total"`
	Skipped   int          `json:"skipped"`
}

// ReshapePeaks filters the dataset's peaks for covar by threshold and places
// them on the genome axis.
func ReshapePeaks(ds *dataset.Dataset, covar string, threshold float64) (*Artifact[PeakRow], PeakSummary, error) {
	peaks, ok := ds.Peaks(covar)
	if !ok {
		return nil, PeakSummary{}, fmt.Errorf("%w %q in %s", ErrNoPeaks, covar, ds.ID)
	}

	sum := PeakSummary{Threshold: threshold, Total: len(peaks)}
	sum.Slider, _ = genome.SliderBounds(peaks)
	sum.Domain, _ = genome.LODDomain(peaks)

	kept := genome.FilterPeaksByThreshold(peaks, threshold)
	placed, skipped := genome.LinearizeAll(ds.Table(), kept)

	a := &Artifact[PeakRow]{
		Name:     NameLODPeaks,
		EntityID: ds.ID,
		Header:   peakHeader(ds.Datatype, len(peaks) > 0 && peaks[0].Effects() != nil),
		Rows:     make([]PeakRow, 0, len(placed)),
	}
	if covar != dataset.Additive {
		a.Covariate = covar
	}
	for _, p := range placed {
		row := PeakRow{DatasetID: ds.ID, Peak: p.Item, X: p.X, Y: p.Item.LODScore()}
		if g, ok := qtl.GeneOf(p.Item); ok {
			y, err := ds.Table().Linearize(g.Chrom, g.Mid)
			if err != nil {
				skipped = append(skipped, genome.Skipped[qtl.Peak]{Item: p.Item, Err: err})
				continue
			}
			row.Y = y
		}
		a.Rows = append(a.Rows, row)
	}
	sum.Skipped = len(skipped)
	return a, sum, nil
}

// EffectRow pairs the founder coefficients at a marker with its LOD.
type EffectRow struct {
	qtl.EffectPoint
	LOD float64
}

func (r EffectRow) CSV() []Cell {
	cells := []Cell{Str(r.ID), Str(r.Chromosome), Num(r.Position)}
	for _, v := range r.Coef {
		cells = append(cells, Num(v))
	}
	return append(cells, Num(r.LOD))
}

// ReshapeEffect joins effects with the LOD scan by marker id. Markers
// without a LOD get NaN.
func ReshapeEffect(entityID, covar, category string, effects []qtl.EffectPoint, scan []qtl.ScanPoint) *Artifact[EffectRow] {
	lod := make(map[string]float64, len(scan))
	for _, p := range scan {
		lod[p.ID] = p.LOD
	}

	header := []string{"id", "chromosome", "position"}
	header = append(header, qtl.StrainNames[:]...)
	a := &Artifact[EffectRow]{
		Name:     NameEffect,
		EntityID: entityID,
		Header:   append(header, "lod"),
		Rows:     make([]EffectRow, 0, len(effects)),
	}
	if covar != dataset.Additive {
		a.Covariate = covar
		a.Variant = category
	}
	for _, e := range effects {
		v, ok := lod[e.ID]
		if !ok {
			v = math.NaN()
		}
		a.Rows = append(a.Rows, EffectRow{EffectPoint: e, LOD: v})
	}
	return a
}

// OnChromosome keeps the scan points of one chromosome.
func OnChromosome(scan []qtl.ScanPoint, chrom string) []qtl.ScanPoint {
	var out []qtl.ScanPoint
	for _, p := range scan {
		if p.Chromosome == chrom {
			out = append(out, p)
		}
	}
	return out
}

// MediationRow is one mediation candidate placed on the genome axis.
type MediationRow struct {
	DatasetID string
	Datatype  qtl.Datatype
	qtl.Mediator
	X float64
}

func (r MediationRow) CSV() []Cell {
	var cells []Cell
	switch r.Datatype {
	case qtl.Phos:
		cells = []Cell{Str(r.PhosID), Str(r.ProteinID)}
	case qtl.Protein:
		cells = []Cell{Str(r.ProteinID)}
	}
	return append(cells, Str(r.GeneID), Str(r.Symbol), Str(r.Chromosome), Num(r.Position), Num(r.LOD))
}

func mediationHeader(dt qtl.Datatype) []string {
	h := []string{"gene_id", "symbol", "chromosome", "position", "lod"}
	switch dt {
	case qtl.Protein:
		return append([]string{"protein_id"}, h...)
	case qtl.Phos:
		return append([]string{"phos_id", "protein_id"}, h...)
	}
	return h
}

// ReshapeMediation places mediators from the against dataset on the genome
// axis of t.
func ReshapeMediation(t *genome.Table, entityID string, against *dataset.Dataset, meds []qtl.Mediator) (*Artifact[MediationRow], []genome.Skipped[qtl.Mediator]) {
	placed, skipped := genome.LinearizeAll(t, meds)
	a := &Artifact[MediationRow]{
		Name:     NameMediation,
		EntityID: entityID,
		Header:   mediationHeader(against.Datatype),
		Rows:     make([]MediationRow, 0, len(placed)),
	}
	for _, p := range placed {
		a.Rows = append(a.Rows, MediationRow{DatasetID: against.ID, Datatype: against.Datatype, Mediator: p.Item, X: p.X})
	}
	sort.SliceStable(a.Rows, func(i, j int) bool { return a.Rows[i].X < a.Rows[j].X })
	return a, skipped
}

type SNPRow struct {
	qtl.SNP
}

func (r SNPRow) CSV() []Cell {
	return []Cell{Str(r.ID), Str(r.Chromosome), Num(r.Position), Str(r.Alleles()), Str(r.Consequence), Num(r.LOD)}
}

func ReshapeSNPs(entityID string, snps []qtl.SNP) *Artifact[SNPRow] {
	a := &Artifact[SNPRow]{
		Name:     NameSNP,
		EntityID: entityID,
		Header:   []string{"id", "chr", "position", "alleles", "csq", "lod"},
		Rows:     make([]SNPRow, len(snps)),
	}
	for i, s := range snps {
		a.Rows[i] = SNPRow{SNP: s}
	}
	return a
}

// PairRow is one sample of a correlation plot.
type PairRow struct {
	SampleID string
	X        float64
	Y        float64
	Sample   qtl.Sample
}

func (r PairRow) CSV() []Cell {
	return []Cell{Str(r.SampleID), Num(r.X), Num(r.Y)}
}

// ReshapeCorrelationPlot keeps the samples measured in both entities.
func ReshapeCorrelationPlot(entityID, correlateID string, set qtl.SampleSet) (*Artifact[PairRow], int) {
	a := &Artifact[PairRow]{
		Name:     NameCorrelationPlot,
		EntityID: entityID + "_" + correlateID,
		Header:   []string{"sample_id", entityID, correlateID},
	}
	dropped := 0
	for _, s := range set.Samples {
		x, okx := s.Number("x")
		y, oky := s.Number("y")
		if !okx || !oky {
			dropped++
			continue
		}
		a.Rows = append(a.Rows, PairRow{SampleID: s.ID, X: x, Y: y, Sample: s})
	}
	return a, dropped
}

// CorrelationRow is one entry of the correlation listing against a dataset.
type CorrelationRow struct {
	DatasetID string
	Datatype  qtl.Datatype
	qtl.Correlation
}

func (r CorrelationRow) CSV() []Cell {
	loc := []Cell{Str(r.Symbol), Str(r.Chrom), Num(r.Start), Num(r.End), Num(r.Cor)}
	switch r.Datatype {
	case qtl.MRNA:
		return append([]Cell{Str(r.ID)}, loc...)
	case qtl.Protein:
		return append([]Cell{Str(r.GeneID), Str(r.ID)}, loc...)
	case qtl.Phos:
		return append([]Cell{Str(r.GeneID), Str(r.ProteinID), Str(r.ID)}, loc...)
	}
	return []Cell{Str(r.ID), Num(r.Cor)}
}

func correlationHeader(dt qtl.Datatype) []string {
	loc := []string{"symbol", "chr", "start", "end", "correlation"}
	switch dt {
	case qtl.MRNA:
		return append([]string{"gene_id"}, loc...)
	case qtl.Protein:
		return append([]string{"gene_id", "protein_id"}, loc...)
	case qtl.Phos:
		return append([]string{"gene_id", "protein_id", "phos_id"}, loc...)
	}
	return []string{"id", "correlation"}
}

func ReshapeCorrelations(entityID string, target *dataset.Dataset, set qtl.CorrelationSet) *Artifact[CorrelationRow] {
	a := &Artifact[CorrelationRow]{
		Name:     NameCorrelation,
		EntityID: entityID,
		Header:   correlationHeader(target.Datatype),
		Rows:     make([]CorrelationRow, len(set.Correlations)),
	}
	for i, c := range set.Correlations {
		a.Rows[i] = CorrelationRow{DatasetID: target.ID, Datatype: target.Datatype, Correlation: c}
	}
	return a
}

// ProfileRow is one sample with its expression and every covariate of the
// dataset, in covar_info order.
type ProfileRow struct {
	SampleID   string
	Expression float64
	Factors    []string
}

func (r ProfileRow) CSV() []Cell {
	cells := []Cell{Str(r.SampleID), Num(r.Expression)}
	for _, f := range r.Factors {
		cells = append(cells, Str(f))
	}
	return cells
}

// ProfileCategory is one box of the profile plot.
type ProfileCategory struct {
	Name   string     `json:"name"`
	Box    genome.Box `json:"box"`
	HasBox bool       `json:"has_box"`
	N      int        `json:"n"`
}

// ProfilePoint is one sample drawn over its category's box.
type ProfilePoint struct {
	X        int     `json:"x"`
	Y        float64 `json:"y"`
	SampleID string  `json:"sample_id"`
	Series   string  `json:"series"`
}

// Profile groups the expression of the selected entity by the cartesian
// product of the selected covariates' levels.
type Profile struct {
	Title      []string          `json:"title"`
	Categories []ProfileCategory `json:"categories"`
	Series     []string          `json:"series"`
	Points     []ProfilePoint    `json:"points"`
	// Unplaced counts samples whose factor values are not among the levels.
	Unplaced int `json:"unplaced"`
}

const allSamples = "All samples"

// ProfileOptions picks the covariates that split the profile plot and the
// one that colours the points. Empty Factors selects the primary
// covariates, or all of them when none is primary.
type ProfileOptions struct {
	Factors []string
	ColorBy string
}

func defaultFactors(ds *dataset.Dataset) []string {
	var primary, all []string
	for _, c := range ds.CovarInfo {
		all = append(all, c.SampleColumn)
		if c.Primary {
			primary = append(primary, c.SampleColumn)
		}
	}
	if len(primary) > 0 {
		return primary
	}
	return all
}

// ReshapeProfile builds the profile rows and the box plot drawn from them.
func ReshapeProfile(ds *dataset.Dataset, entityID string, set qtl.SampleSet, opts ProfileOptions) (*Artifact[ProfileRow], *Profile, error) {
	factors := opts.Factors
	if len(factors) == 0 {
		factors = defaultFactors(ds)
	}
	// covar_info order decides the axis nesting
	index := map[string]int{}
	for i, c := range ds.CovarInfo {
		index[c.SampleColumn] = i
	}
	for _, f := range factors {
		if _, ok := index[f]; !ok {
			return nil, nil, fmt.Errorf("unknown covariate %q", f)
		}
	}
	factors = append([]string(nil), factors...)
	sort.SliceStable(factors, func(i, j int) bool { return index[factors[i]] < index[factors[j]] })

	header := []string{"sample_id", "expression"}
	for _, c := range ds.CovarInfo {
		header = append(header, c.DisplayName)
	}
	a := &Artifact[ProfileRow]{Name: NameProfile, EntityID: entityID, Header: header}
	for _, s := range set.Samples {
		v, ok := s.Number("expression")
		if !ok {
			v = math.NaN()
		}
		row := ProfileRow{SampleID: s.ID, Expression: v}
		for _, c := range ds.CovarInfo {
			row.Factors = append(row.Factors, s.Factor(c.SampleColumn))
		}
		a.Rows = append(a.Rows, row)
	}

	prof, err := buildProfile(ds, a.Rows, set.Levels, factors, opts.ColorBy, index)
	if err != nil {
		return nil, nil, err
	}
	return a, prof, nil
}

func buildProfile(ds *dataset.Dataset, rows []ProfileRow, levels map[string][]string, factors []string, colorBy string, index map[string]int) (*Profile, error) {
	prof := &Profile{}

	var names []string
	if len(factors) == 0 {
		names = []string{allSamples}
	} else {
		axes := make([][]string, len(factors))
		for i, f := range factors {
			lv := levels[f]
			if len(lv) == 0 {
				return nil, fmt.Errorf("%w: %s", ErrEmptyLevels, f)
			}
			axes[i] = lv
			c, _ := ds.Covariate(f)
			prof.Title = append(prof.Title, c.DisplayName)
		}
		for _, combo := range genome.Permute(axes) {
			names = append(names, strings.Join(combo, ":"))
		}
	}

	position := make(map[string]int, len(names))
	values := make([][]float64, len(names))
	for i, n := range names {
		position[n] = i
	}

	if colorBy == "" && len(factors) > 0 {
		colorBy = factors[0]
	}
	colorIdx, colored := index[colorBy]
	if colored {
		prof.Series = append(prof.Series, levels[colorBy]...)
	}

	for _, r := range rows {
		if math.IsNaN(r.Expression) {
			continue
		}
		key := allSamples
		if len(factors) > 0 {
			parts := make([]string, len(factors))
			for i, f := range factors {
				parts[i] = r.Factors[index[f]]
			}
			key = strings.Join(parts, ":")
		}
		x, ok := position[key]
		if !ok {
			prof.Unplaced++
			continue
		}
		values[x] = append(values[x], r.Expression)

		pt := ProfilePoint{X: x, Y: r.Expression, SampleID: r.SampleID}
		if colored {
			pt.Series = r.Factors[colorIdx]
		}
		prof.Points = append(prof.Points, pt)
	}

	for i, n := range names {
		box, ok := genome.BoxStats(values[i])
		prof.Categories = append(prof.Categories, ProfileCategory{Name: n, Box: box, HasBox: ok, N: len(values[i])})
	}
	return prof, nil
}
