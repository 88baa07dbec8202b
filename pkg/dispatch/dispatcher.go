// Package dispatch turns finished task groups into the reshaped record sets
// behind each chart. One reshape per artifact feeds both the chart payload
// and the CSV download.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/genome"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/state"
	"github.com/yumyai/qtlview/pkg/tasks"
	"go.uber.org/zap"
)

// Keys of the artifacts kept in the workspace for export and clicks.
const (
	KeyLOD             = "lod"
	KeyLODFull         = "lod-full"
	KeyLODDiff         = "lod-diff"
	KeyPeaks           = "peaks"
	KeyEffect          = "effect"
	KeyMediation       = "mediation"
	KeySNP             = "snp"
	KeyCorrelationPlot = "correlation-plot"
	KeyCorrelation     = "correlation"
	KeyProfile         = "profile"
)

// EffectKey is the key of the effect artifact for one covariate category.
func EffectKey(category string) string {
	if category == "" || category == dataset.Additive {
		return KeyEffect
	}
	return KeyEffect + "-" + category
}

// Clicker is implemented by artifacts whose rows select entities.
type Clicker interface {
	ClickTarget(i int) (Target, bool)
}

// Dispatcher applies results to the application state.
type Dispatcher struct {
	State *state.AppState
}

func New(s *state.AppState) *Dispatcher {
	return &Dispatcher{State: s}
}

func dataShape(groupID, what string, err error) error {
	return &tasks.TaskError{
		Kind:     tasks.KindDataShape,
		GroupID:  groupID,
		Messages: []string{fmt.Sprintf("%s: %v", what, err)},
		Err:      err,
	}
}

func decodeScan(res *tasks.Result, id string) ([]qtl.ScanPoint, error) {
	var raw json.RawMessage
	if err := res.DecodeResult(id, &raw); err != nil {
		return nil, dataShape(res.GroupID, id, err)
	}
	scan, err := qtl.DecodeScanJSON(raw)
	if err != nil {
		return nil, dataShape(res.GroupID, id, err)
	}
	return scan, nil
}

func logSkipped[T any](what string, skipped []genome.Skipped[T]) {
	if len(skipped) == 0 {
		return
	}
	logger.Warn("Records left off the genome axis",
		zap.String("artifact", what),
		zap.Int("skipped", len(skipped)),
		zap.Error(skipped[0].Err))
}

// LODView holds the LOD plots derivable from the cached scans.
type LODView struct {
	Additive *Artifact[LODPoint] `json:"additive"`
	Full     *Artifact[LODPoint] `json:"full,omitempty"`
	Diff     *Artifact[LODPoint] `json:"diff,omitempty"`
	Skipped  int                 `json:"skipped"`
}

func buildLOD(ds *dataset.Dataset, entityID, covar string, additive, covarScan []qtl.ScanPoint) (*LODView, error) {
	v := &LODView{}
	var skipped []genome.Skipped[qtl.ScanPoint]
	v.Additive, skipped = ReshapeLOD(ds.Table(), entityID, dataset.Additive, "", additive)
	v.Skipped = len(skipped)
	logSkipped(KeyLOD, skipped)

	if covar == dataset.Additive || covarScan == nil {
		return v, nil
	}
	v.Full, skipped = ReshapeLOD(ds.Table(), entityID, covar, VariantFull, covarScan)
	logSkipped(KeyLODFull, skipped)

	diff, _, err := ReshapeLODDiff(ds.Table(), entityID, covar, covarScan, additive)
	if err != nil {
		return nil, err
	}
	v.Diff = diff
	return v, nil
}

func (v *LODView) store(ws *state.Workspace) {
	ws.Artifacts[KeyLOD] = v.Additive
	delete(ws.Artifacts, KeyLODFull)
	delete(ws.Artifacts, KeyLODDiff)
	if v.Full != nil {
		ws.Artifacts[KeyLODFull] = v.Full
	}
	if v.Diff != nil {
		ws.Artifacts[KeyLODDiff] = v.Diff
	}
}

// EntityView is everything produced by the entity group.
type EntityView struct {
	Selection    state.Selection           `json:"selection"`
	Gene         *qtl.GeneInfo             `json:"gene,omitempty"`
	LOD          *LODView                  `json:"lod"`
	Profile      *Profile                  `json:"profile"`
	ProfileRows  *Artifact[ProfileRow]     `json:"-"`
	Correlations *Artifact[CorrelationRow] `json:"correlations"`
}

// ApplyEntity decodes the entity group and, if tok is still live, replaces
// the workspace's derived state with it.
func (d *Dispatcher) ApplyEntity(tok tasks.Token, sel state.Selection, ds *dataset.Dataset, res *tasks.Result, opts ProfileOptions) (*EntityView, error) {
	if sel.Entity == nil {
		return nil, errors.New("no entity selected")
	}
	entityID := sel.Entity.ID
	view := &EntityView{Selection: sel}

	if res.Has(state.IDGeneData) {
		raw, err := res.Raw(state.IDGeneData)
		if err != nil {
			return nil, dataShape(res.GroupID, state.IDGeneData, err)
		}
		g, err := qtl.DecodeGeneData(raw, sel.Entity.AnnotationGene())
		if err != nil {
			return nil, dataShape(res.GroupID, state.IDGeneData, err)
		}
		view.Gene = &g
	}

	var samples qtl.SampleSet
	if err := res.DecodeResult(state.IDExpression, &samples); err != nil {
		return nil, dataShape(res.GroupID, state.IDExpression, err)
	}
	rows, prof, err := ReshapeProfile(ds, entityID, samples, opts)
	if err != nil {
		return nil, dataShape(res.GroupID, state.IDExpression, err)
	}
	view.ProfileRows, view.Profile = rows, prof

	var corr qtl.CorrelationSet
	if err := res.DecodeResult(state.IDCorrelation, &corr); err != nil {
		return nil, dataShape(res.GroupID, state.IDCorrelation, err)
	}
	target := ds
	if sel.Correlation.DatasetID != "" && sel.Correlation.DatasetID != ds.ID {
		if target, err = d.State.Registry().Get(sel.Correlation.DatasetID); err != nil {
			return nil, err
		}
	}
	view.Correlations = ReshapeCorrelations(entityID, target, corr)

	additive, err := decodeScan(res, state.IDLOD)
	if err != nil {
		return nil, err
	}
	var covarScan []qtl.ScanPoint
	if res.Has(state.IDLODCovar) {
		if covarScan, err = decodeScan(res, state.IDLODCovar); err != nil {
			return nil, err
		}
	}
	if view.LOD, err = buildLOD(ds, entityID, sel.Covariate, additive, covarScan); err != nil {
		return nil, dataShape(res.GroupID, state.IDLODCovar, err)
	}

	err = d.State.Apply(tok, func(ws *state.Workspace) error {
		ws.Gene = view.Gene
		ws.LOD = map[string][]qtl.ScanPoint{dataset.Additive: additive}
		if covarScan != nil {
			ws.LOD[sel.Covariate] = covarScan
		}
		ws.Artifacts = map[string]any{
			KeyProfile:     view.ProfileRows,
			KeyCorrelation: view.Correlations,
		}
		view.LOD.store(ws)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Entity results applied",
		zap.String("group_id", res.GroupID),
		zap.String("entity", entityID),
		zap.Int("markers", len(additive)))
	return view, nil
}

// ApplyCovariate adds the covariate scan to the cache and rebuilds the
// LOD plots. A missing additive scan is taken from the cache.
func (d *Dispatcher) ApplyCovariate(tok tasks.Token, sel state.Selection, ds *dataset.Dataset, res *tasks.Result) (*LODView, error) {
	if sel.Entity == nil {
		return nil, errors.New("no entity selected")
	}
	var additive, covarScan []qtl.ScanPoint
	var err error
	if res.Has(state.IDLOD) {
		if additive, err = decodeScan(res, state.IDLOD); err != nil {
			return nil, err
		}
	}
	if res.Has(state.IDLODCovar) {
		if covarScan, err = decodeScan(res, state.IDLODCovar); err != nil {
			return nil, err
		}
	}

	var view *LODView
	err = d.State.Apply(tok, func(ws *state.Workspace) error {
		base := additive
		if base == nil {
			base = ws.LOD[dataset.Additive]
		}
		if base == nil {
			return dataShape(res.GroupID, state.IDLOD, fmt.Errorf("%w: additive scan", tasks.ErrMissingResult))
		}
		v, err := buildLOD(ds, sel.Entity.ID, sel.Covariate, base, covarScan)
		if err != nil {
			return dataShape(res.GroupID, state.IDLODCovar, err)
		}

		ws.LOD[dataset.Additive] = base
		if covarScan != nil {
			ws.LOD[sel.Covariate] = covarScan
		}
		v.store(ws)
		view = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CachedCovariate returns the LOD plots for covar when both scans are
// already cached, so no group needs to run. The plots are stored only while
// tok is live; a stale token returns tasks.ErrSuperseded.
func (d *Dispatcher) CachedCovariate(tok tasks.Token, sel state.Selection, ds *dataset.Dataset) (*LODView, bool, error) {
	if sel.Entity == nil {
		return nil, false, nil
	}
	var (
		view *LODView
		hit  bool
	)
	err := d.State.Apply(tok, func(ws *state.Workspace) error {
		additive, ok := ws.LOD[dataset.Additive]
		if !ok {
			return nil
		}
		covarScan, ok := ws.LOD[sel.Covariate]
		if sel.Covariate != dataset.Additive && !ok {
			return nil
		}
		if sel.Covariate == dataset.Additive {
			covarScan = nil
		}
		v, err := buildLOD(ds, sel.Entity.ID, sel.Covariate, additive, covarScan)
		if err != nil {
			return err
		}
		v.store(ws)
		view, hit = v, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return view, hit, nil
}

// HasAdditive reports whether the additive scan is cached for the request
// holding tok.
func (d *Dispatcher) HasAdditive(tok tasks.Token) (bool, error) {
	var ok bool
	err := d.State.Apply(tok, func(ws *state.Workspace) error {
		_, ok = ws.LOD[dataset.Additive]
		return nil
	})
	return ok, err
}

// Peaks reshapes the dataset's precomputed peaks and stores them for export.
func (d *Dispatcher) Peaks(ds *dataset.Dataset, covar string, threshold float64) (*Artifact[PeakRow], PeakSummary, error) {
	a, sum, err := ReshapePeaks(ds, covar, threshold)
	if err != nil {
		return nil, sum, err
	}
	d.State.View(func(ws *state.Workspace) {
		if ws.Dataset == ds {
			ws.Artifacts[KeyPeaks] = a
		}
	})
	return a, sum, nil
}

// EffectView holds one effect plot per covariate category.
type EffectView struct {
	Chromosome string                 `json:"chromosome"`
	Categories []string               `json:"categories"`
	Plots      []*Artifact[EffectRow] `json:"plots"`
}

// ApplyEffect decodes founder coefficients per category. For the additive
// scan the LOD comes from the cached genome scan on the same chromosome.
func (d *Dispatcher) ApplyEffect(tok tasks.Token, sel state.Selection, chrom string, res *tasks.Result) (*EffectView, error) {
	var raw json.RawMessage
	if err := res.DecodeResult(state.IDEffect, &raw); err != nil {
		return nil, dataShape(res.GroupID, state.IDEffect, err)
	}
	cats, effects, err := qtl.DecodeGrouped(raw, qtl.DecodeEffects)
	if err != nil {
		return nil, dataShape(res.GroupID, state.IDEffect, err)
	}

	var lods map[string][]qtl.ScanPoint
	if res.Has(state.IDLODSamples) {
		var rawLOD json.RawMessage
		if err := res.DecodeResult(state.IDLODSamples, &rawLOD); err != nil {
			return nil, dataShape(res.GroupID, state.IDLODSamples, err)
		}
		if _, lods, err = qtl.DecodeGrouped(rawLOD, qtl.DecodeScan); err != nil {
			return nil, dataShape(res.GroupID, state.IDLODSamples, err)
		}
	}

	view := &EffectView{Chromosome: chrom, Categories: cats}
	err = d.State.Apply(tok, func(ws *state.Workspace) error {
		for k := range ws.Artifacts {
			if k == KeyEffect || strings.HasPrefix(k, KeyEffect+"-") {
				delete(ws.Artifacts, k)
			}
		}
		for _, cat := range cats {
			scan := lods[cat]
			if lods == nil {
				scan = OnChromosome(ws.LOD[dataset.Additive], chrom)
			}
			a := ReshapeEffect(sel.Entity.ID, sel.Covariate, cat, effects[cat], scan)
			view.Plots = append(view.Plots, a)
			ws.Artifacts[EffectKey(a.Variant)] = a
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

type MediationView struct {
	Against string                  `json:"against"`
	Marker  string                  `json:"marker_id"`
	Plot    *Artifact[MediationRow] `json:"plot"`
	Skipped int                     `json:"skipped"`
}

func (d *Dispatcher) ApplyMediation(tok tasks.Token, sel state.Selection, ds, against *dataset.Dataset, markerID string, res *tasks.Result) (*MediationView, error) {
	var raw json.RawMessage
	if err := res.DecodeResult(state.IDMediate, &raw); err != nil {
		return nil, dataShape(res.GroupID, state.IDMediate, err)
	}
	rows, err := qtl.ParseRows(raw)
	if err != nil {
		return nil, dataShape(res.GroupID, state.IDMediate, err)
	}
	meds, err := qtl.DecodeMediators(against.Datatype, rows)
	if err != nil {
		return nil, dataShape(res.GroupID, state.IDMediate, err)
	}
	a, skipped := ReshapeMediation(ds.Table(), sel.Entity.ID, against, meds)
	logSkipped(KeyMediation, skipped)

	view := &MediationView{Against: against.ID, Marker: markerID, Plot: a, Skipped: len(skipped)}
	err = d.State.Apply(tok, func(ws *state.Workspace) error {
		ws.Artifacts[KeyMediation] = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// SNPView carries the SNP scan plus the gene annotation drawn under it.
type SNPView struct {
	Chromosome string            `json:"chromosome"`
	Location   float64           `json:"location"`
	Plot       *Artifact[SNPRow] `json:"plot"`
	Genes      json.RawMessage   `json:"genes,omitempty"`
	Rankings   json.RawMessage   `json:"rankings,omitempty"`
}

func (d *Dispatcher) ApplySNP(tok tasks.Token, sel state.Selection, chrom string, location float64, res *tasks.Result) (*SNPView, error) {
	var raw json.RawMessage
	if err := res.DecodeResult(state.IDSNPAssoc, &raw); err != nil {
		return nil, dataShape(res.GroupID, state.IDSNPAssoc, err)
	}
	rows, err := qtl.ParseRows(raw)
	if err != nil {
		return nil, dataShape(res.GroupID, state.IDSNPAssoc, err)
	}
	snps, err := qtl.DecodeSNPs(rows)
	if err != nil {
		return nil, dataShape(res.GroupID, state.IDSNPAssoc, err)
	}

	view := &SNPView{Chromosome: chrom, Location: location, Plot: ReshapeSNPs(sel.Entity.ID, snps)}
	if res.Has(state.IDGenesInfo) {
		view.Genes, _ = res.Raw(state.IDGenesInfo)
	}
	if res.Has(state.IDGenesRanking) {
		var rank json.RawMessage
		if err := res.DecodeResult(state.IDGenesRanking, &rank); err == nil {
			view.Rankings = rank
		}
	}

	err = d.State.Apply(tok, func(ws *state.Workspace) error {
		ws.Artifacts[KeySNP] = view.Plot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

type CorrelationPlotView struct {
	Target  state.CorrelationTarget `json:"target"`
	Plot    *Artifact[PairRow]      `json:"plot"`
	Dropped int                     `json:"dropped"`
	Levels  map[string][]string     `json:"levels,omitempty"`
}

func (d *Dispatcher) ApplyCorrelationPlot(tok tasks.Token, sel state.Selection, res *tasks.Result) (*CorrelationPlotView, error) {
	var set qtl.SampleSet
	if err := res.DecodeResult(state.IDCorrelationPlot, &set); err != nil {
		return nil, dataShape(res.GroupID, state.IDCorrelationPlot, err)
	}
	a, dropped := ReshapeCorrelationPlot(sel.Entity.ID, sel.Correlation.EntityID, set)
	view := &CorrelationPlotView{Target: sel.Correlation, Plot: a, Dropped: dropped, Levels: set.Levels}

	err := d.State.Apply(tok, func(ws *state.Workspace) error {
		ws.Artifacts[KeyCorrelationPlot] = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Export returns the stored artifact under key.
func (d *Dispatcher) Export(key string) (Exportable, bool) {
	var (
		ex Exportable
		ok bool
	)
	d.State.View(func(ws *state.Workspace) {
		ex, ok = ws.Artifacts[key].(Exportable)
	})
	return ex, ok
}

// Click resolves the i-th point of the stored artifact under key.
func (d *Dispatcher) Click(key string, i int) (Target, bool) {
	var c Clicker
	d.State.View(func(ws *state.Workspace) {
		c, _ = ws.Artifacts[key].(Clicker)
	})
	if c == nil {
		return Target{}, false
	}
	return c.ClickTarget(i)
}
