package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/genome"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/state"
	"github.com/yumyai/qtlview/pkg/tasks"
)

func testRegistry(t *testing.T) *dataset.Registry {
	t.Helper()
	chroms := []genome.Chromosome{{Name: "1", Length: 100}, {Name: "2", Length: 50}}
	datasets := []*dataset.Dataset{
		{
			ID:          "ds.mrna",
			Datatype:    qtl.MRNA,
			Chromosomes: chroms,
			CovarInfo: []dataset.Covariate{
				{SampleColumn: "sex", DisplayName: "Sex", Primary: true, Interactive: true},
				{SampleColumn: "diet", DisplayName: "Diet"},
			},
			LODPeaks: map[string][][]any{
				dataset.Additive: {
					{"1_10", "1", 10.0, "G1", "Abc", "2", 5.0, 8.5},
					{"2_20", "2", 20.0, "G2", "Def", "1", 7.0, 4.0},
					{"9_1", "9", 1.0, "G3", "Ghi", "1", 7.0, 12.0},
				},
			},
			GeneIDs: map[string]dataset.GeneEntry{"G1": {}, "G2": {}},
		},
		{ID: "ds.pheno", Datatype: qtl.Phenotype, Chromosomes: chroms},
	}
	reg, err := dataset.NewRegistry(context.Background(), datasets, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func selectGene(t *testing.T, s *state.AppState, covar string) (state.Selection, *dataset.Dataset, tasks.Token) {
	t.Helper()
	if _, err := s.SelectDataset("ds.mrna"); err != nil {
		t.Fatalf("SelectDataset: %v", err)
	}
	sel, ds, tok, err := s.SelectEntity(state.Entity{Kind: state.EntityGene, ID: "G1"})
	if err != nil {
		t.Fatalf("SelectEntity: %v", err)
	}
	if covar != dataset.Additive {
		if sel, ds, tok, err = s.SelectCovariate(covar); err != nil {
			t.Fatalf("SelectCovariate: %v", err)
		}
	}
	return sel, ds, tok
}

// sub wraps a compute-service result the way it arrives in response_data.
func sub(result string) tasks.SubResult {
	return tasks.SubResult{StatusCode: 200, Response: json.RawMessage(`{"result":` + result + `}`)}
}

const (
	additiveScan = `[["1_10","1",10,1.5],["1_60","1",60,3.25],["2_20","2",20,2.0]]`
	sexScan      = `[["1_10","1",10,2.0],["1_60","1",60,3.0],["2_20","2",20,5.0]]`
	expression   = `{"data":[
		{"sample_id":"S1","expression":1.0,"sex":"F","diet":"hf"},
		{"sample_id":"S2","expression":3.0,"sex":"F","diet":"chow"},
		{"sample_id":"S3","expression":2.0,"sex":"M","diet":"hf"},
		{"sample_id":"S4","expression":null,"sex":"M","diet":"hf"}],
		"datatypes":{"sex":["F","M"],"diet":["chow","hf"]}}`
	correlations = `{"correlations":[{"id":"G2","symbol":"Def","chr":"1","start":5,"end":9,"cor":0.8}]}`
)

func entityResult(withCovar bool) *tasks.Result {
	res := &tasks.Result{GroupID: "g1", Data: map[string]tasks.SubResult{
		state.IDGeneData:    {StatusCode: 200, Response: json.RawMessage(`{"gene":{"G1":{"id":"G1","symbol":"Abc","chromosome":"2","start":1,"end":9}}}`)},
		state.IDExpression:  sub(expression),
		state.IDCorrelation: sub(correlations),
		state.IDLOD:         sub(additiveScan),
	}}
	if withCovar {
		res.Data[state.IDLODCovar] = sub(sexScan)
	}
	return res
}

func TestCSVExport(t *testing.T) {
	a := &Artifact[SNPRow]{
		Name:      NameSNP,
		EntityID:  "G1",
		Covariate: "sex",
		Variant:   VariantFull,
		Header:    []string{"id", "lod"},
		Rows: []SNPRow{{SNP: qtl.SNP{
			Marker:      qtl.Marker{ID: `rs"1`, Chromosome: "1", Position: 3000001},
			Ref:         "A",
			Alt:         "G",
			Consequence: "intron",
			LOD:         math.NaN(),
		}}},
	}
	if got := a.Filename(); got != "G1_SNPASSOC_sex_FULL.csv" {
		t.Fatalf("unexpected filename %q", got)
	}

	var buf bytes.Buffer
	if err := a.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "\"id\",\"lod\"\n\"rs\"\"1\",\"1\",3000001,\"A/G\",\"intron\",NA\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}
}

func TestCellFormat(t *testing.T) {
	tests := []struct {
		cell Cell
		want string
	}{
		{Num(1.5), "1.5"},
		{Num(3e7), "30000000"},
		{Num(math.Inf(-1)), "-Inf"},
		{Str("a,b"), `"a,b"`},
		{Str(""), `""`},
	}
	for _, tt := range tests {
		if got := tt.cell.format(); got != tt.want {
			t.Errorf("format(%+v) = %q, want %q", tt.cell, got, tt.want)
		}
	}
}

func TestApplyEntity(t *testing.T) {
	s := state.NewAppState(testRegistry(t))
	sel, ds, tok := selectGene(t, s, "sex")
	d := New(s)

	view, err := d.ApplyEntity(tok, sel, ds, entityResult(true), ProfileOptions{})
	if err != nil {
		t.Fatalf("ApplyEntity: %v", err)
	}
	if view.Gene == nil || view.Gene.Symbol != "Abc" {
		t.Fatalf("unexpected gene %+v", view.Gene)
	}
	if len(view.LOD.Additive.Rows) != 3 || view.LOD.Additive.Rows[2].X != 120 {
		t.Fatalf("unexpected additive rows %+v", view.LOD.Additive.Rows)
	}
	if view.LOD.Diff == nil || view.LOD.Diff.Rows[2].LOD != 3 {
		t.Fatalf("unexpected diff %+v", view.LOD.Diff)
	}
	if got := view.LOD.Diff.Filename(); got != "G1_LOD_sex_DIFF.csv" {
		t.Fatalf("unexpected diff filename %q", got)
	}

	// sex is the only primary covariate, so the profile has two boxes
	if n := len(view.Profile.Categories); n != 2 {
		t.Fatalf("expected 2 categories, got %d", n)
	}
	if f := view.Profile.Categories[0]; f.Name != "F" || f.N != 2 || f.Box.Median != 2 {
		t.Fatalf("unexpected F box %+v", f)
	}

	for _, key := range []string{KeyLOD, KeyLODFull, KeyLODDiff, KeyProfile, KeyCorrelation} {
		if _, ok := d.Export(key); !ok {
			t.Errorf("missing artifact %s", key)
		}
	}
	target, ok := d.Click(KeyCorrelation, 0)
	if !ok || target.Entity.ID != "G2" || target.Entity.Kind != state.EntityGene {
		t.Fatalf("unexpected click target %+v", target)
	}
}

func TestApplyEntityStaleToken(t *testing.T) {
	s := state.NewAppState(testRegistry(t))
	sel, ds, tok := selectGene(t, s, dataset.Additive)
	d := New(s)

	if _, _, _, err := s.SelectEntity(state.Entity{Kind: state.EntityGene, ID: "G2"}); err != nil {
		t.Fatalf("SelectEntity: %v", err)
	}
	if _, err := d.ApplyEntity(tok, sel, ds, entityResult(false), ProfileOptions{}); !errors.Is(err, tasks.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if _, ok := d.Export(KeyLOD); ok {
		t.Fatalf("stale result must not be stored")
	}
}

func TestApplyCovariateMismatch(t *testing.T) {
	s := state.NewAppState(testRegistry(t))
	sel, ds, tok := selectGene(t, s, dataset.Additive)
	d := New(s)
	if _, err := d.ApplyEntity(tok, sel, ds, entityResult(false), ProfileOptions{}); err != nil {
		t.Fatalf("ApplyEntity: %v", err)
	}

	sel, ds, tok, err := s.SelectCovariate("sex")
	if err != nil {
		t.Fatalf("SelectCovariate: %v", err)
	}
	if ok, err := d.HasAdditive(tok); !ok || err != nil {
		t.Fatalf("additive scan should be cached: %v", err)
	}
	res := &tasks.Result{GroupID: "g2", Data: map[string]tasks.SubResult{
		state.IDLODCovar: sub(`[["1_10","1",10,2.0],["2_20","2",20,5.0]]`),
	}}
	_, err = d.ApplyCovariate(tok, sel, ds, res)
	var te *tasks.TaskError
	if !errors.As(err, &te) || te.Kind != tasks.KindDataShape {
		t.Fatalf("expected data shape error, got %v", err)
	}
	if !errors.Is(err, genome.ErrMismatchedScans) {
		t.Fatalf("expected ErrMismatchedScans, got %v", err)
	}
}

func TestApplyCovariateUsesCache(t *testing.T) {
	s := state.NewAppState(testRegistry(t))
	sel, ds, tok := selectGene(t, s, dataset.Additive)
	d := New(s)
	if _, err := d.ApplyEntity(tok, sel, ds, entityResult(false), ProfileOptions{}); err != nil {
		t.Fatalf("ApplyEntity: %v", err)
	}

	sel, ds, tok, _ = s.SelectCovariate("sex")
	res := &tasks.Result{GroupID: "g2", Data: map[string]tasks.SubResult{state.IDLODCovar: sub(sexScan)}}
	view, err := d.ApplyCovariate(tok, sel, ds, res)
	if err != nil {
		t.Fatalf("ApplyCovariate: %v", err)
	}
	if view.Full == nil || view.Diff.Rows[0].LOD != 0.5 {
		t.Fatalf("unexpected view %+v", view)
	}

	// back to additive and then sex again: both scans are cached
	if _, _, _, err := s.SelectCovariate(dataset.Additive); err != nil {
		t.Fatalf("SelectCovariate: %v", err)
	}
	sel, ds, tok, _ = s.SelectCovariate("sex")
	cached, hit, err := d.CachedCovariate(tok, sel, ds)
	if err != nil || !hit || cached.Diff == nil {
		t.Fatalf("expected cache hit, got %v %v", hit, err)
	}
}

func TestCachedCovariateStaleToken(t *testing.T) {
	s := state.NewAppState(testRegistry(t))
	sel, ds, tok := selectGene(t, s, "sex")
	d := New(s)
	if _, err := d.ApplyEntity(tok, sel, ds, entityResult(true), ProfileOptions{}); err != nil {
		t.Fatalf("ApplyEntity: %v", err)
	}
	if _, _, _, err := s.SelectCovariate(dataset.Additive); err != nil {
		t.Fatalf("SelectCovariate: %v", err)
	}
	staleSel, staleDS, staleTok, err := s.SelectCovariate("sex")
	if err != nil {
		t.Fatalf("SelectCovariate: %v", err)
	}

	// the user moves on before the covariate switch is served
	if _, _, _, err := s.SelectEntity(state.Entity{Kind: state.EntityGene, ID: "G2"}); err != nil {
		t.Fatalf("SelectEntity: %v", err)
	}

	view, hit, err := d.CachedCovariate(staleTok, staleSel, staleDS)
	if !errors.Is(err, tasks.ErrSuperseded) || hit || view != nil {
		t.Fatalf("expected ErrSuperseded, got hit=%v err=%v", hit, err)
	}
	if _, err := d.HasAdditive(staleTok); !errors.Is(err, tasks.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded from HasAdditive, got %v", err)
	}
	if _, ok := d.Export(KeyLOD); ok {
		t.Fatalf("stale covariate switch must not store G1 plots for G2")
	}
}

func TestPeaks(t *testing.T) {
	reg := testRegistry(t)
	ds, _ := reg.Get("ds.mrna")
	a, sum, err := ReshapePeaks(ds, dataset.Additive, 6)
	if err != nil {
		t.Fatalf("ReshapePeaks: %v", err)
	}
	// the chromosome 9 peak passes the threshold but has no axis position
	if len(a.Rows) != 1 || sum.Skipped != 1 || sum.Total != 3 {
		t.Fatalf("unexpected peaks %d %+v", len(a.Rows), sum)
	}
	if sum.Slider.Min != 3 || sum.Slider.Max != 13 {
		t.Fatalf("unexpected slider %+v", sum.Slider)
	}
	target, ok := a.ClickTarget(0)
	if !ok || target.Entity.ID != "G1" || target.DatasetID != "ds.mrna" {
		t.Fatalf("unexpected target %+v", target)
	}
	if a.Rows[0].Y != 105 {
		t.Fatalf("gene G1 should sit at 105 on the genome axis, got %v", a.Rows[0].Y)
	}
	if _, _, err := ReshapePeaks(ds, "sex", 6); !errors.Is(err, ErrNoPeaks) {
		t.Fatalf("expected ErrNoPeaks, got %v", err)
	}
}

func TestProfileFactors(t *testing.T) {
	reg := testRegistry(t)
	ds, _ := reg.Get("ds.mrna")
	var set qtl.SampleSet
	if err := json.Unmarshal([]byte(expression), &set); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	_, prof, err := ReshapeProfile(ds, "G1", set, ProfileOptions{Factors: []string{"diet", "sex"}, ColorBy: "diet"})
	if err != nil {
		t.Fatalf("ReshapeProfile: %v", err)
	}
	names := make([]string, len(prof.Categories))
	for i, c := range prof.Categories {
		names[i] = c.Name
	}
	want := []string{"F:chow", "F:hf", "M:chow", "M:hf"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected categories %v", names)
		}
	}
	if len(prof.Points) != 3 || prof.Points[0].Series != "hf" {
		t.Fatalf("unexpected points %+v", prof.Points)
	}

	if _, _, err := ReshapeProfile(ds, "G1", set, ProfileOptions{Factors: []string{"age"}}); err == nil {
		t.Fatalf("expected unknown covariate error")
	}
}

func TestEffectJoinsLODByMarker(t *testing.T) {
	effects := []qtl.EffectPoint{
		{Marker: qtl.Marker{ID: "m1", Chromosome: "1", Position: 1}},
		{Marker: qtl.Marker{ID: "m2", Chromosome: "1", Position: 2}},
	}
	scan := []qtl.ScanPoint{{Marker: qtl.Marker{ID: "m2", Chromosome: "1", Position: 2}, LOD: 4}}
	a := ReshapeEffect("G1", "sex", "F", effects, scan)
	if !math.IsNaN(a.Rows[0].LOD) || a.Rows[1].LOD != 4 {
		t.Fatalf("unexpected rows %+v", a.Rows)
	}
	if a.Filename() != "G1_EFFECT_sex_F.csv" {
		t.Fatalf("unexpected filename %s", a.Filename())
	}
	if EffectKey("F") != "effect-F" || EffectKey(dataset.Additive) != KeyEffect {
		t.Fatalf("unexpected effect keys")
	}
}

func TestCorrelationPlotDropsIncomplete(t *testing.T) {
	var set qtl.SampleSet
	body := `{"data":[{"sample_id":"S1","x":1,"y":2},{"sample_id":"S2","x":null,"y":2},{"sample_id":"S3","x":4}],"datatypes":{}}`
	if err := json.Unmarshal([]byte(body), &set); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	a, dropped := ReshapeCorrelationPlot("G1", "G2", set)
	if len(a.Rows) != 1 || dropped != 2 || a.Filename() != "G1_G2_CORRELATION.csv" {
		t.Fatalf("unexpected plot %d rows, %d dropped, %s", len(a.Rows), dropped, a.Filename())
	}
}
