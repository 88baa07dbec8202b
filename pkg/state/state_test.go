package state

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/genome"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/tasks"
)

func testRegistry(t *testing.T) *dataset.Registry {
	t.Helper()
	chroms := []genome.Chromosome{{Name: "1", Length: 100}, {Name: "2", Length: 80}}
	reg, err := dataset.NewRegistry(context.Background(), []*dataset.Dataset{
		{
			ID:          "dataset.mrna",
			Datatype:    qtl.MRNA,
			Ensembl:     dataset.Ensembl{Release: "105", Species: "Mm"},
			Chromosomes: chroms,
			CovarInfo: []dataset.Covariate{
				{SampleColumn: "sex", DisplayName: "Sex", Interactive: true},
				{SampleColumn: "generation", DisplayName: "Generation"},
			},
		},
		{
			ID:          "dataset.pheno",
			Datatype:    qtl.Phenotype,
			Chromosomes: chroms,
			Phenotypes: map[string]dataset.Phenotype{
				"bw_6wk": {ShortName: "BW6", IsPheno: true, IsNumeric: true},
			},
		},
	}, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestEntityKind(t *testing.T) {
	for _, k := range []EntityKind{EntityGene, EntityProtein, EntityPhosphosite, EntityPhenotype} {
		if ParseEntityKind(k.String()) != k {
			t.Fatalf("round trip failed for %s", k)
		}
	}
	if ParseEntityKind("transcript") != EntityUnknown {
		t.Fatalf("expected unknown kind")
	}
	if KindFor(qtl.Phos) != EntityPhosphosite || KindFor(qtl.Phenotype) != EntityPhenotype {
		t.Fatalf("unexpected kind mapping")
	}
}

func TestSelectDatasetResets(t *testing.T) {
	s := NewAppState(testRegistry(t))
	if _, err := s.SelectDataset("dataset.mrna"); err != nil {
		t.Fatalf("SelectDataset: %v", err)
	}
	_, _, tok, err := s.SelectEntity(Entity{Kind: EntityGene, ID: "G1"})
	if err != nil {
		t.Fatalf("SelectEntity: %v", err)
	}
	if _, _, _, err := s.SelectCovariate("sex"); err != nil {
		t.Fatalf("SelectCovariate: %v", err)
	}
	s.View(func(ws *Workspace) {
		ws.LOD[dataset.Additive] = []qtl.ScanPoint{{}}
	})

	sel, err := s.SelectDataset("dataset.pheno")
	if err != nil {
		t.Fatalf("SelectDataset: %v", err)
	}
	if sel.Entity != nil || sel.Covariate != dataset.Additive || sel.Correlation.DatasetID != "dataset.pheno" {
		t.Fatalf("selection not reset: %+v", sel)
	}
	s.View(func(ws *Workspace) {
		if len(ws.LOD) != 0 || len(ws.Artifacts) != 0 {
			t.Fatalf("derived state not cleared")
		}
	})
	if tok.Live() {
		t.Fatalf("switching dataset must retire the running group")
	}

	var se *SelectionError
	if _, err := s.SelectDataset("nope"); !errors.As(err, &se) {
		t.Fatalf("expected SelectionError, got %v", err)
	}
}

func TestSelectEntityValidation(t *testing.T) {
	s := NewAppState(testRegistry(t))

	var se *SelectionError
	if _, _, _, err := s.SelectEntity(Entity{Kind: EntityGene, ID: "G1"}); !errors.As(err, &se) {
		t.Fatalf("expected error without a dataset, got %v", err)
	}

	s.SelectDataset("dataset.pheno")
	tests := []struct {
		name string
		e    Entity
		ok   bool
	}{
		{"known phenotype", Entity{Kind: EntityPhenotype, ID: "bw_6wk"}, true},
		{"unknown phenotype", Entity{Kind: EntityPhenotype, ID: "bw_99wk"}, false},
		{"wrong kind", Entity{Kind: EntityGene, ID: "G1"}, false},
		{"empty id", Entity{Kind: EntityPhenotype}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := s.SelectEntity(tt.e)
			if (err == nil) != tt.ok {
				t.Fatalf("unexpected result %v", err)
			}
		})
	}
}

func TestSelectCovariateValidation(t *testing.T) {
	s := NewAppState(testRegistry(t))
	s.SelectDataset("dataset.mrna")

	for _, name := range []string{"sex", dataset.Additive} {
		if _, _, _, err := s.SelectCovariate(name); err != nil {
			t.Fatalf("%s should be accepted: %v", name, err)
		}
	}
	for _, name := range []string{"generation", "diet", ""} {
		var se *SelectionError
		if _, _, _, err := s.SelectCovariate(name); !errors.As(err, &se) {
			t.Fatalf("%q should be rejected, got %v", name, err)
		}
	}
	if s.Snapshot().Covariate != dataset.Additive {
		t.Fatalf("rejected covariate must not change the selection")
	}
}

func TestApplyRejectsStaleToken(t *testing.T) {
	s := NewAppState(testRegistry(t))
	s.SelectDataset("dataset.mrna")
	_, _, first, _ := s.SelectEntity(Entity{Kind: EntityGene, ID: "G1"})
	_, _, second, _ := s.SelectEntity(Entity{Kind: EntityGene, ID: "G2"})

	applied := false
	err := s.Apply(first, func(ws *Workspace) error {
		applied = true
		return nil
	})
	if !errors.Is(err, tasks.ErrSuperseded) || applied {
		t.Fatalf("stale token applied: %v", err)
	}
	if err := s.Apply(second, func(ws *Workspace) error { return nil }); err != nil {
		t.Fatalf("live token rejected: %v", err)
	}

	s.Stop()
	if err := s.Apply(second, func(ws *Workspace) error { return nil }); !errors.Is(err, tasks.ErrSuperseded) {
		t.Fatalf("stopped token applied: %v", err)
	}
}

func TestSelectCorrelationTarget(t *testing.T) {
	s := NewAppState(testRegistry(t))
	s.SelectDataset("dataset.mrna")
	if _, _, _, err := s.SelectCorrelationTarget("dataset.pheno", "bw_6wk"); err == nil {
		t.Fatalf("expected error without an entity")
	}
	s.SelectEntity(Entity{Kind: EntityGene, ID: "G1"})
	sel, _, _, err := s.SelectCorrelationTarget("dataset.pheno", "bw_6wk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Correlation.DatasetID != "dataset.pheno" || sel.Correlation.EntityID != "bw_6wk" {
		t.Fatalf("unexpected target %+v", sel.Correlation)
	}
	if _, _, _, err := s.SelectCorrelationTarget("nope", "x"); err == nil {
		t.Fatalf("expected error for unknown dataset")
	}
}

func query(t *testing.T, raw string) (string, url.Values) {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("bad url %s: %v", raw, err)
	}
	return u.Path, u.Query()
}

func ids(reqs []tasks.SubRequest) string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return strings.Join(out, ",")
}

func TestCovariateSexProducesTwoScans(t *testing.T) {
	s := NewAppState(testRegistry(t))
	s.SelectDataset("dataset.mrna")
	if _, _, _, err := s.SelectCovariate("sex"); err != nil {
		t.Fatalf("SelectCovariate: %v", err)
	}
	sel, ds, _, err := s.SelectEntity(Entity{Kind: EntityGene, ID: "ENSMUSG01"})
	if err != nil {
		t.Fatalf("SelectEntity: %v", err)
	}

	b := RequestBuilder{RBaseURL: "http://r/api/", APIURL: "http://ensimpl", Cores: 4}
	reqs := b.Entity(ds, *sel.Entity, sel.Covariate)
	if got := ids(reqs); got != "geneData,expression,correlation,lod,lodCovar" {
		t.Fatalf("unexpected group %s", got)
	}

	path, q := query(t, reqs[3].URL)
	if path != "/api/lodscan" || q.Get("intcovar") != "additive" || q.Get("id") != "ENSMUSG01" || q.Get("cores") != "4" {
		t.Fatalf("unexpected lod url %s", reqs[3].URL)
	}
	_, q = query(t, reqs[4].URL)
	if q.Get("intcovar") != "sex" || q.Get("dataset") != "dataset.mrna" {
		t.Fatalf("unexpected lodCovar url %s", reqs[4].URL)
	}

	if got := ids(b.Covariate(ds, *sel.Entity, "sex", false)); got != "lod,lodCovar" {
		t.Fatalf("unexpected covariate group %s", got)
	}
	if got := ids(b.Covariate(ds, *sel.Entity, "sex", true)); got != "lodCovar" {
		t.Fatalf("cached additive should not be requested again: %s", got)
	}
}

func TestRequestBuilderGroups(t *testing.T) {
	reg := testRegistry(t)
	mrna, _ := reg.Get("dataset.mrna")
	pheno, _ := reg.Get("dataset.pheno")
	b := RequestBuilder{RBaseURL: "http://r", APIURL: "http://ensimpl"}
	gene := Entity{Kind: EntityGene, ID: "G1"}
	bw := Entity{Kind: EntityPhenotype, ID: "bw_6wk"}

	if got := ids(b.Entity(pheno, bw, dataset.Additive)); got != "expression,correlation,lod" {
		t.Fatalf("unexpected pheno group %s", got)
	}

	effect := b.Effect(mrna, gene, "2", "sex", true)
	if ids(effect) != "effect,lodSamples" {
		t.Fatalf("unexpected effect group %s", ids(effect))
	}
	if _, q := query(t, effect[0].URL); q.Get("blup") != "true" || q.Get("chrom") != "2" {
		t.Fatalf("unexpected effect url %s", effect[0].URL)
	}
	if _, q := query(t, effect[1].URL); q.Has("blup") {
		t.Fatalf("lodscansamples must not carry blup")
	}
	if ids(b.Effect(mrna, gene, "2", dataset.Additive, false)) != "effect" {
		t.Fatalf("additive effect needs no sample scan")
	}

	med, err := b.Mediation(mrna, gene, "2_500", mrna)
	if err != nil {
		t.Fatalf("Mediation: %v", err)
	}
	if _, q := query(t, med[0].URL); q.Get("marker_id") != "2_500" || q.Get("dataset_mediate") != "dataset.mrna" {
		t.Fatalf("unexpected mediate url %s", med[0].URL)
	}
	if _, err := b.Mediation(mrna, gene, "2_500", pheno); err == nil {
		t.Fatalf("phenotype datasets cannot mediate")
	}

	snp := b.SNPAssoc(mrna, gene, "2", 500.5, dataset.Additive)
	if ids(snp) != "snpAssoc,genesInfoURL,genesRankingURL" {
		t.Fatalf("unexpected snp group %s", ids(snp))
	}
	if _, q := query(t, snp[0].URL); q.Get("location") != "500.5" || q.Get("window_size") != "3000000" || q.Has("intcovar") {
		t.Fatalf("unexpected snp url %s", snp[0].URL)
	}
	if ids(b.SNPAssoc(pheno, bw, "2", 1, "sex")) != "snpAssoc,genesInfoURL" {
		t.Fatalf("phenotype snp group should skip rankings")
	}

	corr := b.CorrelationPlot(mrna, gene, CorrelationTarget{DatasetID: "dataset.pheno", EntityID: "bw_6wk"}, "none")
	if _, q := query(t, corr[0].URL); q.Get("id_correlate") != "bw_6wk" || q.Has("intcovar") {
		t.Fatalf("unexpected correlation plot url %s", corr[0].URL)
	}
}
