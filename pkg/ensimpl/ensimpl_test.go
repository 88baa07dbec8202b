package ensimpl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/transport"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(transport.NewClient(1, time.Millisecond), srv.URL+"/")
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/search" || q.Get("term") != "Gnai3" || q.Get("limit") != "100" ||
			q.Get("greedy") != "true" || q.Get("species") != "Mm" || q.Get("release") != "105" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"result":{"matches":[
			{"ensembl_gene_id":"ENSMUSG01","symbol":"Gnai3","chromosome":"3","position_start":108107280,"position_end":108146146,"match_reason":"Symbol","match_value":"Gnai3"},
			{"ensembl_gene_id":"ENSMUSG09","symbol":"Gnai3-ps","chromosome":"7","position_start":1,"position_end":2}]}}`))
	})

	matches, err := c.Search(context.Background(), " Gnai3 ", SearchOptions{Species: "Mm", Release: "105", Greedy: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 || matches[0].Symbol != "Gnai3" || matches[0].PositionStart != 108107280 {
		t.Fatalf("unexpected matches %+v", matches)
	}
}

func TestSearchNullMatches(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"matches":null}}`))
	})
	matches, err := c.Search(context.Background(), "zzz", SearchOptions{})
	if err != nil || matches == nil || len(matches) != 0 {
		t.Fatalf("expected empty matches, got %v %v", matches, err)
	}
	if _, err := c.Search(context.Background(), "  ", SearchOptions{}); err == nil {
		t.Fatalf("expected error for an empty term")
	}
}

func TestGene(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/gene/ENSMUSG01" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"gene":{"ENSMUSG01":{"id":"ENSMUSG01","symbol":"Gnai3","chromosome":"3","start":108107280,"end":108146146}}}`))
	})
	g, err := c.Gene(context.Background(), "ENSMUSG01", "105", "Mm")
	if err != nil || g.Symbol != "Gnai3" {
		t.Fatalf("unexpected gene %+v %v", g, err)
	}
}

func TestMatchDataset(t *testing.T) {
	ds := &dataset.Dataset{
		ID:       "dataset.phos",
		Datatype: qtl.Phos,
		GeneIDs:  map[string]dataset.GeneEntry{"G1": {ProteinIDs: []string{"P1", "P2"}}},
		ProteinIDs: map[string]dataset.ProteinEntry{
			"P1": {PhosIDs: []string{"P1_S5", "P1_T9"}},
		},
	}
	matches := MatchDataset(ds, []Match{{EnsemblGeneID: "G1"}, {EnsemblGeneID: "G2"}})

	if !matches[0].InDataset || matches[1].InDataset {
		t.Fatalf("unexpected match flags %+v", matches)
	}
	if len(matches[0].ProteinIDs) != 2 || len(matches[0].PhosIDs["P1"]) != 2 || len(matches[0].PhosIDs["P2"]) != 0 {
		t.Fatalf("unexpected protein or phos ids %+v", matches[0])
	}
	if matches[1].ProteinIDs != nil || matches[1].Datatype != qtl.Phos {
		t.Fatalf("unmatched gene should carry no proteins %+v", matches[1])
	}
}

func TestURLs(t *testing.T) {
	if got := GeneURL("http://api/", "ENSMUSG01", "105", "Mm"); got != "http://api/api/gene/ENSMUSG01?release=105&species=Mm" {
		t.Fatalf("unexpected gene url %s", got)
	}
	if got := ExonInfoURL("http://api", "11", "105", "Mm"); got != "http://api/api/exon_info?chrom=11&release=105&species=Mm" {
		t.Fatalf("unexpected exon url %s", got)
	}
}
