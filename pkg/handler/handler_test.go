package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/db"
	"github.com/yumyai/qtlview/pkg/dispatch"
	"github.com/yumyai/qtlview/pkg/ensimpl"
	"github.com/yumyai/qtlview/pkg/genome"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/state"
	"github.com/yumyai/qtlview/pkg/tasks"
	"github.com/yumyai/qtlview/pkg/transport"
)

var fixtures = map[string]string{
	state.IDGeneData:    `{"gene":{"G1":{"id":"G1","symbol":"Abc","chromosome":"2","start":1,"end":9},"G2":{"id":"G2","symbol":"Def","chromosome":"1","start":5,"end":9}}}`,
	state.IDExpression:  `{"result":{"data":[{"sample_id":"S1","expression":1.0,"sex":"F"},{"sample_id":"S2","expression":3.0,"sex":"M"}],"datatypes":{"sex":["F","M"]}}}`,
	state.IDCorrelation: `{"result":{"correlations":[{"id":"G2","symbol":"Def","chr":"1","start":5,"end":9,"cor":0.8}]}}`,
	state.IDLOD:         `{"result":[["1_10","1",10,1.5],["1_60","1",60,3.25],["2_20","2",20,2.0]]}`,
	state.IDLODCovar:    `{"result":[["1_10","1",10,2.0],["1_60","1",60,3.0],["2_20","2",20,5.0]]}`,
}

// computeService fakes the task-group endpoints. Every sub-request is
// answered from fixtures, or overrides when set.
type computeService struct {
	mu        sync.Mutex
	submitted [][]tasks.SubRequest
	overrides map[string]string
	onPoll    func() bool
	cancels   int32
}

func (c *computeService) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /submit", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URLs []tasks.SubRequest `json:"urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad submission: %v", err)
		}
		c.mu.Lock()
		c.submitted = append(c.submitted, body.URLs)
		c.mu.Unlock()
		w.Write([]byte(`{"group_id":"grp-1"}`))
	})
	mux.HandleFunc("GET /status/{id}", func(w http.ResponseWriter, r *http.Request) {
		if c.onPoll != nil && !c.onPoll() {
			w.Write([]byte(`{"status":"PENDING"}`))
			return
		}
		c.mu.Lock()
		last := c.submitted[len(c.submitted)-1]
		c.mu.Unlock()

		data := map[string]json.RawMessage{}
		for _, sub := range last {
			body, ok := c.overrides[sub.ID]
			if !ok {
				body = fixtures[sub.ID]
			}
			data[sub.ID] = json.RawMessage(`{"status_code":200,"response":` + body + `}`)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":              "DONE",
			"number_tasks_errors": 0,
			"response_data":       data,
		})
	})
	mux.HandleFunc("GET /api/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("release") != "105" {
			t.Errorf("unexpected search query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"result":{"matches":[
			{"ensembl_gene_id":"G1","symbol":"Abc","chromosome":"2","position_start":1,"position_end":9},
			{"ensembl_gene_id":"G9","symbol":"Abd","chromosome":"1","position_start":3,"position_end":4}]}}`))
	})
	mux.HandleFunc("GET /cancel/{id}", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&c.cancels, 1)
		w.Write([]byte(`{}`))
	})
	return mux
}

func (c *computeService) lastIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.submitted) == 0 {
		return nil
	}
	var ids []string
	for _, s := range c.submitted[len(c.submitted)-1] {
		ids = append(ids, s.ID)
	}
	return ids
}

func testApp(t *testing.T, svc *computeService) (*AppContext, http.Handler) {
	t.Helper()
	chroms := []genome.Chromosome{{Name: "1", Length: 100}, {Name: "2", Length: 50}}
	datasets := []*dataset.Dataset{
		{
			ID:          "ds.mrna",
			Datatype:    qtl.MRNA,
			Ensembl:     dataset.Ensembl{Release: "105", Species: "Mm"},
			Chromosomes: chroms,
			CovarInfo: []dataset.Covariate{
				{SampleColumn: "sex", DisplayName: "Sex", Primary: true, Interactive: true},
			},
			LODPeaks: map[string][][]any{
				dataset.Additive: {
					{"1_10", "1", 10.0, "G1", "Abc", "2", 5.0, 8.5},
					{"2_20", "2", 20.0, "G2", "Def", "1", 7.0, 4.0},
				},
			},
			GeneIDs: map[string]dataset.GeneEntry{"G1": {}, "G2": {}},
		},
		{
			ID:          "ds.pheno",
			Datatype:    qtl.Phenotype,
			Chromosomes: chroms,
			Phenotypes: map[string]dataset.Phenotype{
				"bw_6wk":  {DataName: "bw_6wk", ShortName: "BW6", Description: "body weight", Category: "weight", IsPheno: true, IsNumeric: true},
				"glu_8wk": {DataName: "glu_8wk", ShortName: "GLU8", Description: "glucose", Category: "clinical", IsPheno: true, IsNumeric: true},
			},
		},
	}
	reg, err := dataset.NewRegistry(context.Background(), datasets, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	ix, err := db.OpenPhenotypeIndex(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenPhenotypeIndex: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	if err := ix.LoadRegistry(context.Background(), reg); err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	srv := httptest.NewServer(svc.handler(t))
	t.Cleanup(srv.Close)
	client := transport.NewClient(1, time.Millisecond)
	orch := tasks.NewOrchestrator(client, srv.URL+"/submit", srv.URL+"/status/", srv.URL+"/cancel/")
	orch.PollInterval = time.Millisecond

	s := state.NewAppState(reg)
	app := &AppContext{
		State:      s,
		Dispatch:   dispatch.New(s),
		Tasks:      orch,
		Requests:   state.RequestBuilder{RBaseURL: "http://r.test", APIURL: "http://api.test"},
		Phenotypes: ix,
		Genes:      ensimpl.NewClient(client, srv.URL),
	}
	return app, NewRouter(app)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndDatasets(t *testing.T) {
	_, h := testApp(t, &computeService{})

	if rec := do(t, h, http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/datasets", "")
	resp := decode[DatasetsResponse](t, rec)
	if len(resp.Datasets) != 2 || !resp.CanMediate {
		t.Fatalf("unexpected datasets %+v", resp)
	}
	if d := resp.Datasets[0]; d.ID != "ds.mrna" || !d.HasPeaks {
		t.Fatalf("unexpected first dataset %+v", d)
	}
}

func TestSelectDatasetErrors(t *testing.T) {
	_, h := testApp(t, &computeService{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown dataset", http.MethodPost, "/api/v1/datasets/nope/select", "", http.StatusBadRequest},
		{"entity without dataset", http.MethodPost, "/api/v1/entity", `{"kind":"gene","id":"G1"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/entity", `{"bogus":1}`, http.StatusBadRequest},
		{"unknown plot", http.MethodPost, "/api/v1/plots/heatmap", `{}`, http.StatusNotFound},
		{"plot without entity", http.MethodPost, "/api/v1/plots/effect", `{"chromosome":"1"}`, http.StatusBadRequest},
		{"cancel", http.MethodPost, "/api/v1/cancel", "", http.StatusNoContent},
		{"no export", http.MethodGet, "/export/lod", "", http.StatusNotFound},
		{"unknown task group", http.MethodGet, "/api/v1/tasks/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSelectEntityAndExport(t *testing.T) {
	svc := &computeService{}
	_, h := testApp(t, svc)

	rec := do(t, h, http.MethodPost, "/api/v1/datasets/ds.mrna/select", "")
	sel := decode[SelectionResponse](t, rec)
	if sel.Selection.Covariate != dataset.Additive || len(sel.Covariates) != 1 {
		t.Fatalf("unexpected selection %+v", sel)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/entity", `{"kind":"gene","id":"G1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("entity: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[EntityResponse](t, rec)
	if resp.GroupID != "grp-1" || resp.Gene == nil || resp.Gene.Symbol != "Abc" {
		t.Fatalf("unexpected entity response %+v", resp)
	}
	if ids := svc.lastIDs(); len(ids) != 4 || ids[0] != state.IDGeneData {
		t.Fatalf("unexpected sub-requests %v", ids)
	}

	rec = do(t, h, http.MethodGet, "/export/lod", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "G1_LOD.csv") {
		t.Fatalf("unexpected disposition %q", got)
	}
	if lines := strings.Count(rec.Body.String(), "\n"); lines != 4 {
		t.Fatalf("expected header and 3 rows, got %d lines", lines)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/tasks/grp-1", "")
	group := decode[tasks.GroupRecord](t, rec)
	if group.Status != tasks.GroupCompleted {
		t.Fatalf("unexpected group record %+v", group)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/click", `{"artifact":"correlation","index":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("click: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[EntityResponse](t, rec); got.Selection.Entity == nil || got.Selection.Entity.ID != "G2" {
		t.Fatalf("click should select G2, got %+v", got.Selection)
	}
}

func TestSelectCovariateUsesCache(t *testing.T) {
	svc := &computeService{}
	_, h := testApp(t, svc)

	do(t, h, http.MethodPost, "/api/v1/datasets/ds.mrna/select", "")
	do(t, h, http.MethodPost, "/api/v1/entity", `{"kind":"gene","id":"G1"}`)

	rec := do(t, h, http.MethodPost, "/api/v1/covariate", `{"covariate":"sex"}`)
	resp := decode[CovariateResponse](t, rec)
	if resp.Cached || resp.LOD == nil {
		t.Fatalf("first switch should run a group: %+v", resp)
	}
	if ids := svc.lastIDs(); len(ids) != 1 || ids[0] != state.IDLODCovar {
		t.Fatalf("cached additive scan should not be requested again: %v", ids)
	}

	do(t, h, http.MethodPost, "/api/v1/covariate", `{"covariate":"additive"}`)
	rec = do(t, h, http.MethodPost, "/api/v1/covariate", `{"covariate":"sex"}`)
	if resp := decode[CovariateResponse](t, rec); !resp.Cached {
		t.Fatalf("second switch should be served from cache")
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/covariate", `{"covariate":"generation"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a non-interactive covariate, got %d", rec.Code)
	}
}

func TestMismatchedScansIsUnprocessable(t *testing.T) {
	svc := &computeService{overrides: map[string]string{
		state.IDLODCovar: `{"result":[["1_10","1",10,2.0]]}`,
	}}
	_, h := testApp(t, svc)

	do(t, h, http.MethodPost, "/api/v1/datasets/ds.mrna/select", "")
	do(t, h, http.MethodPost, "/api/v1/covariate", `{"covariate":"sex"}`)
	rec := do(t, h, http.MethodPost, "/api/v1/entity", `{"kind":"gene","id":"G1"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSupersededIsConflict(t *testing.T) {
	svc := &computeService{}
	app, h := testApp(t, svc)
	svc.onPoll = func() bool {
		app.State.Stop()
		return false
	}

	do(t, h, http.MethodPost, "/api/v1/datasets/ds.mrna/select", "")
	rec := do(t, h, http.MethodPost, "/api/v1/entity", `{"kind":"gene","id":"G1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if atomic.LoadInt32(&svc.cancels) != 1 {
		t.Fatalf("the remote group should be cancelled")
	}
}

func TestPeaks(t *testing.T) {
	_, h := testApp(t, &computeService{})
	do(t, h, http.MethodPost, "/api/v1/datasets/ds.mrna/select", "")

	shown := func(resp PeaksResponse) int {
		n := 0
		for _, s := range resp.Chart.Series {
			n += len(s.Points)
		}
		return n
	}

	resp := decode[PeaksResponse](t, do(t, h, http.MethodGet, "/api/v1/peaks", ""))
	if resp.Summary.Total != 2 || shown(resp) != 2 {
		t.Fatalf("default threshold should show every peak: %+v", resp.Summary)
	}
	resp = decode[PeaksResponse](t, do(t, h, http.MethodGet, "/api/v1/peaks?threshold=5", ""))
	if shown(resp) != 1 || resp.Summary.Threshold != 5 {
		t.Fatalf("expected 1 peak above 5: %+v", resp.Summary)
	}
}

func TestSearchPhenotypes(t *testing.T) {
	_, h := testApp(t, &computeService{})

	do(t, h, http.MethodPost, "/api/v1/datasets/ds.mrna/select", "")
	if rec := do(t, h, http.MethodGet, "/api/v1/phenotypes?search=bw", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("mrna dataset has no phenotypes, got %d", rec.Code)
	}

	do(t, h, http.MethodPost, "/api/v1/datasets/ds.pheno/select", "")
	resp := decode[PhenotypeSearchResponse](t, do(t, h, http.MethodGet, "/api/v1/phenotypes?search=weight", ""))
	if len(resp.Phenotypes) != 1 || resp.Phenotypes[0].ID != "bw_6wk" {
		t.Fatalf("unexpected phenotypes %+v", resp.Phenotypes)
	}
	if len(resp.Categories) != 2 || resp.Categories[0] != "clinical" {
		t.Fatalf("unexpected categories %v", resp.Categories)
	}
}

func TestSearchGenes(t *testing.T) {
	_, h := testApp(t, &computeService{})
	do(t, h, http.MethodPost, "/api/v1/datasets/ds.mrna/select", "")

	if rec := do(t, h, http.MethodGet, "/api/v1/genes/search?term=", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty term should be rejected, got %d", rec.Code)
	}
	resp := decode[GeneSearchResponse](t, do(t, h, http.MethodGet, "/api/v1/genes/search?term=Ab", ""))
	if len(resp.Matches) != 2 || !resp.Matches[0].InDataset || resp.Matches[1].InDataset {
		t.Fatalf("unexpected matches %+v", resp.Matches)
	}
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	header http.Header
	code   int
	writes int
}

func (b *brokenWriter) Header() http.Header { return b.header }
func (b *brokenWriter) WriteHeader(code int) { b.code = code }
func (b *brokenWriter) Write(p []byte) (int, error) {
	b.writes++
	return 0, errors.New("connection reset")
}

func TestExportWriteFailure(t *testing.T) {
	_, h := testApp(t, &computeService{})
	do(t, h, http.MethodPost, "/api/v1/datasets/ds.mrna/select", "")
	do(t, h, http.MethodGet, "/api/v1/peaks", "")

	w := &brokenWriter{header: http.Header{}}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export/peaks", nil))
	if w.writes != 1 || w.header.Get("Content-Type") != "text/csv" {
		t.Fatalf("expected one attempted CSV write, got %d (%v)", w.writes, w.header)
	}
}
