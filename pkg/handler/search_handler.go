package handler

import (
	"net/http"
	"strings"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/db"
	"github.com/yumyai/qtlview/pkg/ensimpl"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/state"
	"go.uber.org/zap"
)

type PhenotypeSearchResponse struct {
	Phenotypes []db.Phenotype `json:"phenotypes"`
	Categories []string       `json:"categories"`
}

type GeneSearchResponse struct {
	Term    string          `json:"term"`
	Matches []ensimpl.Match `json:"matches"`
}

func (app *AppContext) currentDataset() (*dataset.Dataset, error) {
	var ds *dataset.Dataset
	app.State.View(func(ws *state.Workspace) {
		ds = ws.Dataset
	})
	if ds == nil {
		return nil, &state.SelectionError{Field: "dataset", Reason: "no dataset selected"}
	}
	return ds, nil
}

// SearchPhenotypes searches the phenotypes of the selected pheno dataset.
func (app *AppContext) SearchPhenotypes(w http.ResponseWriter, r *http.Request) {
	ds, err := app.currentDataset()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ds.Datatype != qtl.Phenotype {
		writeError(w, r, &state.SelectionError{Field: "dataset", Reason: ds.ID + " has no phenotypes"})
		return
	}

	q := db.SearchQuery{
		DatasetID: ds.ID,
		Term:      strings.TrimSpace(r.URL.Query().Get("search")),
		Category:  r.URL.Query().Get("category"),
		Limit:     parsePositiveIntFallback(r.URL.Query().Get("limit"), db.DefaultSearchLimit),
	}
	logger.Info("Running phenotype search",
		zap.String("dataset", q.DatasetID),
		zap.String("search", q.Term),
		zap.String("category", q.Category),
		zap.Int("limit", q.Limit),
	)

	phenos, err := app.Phenotypes.Search(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := app.Phenotypes.Categories(r.Context(), ds.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if phenos == nil {
		phenos = []db.Phenotype{}
	}
	writeJSON(w, http.StatusOK, PhenotypeSearchResponse{Phenotypes: phenos, Categories: cats})
}

// SearchGenes searches the annotation service and flags the hits measured
// in the selected dataset.
func (app *AppContext) SearchGenes(w http.ResponseWriter, r *http.Request) {
	ds, err := app.currentDataset()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ds.Datatype.IsGeneBased() {
		writeError(w, r, &state.SelectionError{Field: "dataset", Reason: ds.ID + " has no genes"})
		return
	}
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		writeError(w, r, &badRequest{errEmptyTerm})
		return
	}

	matches, err := app.Genes.Search(r.Context(), term, ensimpl.SearchOptions{
		Species: ds.Ensembl.Species,
		Release: ds.Ensembl.Release,
		Limit:   parsePositiveIntFallback(r.URL.Query().Get("limit"), ensimpl.DefaultLimit),
		Greedy:  r.URL.Query().Get("greedy") == "true",
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "gene search failed", Messages: []string{err.Error()}})
		logger.Error("Gene search failed", zap.String("term", term), zap.Error(err))
		return
	}
	writeJSON(w, http.StatusOK, GeneSearchResponse{Term: term, Matches: ensimpl.MatchDataset(ds, matches)})
}
