package handler

import (
	"context"
	"net/http"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/dispatch"
	"github.com/yumyai/qtlview/pkg/genome"
	"github.com/yumyai/qtlview/pkg/handler/request"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/render"
	"github.com/yumyai/qtlview/pkg/state"
	"github.com/yumyai/qtlview/pkg/tasks"
	"go.uber.org/zap"
)

type SelectionResponse struct {
	Selection  state.Selection     `json:"selection"`
	Covariates []dataset.Covariate `json:"covariates"`
}

// EntityResponse carries every chart produced by the entity group.
type EntityResponse struct {
	Selection    state.Selection         `json:"selection"`
	GroupID      string                  `json:"group_id"`
	Gene         *qtl.GeneInfo           `json:"gene,omitempty"`
	LOD          render.Chart            `json:"lod"`
	Profile      render.Chart            `json:"profile"`
	Correlations render.CorrelationTable `json:"correlations"`
	Skipped      int                     `json:"skipped"`
}

type CovariateResponse struct {
	Selection state.Selection `json:"selection"`
	GroupID   string          `json:"group_id,omitempty"`
	Cached    bool            `json:"cached"`
	LOD       *render.Chart   `json:"lod,omitempty"`
}

type PeaksResponse struct {
	Chart   render.Chart         `json:"chart"`
	Summary dispatch.PeakSummary `json:"summary"`
}

func (app *AppContext) SelectDataset(w http.ResponseWriter, r *http.Request) {
	sel, err := app.State.SelectDataset(r.PathValue("dataset_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ds, _ := app.State.Registry().Get(sel.DatasetID)
	writeJSON(w, http.StatusOK, SelectionResponse{Selection: sel, Covariates: ds.InteractiveCovariates()})
}

func (app *AppContext) SelectEntity(w http.ResponseWriter, r *http.Request) {
	var req request.EntityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sel, ds, tok, err := app.State.SelectEntity(req.Entity())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := app.runEntity(r.Context(), sel, ds, tok, req.ProfileOptions(), req.ColorBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// runEntity submits the entity group and applies its results.
func (app *AppContext) runEntity(ctx context.Context, sel state.Selection, ds *dataset.Dataset, tok tasks.Token, opts dispatch.ProfileOptions, colorBy string) (*EntityResponse, error) {
	res, err := app.Tasks.Run(ctx, tok, app.Requests.Entity(ds, *sel.Entity, sel.Covariate))
	if err != nil {
		return nil, err
	}
	view, err := app.Dispatch.ApplyEntity(tok, sel, ds, res, opts)
	if err != nil {
		return nil, err
	}

	if colorBy == "" && len(view.Profile.Title) > 0 {
		colorBy = view.Profile.Title[0]
	}
	return &EntityResponse{
		Selection:    sel,
		GroupID:      res.GroupID,
		Gene:         view.Gene,
		LOD:          render.LODChart(ds.Table(), view.LOD),
		Profile:      render.ProfileChart(view.Profile, colorBy, view.ProfileRows.Filename()),
		Correlations: render.CorrelationList(view.Correlations),
		Skipped:      view.LOD.Skipped,
	}, nil
}

// SelectCovariate switches the interactive covariate. Cached scans are
// replotted without contacting the compute service.
func (app *AppContext) SelectCovariate(w http.ResponseWriter, r *http.Request) {
	var req request.CovariateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sel, ds, tok, err := app.State.SelectCovariate(req.Covariate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := CovariateResponse{Selection: sel}
	if sel.Entity == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	view, hit, err := app.Dispatch.CachedCovariate(tok, sel, ds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !hit {
		haveAdditive, err := app.Dispatch.HasAdditive(tok)
		if err != nil {
			writeError(w, r, err)
			return
		}
		reqs := app.Requests.Covariate(ds, *sel.Entity, sel.Covariate, haveAdditive)
		res, err := app.Tasks.Run(r.Context(), tok, reqs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if view, err = app.Dispatch.ApplyCovariate(tok, sel, ds, res); err != nil {
			writeError(w, r, err)
			return
		}
		resp.GroupID = res.GroupID
	}
	resp.Cached = hit
	chart := render.LODChart(ds.Table(), view)
	resp.LOD = &chart
	writeJSON(w, http.StatusOK, resp)
}

// Click turns a clicked point into a new selection and loads it. A point
// from another dataset switches dataset first.
func (app *AppContext) Click(w http.ResponseWriter, r *http.Request) {
	var req request.ClickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, ok := app.Dispatch.Click(req.Artifact, req.Index)
	if !ok {
		writeError(w, r, &state.SelectionError{Field: "click", Reason: "point does not select an entity"})
		return
	}

	if cur := app.State.Snapshot(); cur.DatasetID != target.DatasetID {
		if _, err := app.State.SelectDataset(target.DatasetID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	sel, ds, tok, err := app.State.SelectEntity(target.Entity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Debug("Point clicked",
		zap.String("artifact", req.Artifact),
		zap.Int("index", req.Index),
		zap.String("entity", target.Entity.ID))

	resp, err := app.runEntity(r.Context(), sel, ds, tok, dispatch.ProfileOptions{}, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Peaks returns the dataset's precomputed peaks above threshold. The
// threshold defaults to the bottom of the LOD domain, which shows them all.
func (app *AppContext) Peaks(w http.ResponseWriter, r *http.Request) {
	var (
		ds    *dataset.Dataset
		covar string
	)
	app.State.View(func(ws *state.Workspace) {
		ds, covar = ws.Dataset, ws.Selection.Covariate
	})
	if ds == nil {
		writeError(w, r, &state.SelectionError{Field: "dataset", Reason: "no dataset selected"})
		return
	}
	if c := r.URL.Query().Get("covar"); c != "" {
		covar = c
	}

	threshold := 0.0
	if peaks, ok := ds.Peaks(covar); ok {
		if d, ok := genome.LODDomain(peaks); ok {
			threshold = d.Min
		}
	}
	threshold = parseFloatFallback(r.URL.Query().Get("threshold"), threshold)

	a, sum, err := app.Dispatch.Peaks(ds, covar, threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PeaksResponse{Chart: render.PeaksChart(ds, a, sum), Summary: sum})
}
