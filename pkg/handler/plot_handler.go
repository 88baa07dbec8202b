package handler

import (
	"encoding/json"
	"net/http"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/handler/request"
	"github.com/yumyai/qtlview/pkg/render"
	"github.com/yumyai/qtlview/pkg/state"
	"go.uber.org/zap"
)

type PlotResponse struct {
	Kind      string          `json:"kind"`
	Selection state.Selection `json:"selection"`
	GroupID   string          `json:"group_id"`
	Charts    []render.Chart  `json:"charts"`
	Skipped   int             `json:"skipped,omitempty"`
	Extra     any             `json:"extra,omitempty"`
}

type snpExtra struct {
	Genes    json.RawMessage `json:"genes,omitempty"`
	Rankings json.RawMessage `json:"rankings,omitempty"`
}

// Plot generates one of the on-demand plots for the selected entity.
func (app *AppContext) Plot(w http.ResponseWriter, r *http.Request) {
	kind := request.ParsePlotKind(r.PathValue("kind"))
	logger.Debug("Plot requested", zap.Stringer("kind", kind))

	var (
		resp *PlotResponse
		err  error
	)
	switch kind {
	case request.PlotEffect:
		resp, err = app.effectPlot(w, r)
	case request.PlotMediation:
		resp, err = app.mediationPlot(w, r)
	case request.PlotSNP:
		resp, err = app.snpPlot(w, r)
	case request.PlotCorrelation:
		resp, err = app.correlationPlot(w, r)
	default:
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown plot " + r.PathValue("kind")})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.Kind = kind.String()
	writeJSON(w, http.StatusOK, resp)
}

func (app *AppContext) effectPlot(w http.ResponseWriter, r *http.Request) (*PlotResponse, error) {
	var req request.EffectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	sel, ds, tok, err := app.State.Begin()
	if err != nil {
		return nil, err
	}
	if !ds.Table().Has(req.Chromosome) {
		return nil, &state.SelectionError{Field: "chromosome", Reason: "unknown chromosome " + req.Chromosome}
	}

	res, err := app.Tasks.Run(r.Context(), tok, app.Requests.Effect(ds, *sel.Entity, req.Chromosome, sel.Covariate, req.BLUP))
	if err != nil {
		return nil, err
	}
	view, err := app.Dispatch.ApplyEffect(tok, sel, req.Chromosome, res)
	if err != nil {
		return nil, err
	}
	return &PlotResponse{Selection: sel, GroupID: res.GroupID, Charts: render.EffectCharts(view)}, nil
}

func (app *AppContext) mediationPlot(w http.ResponseWriter, r *http.Request) (*PlotResponse, error) {
	var req request.MediationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	sel, ds, tok, err := app.State.Begin()
	if err != nil {
		return nil, err
	}
	againstID := req.DatasetID
	if againstID == "" {
		againstID = ds.ID
	}
	against, err := app.State.Registry().Get(againstID)
	if err != nil {
		return nil, &state.SelectionError{Field: "mediation dataset", Reason: err.Error()}
	}
	reqs, err := app.Requests.Mediation(ds, *sel.Entity, req.MarkerID, against)
	if err != nil {
		return nil, err
	}

	res, err := app.Tasks.Run(r.Context(), tok, reqs)
	if err != nil {
		return nil, err
	}
	view, err := app.Dispatch.ApplyMediation(tok, sel, ds, against, req.MarkerID, res)
	if err != nil {
		return nil, err
	}
	return &PlotResponse{
		Selection: sel,
		GroupID:   res.GroupID,
		Charts:    []render.Chart{render.MediationChart(ds.Table(), view)},
		Skipped:   view.Skipped,
	}, nil
}

func (app *AppContext) snpPlot(w http.ResponseWriter, r *http.Request) (*PlotResponse, error) {
	var req request.SNPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	sel, ds, tok, err := app.State.Begin()
	if err != nil {
		return nil, err
	}
	if !ds.Table().Has(req.Chromosome) {
		return nil, &state.SelectionError{Field: "chromosome", Reason: "unknown chromosome " + req.Chromosome}
	}

	res, err := app.Tasks.Run(r.Context(), tok, app.Requests.SNPAssoc(ds, *sel.Entity, req.Chromosome, req.Location, sel.Covariate))
	if err != nil {
		return nil, err
	}
	view, err := app.Dispatch.ApplySNP(tok, sel, req.Chromosome, req.Location, res)
	if err != nil {
		return nil, err
	}
	resp := &PlotResponse{Selection: sel, GroupID: res.GroupID, Charts: []render.Chart{render.SNPChart(view)}}
	if len(view.Genes) > 0 || len(view.Rankings) > 0 {
		resp.Extra = snpExtra{Genes: view.Genes, Rankings: view.Rankings}
	}
	return resp, nil
}

func (app *AppContext) correlationPlot(w http.ResponseWriter, r *http.Request) (*PlotResponse, error) {
	var req request.CorrelationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	sel, ds, tok, err := app.State.SelectCorrelationTarget(req.DatasetID, req.EntityID)
	if err != nil {
		return nil, err
	}
	covar := req.Covariate
	if covar == "" {
		covar = sel.Covariate
	}

	res, err := app.Tasks.Run(r.Context(), tok, app.Requests.CorrelationPlot(ds, *sel.Entity, sel.Correlation, covar))
	if err != nil {
		return nil, err
	}
	view, err := app.Dispatch.ApplyCorrelationPlot(tok, sel, res)
	if err != nil {
		return nil, err
	}
	colorBy := req.ColorBy
	if colorBy == "" && covar != "none" {
		colorBy = covar
	}
	return &PlotResponse{
		Selection: sel,
		GroupID:   res.GroupID,
		Charts:    []render.Chart{render.CorrelationPlotChart(view, colorBy)},
		Skipped:   view.Dropped,
	}, nil
}
