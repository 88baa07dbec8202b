// Handler for miscellaneous endpoints such as health check

package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/qtl"
	"go.uber.org/zap"
)

type HealthResponse struct {
	Health    string    `json:"health"`
	Timestamp time.Time `json:"timestamp"`
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {

	response := HealthResponse{
		Health:    "ok",
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

}

// DatasetSummary is the registry listing entry.
type DatasetSummary struct {
	ID          string              `json:"id"`
	Datatype    qtl.Datatype        `json:"datatype"`
	DisplayName string              `json:"display_name"`
	Ensembl     dataset.Ensembl     `json:"ensembl"`
	Covariates  []dataset.Covariate `json:"covar_info"`
	HasPeaks    bool                `json:"has_peaks"`
	Phenotypes  int                 `json:"phenotypes"`
}

type DatasetsResponse struct {
	Datasets   []DatasetSummary `json:"datasets"`
	CanMediate bool             `json:"can_mediate"`
}

func (app *AppContext) ListDatasets(w http.ResponseWriter, r *http.Request) {
	reg := app.State.Registry()
	resp := DatasetsResponse{CanMediate: reg.CanMediate()}
	for _, ds := range reg.List() {
		resp.Datasets = append(resp.Datasets, DatasetSummary{
			ID:          ds.ID,
			Datatype:    ds.Datatype,
			DisplayName: ds.DisplayName,
			Ensembl:     ds.Ensembl,
			Covariates:  ds.CovarInfo,
			HasPeaks:    ds.HasPeaks(),
			Phenotypes:  len(ds.Phenotypes),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// TaskStatus reports the record of a task group submitted by this process.
func (app *AppContext) TaskStatus(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group_id")
	rec, ok := app.Tasks.Groups.Get(groupID)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "task group not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Cancel retires the live group. Its poll loop cancels the remote group
// before the next poll.
func (app *AppContext) Cancel(w http.ResponseWriter, r *http.Request) {
	app.State.Stop()
	logger.Info("Live task group stopped", zap.String("dataset", app.State.Snapshot().DatasetID))
	w.WriteHeader(http.StatusNoContent)
}
