package handler

import "net/http"

// NewRouter registers every route of the service.
func NewRouter(app *AppContext) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	mux.HandleFunc("GET /api/v1/health", HealthCheck)
	mux.HandleFunc("GET /api/v1/datasets", app.ListDatasets)
	mux.HandleFunc("POST /api/v1/datasets/{dataset_id}/select", app.SelectDataset)

	// Search
	mux.HandleFunc("GET /api/v1/phenotypes", app.SearchPhenotypes)
	mux.HandleFunc("GET /api/v1/genes/search", app.SearchGenes)

	// Selection
	mux.HandleFunc("POST /api/v1/entity", app.SelectEntity)
	mux.HandleFunc("POST /api/v1/covariate", app.SelectCovariate)
	mux.HandleFunc("POST /api/v1/click", app.Click)
	mux.HandleFunc("GET /api/v1/peaks", app.Peaks)
	mux.HandleFunc("POST /api/v1/plots/{kind}", app.Plot)

	// Task groups
	mux.HandleFunc("POST /api/v1/cancel", app.Cancel)
	mux.HandleFunc("GET /api/v1/tasks/{group_id}", app.TaskStatus)

	mux.HandleFunc("GET /export/{artifact}", app.Export)

	return mux
}
