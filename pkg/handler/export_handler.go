package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/yumyai/qtlview/logger"
	"go.uber.org/zap"
)

var errEmptyTerm = errors.New("empty search term")

// Export downloads the current artifact as CSV. The file is built from the
// same rows the chart was drawn from.
func (app *AppContext) Export(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("artifact")
	ex, ok := app.Dispatch.Export(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "nothing to export for " + key})
		return
	}

	var buf bytes.Buffer
	if err := ex.WriteCSV(&buf); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("Exporting artifact",
		zap.String("artifact", key),
		zap.String("filename", ex.Filename()),
		zap.Int("rows", ex.Len()),
		zap.String("size", humanize.Bytes(uint64(buf.Len()))),
	)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ex.Filename()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("Failed to write export", zap.String("artifact", key), zap.Error(err))
	}
}
