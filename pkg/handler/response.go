package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/dispatch"
	"github.com/yumyai/qtlview/pkg/state"
	"github.com/yumyai/qtlview/pkg/tasks"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error    string   `json:"error"`
	Messages []string `json:"messages,omitempty"`
}

// badRequest marks malformed input.
type badRequest struct {
	err error
}

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps err to a status code and a JSON {error, messages} body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error()}

	var (
		selErr  *state.SelectionError
		taskErr *tasks.TaskError
		badReq  *badRequest
	)
	switch {
	case errors.As(err, &badReq), errors.As(err, &selErr):
		status = http.StatusBadRequest
	case tasks.IsSuperseded(err):
		status = http.StatusConflict
		resp.Error = "superseded by a newer request"
	case errors.As(err, &taskErr):
		status = http.StatusBadGateway
		if taskErr.Kind == tasks.KindDataShape {
			status = http.StatusUnprocessableEntity
		}
		resp.Error = taskErr.UserMessage()
		resp.Messages = taskErr.Messages
	case errors.Is(err, dataset.ErrNoDataset), errors.Is(err, dispatch.ErrNoPeaks):
		status = http.StatusNotFound
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		logger.Debug("Request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &badRequest{fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}

func parsePositiveIntFallback(v string, fallback int) int {
	num, err := strconv.Atoi(v)
	if err != nil || num <= 0 {
		return fallback
	}
	return num
}

func parseFloatFallback(v string, fallback float64) float64 {
	num, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return num
}
