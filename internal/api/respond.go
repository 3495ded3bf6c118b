package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/qareview/internal/profile"
	"github.com/kalambet/qareview/internal/review"
)

const maxRequestBodySize = 1 << 20 // 1MB

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// reviewError maps review and store errors onto HTTP statuses.
func reviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrBlankReviewer):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case review.IsNotFound(err):
		httpError(w, http.StatusNotFound, "not_found", "reviewer not found")
	case errors.Is(err, profile.ErrNoDocument):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, review.ErrReviewerComplete), errors.Is(err, review.ErrQueueComplete):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
