package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/qareview/internal/profile"
	"github.com/kalambet/qareview/internal/review"
)

// ProfileReader is the read side of a profile backend.
type ProfileReader interface {
	ListReviewers(ctx context.Context) ([]profile.Summary, error)
	Documents(ctx context.Context, reviewer string) (profile.Documents, error)
	Document(ctx context.Context, reviewer, name string) ([]byte, error)
}

type AppDeps struct {
	Sessions *review.Registry
	Profiles ProfileReader
	Token    string
}

type loginRequest struct {
	Reviewer string `json:"reviewer"`
}

type calibrationRequest struct {
	Step    int     `json:"step"`
	Seconds float64 `json:"seconds"`
}

type sessionsResponse struct {
	QueueLength int      `json:"queue_length"`
	Active      []string `json:"active"`
}

type reviewerEntry struct {
	ID        string    `json:"id"`
	Complete  bool      `json:"complete"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/sessions", handleSessions(deps))
		r.Get("/reviewers", handleListReviewers(deps))
		r.Post("/reviewers", handleLogin(deps))
		r.Route("/reviewers/{id}", func(r chi.Router) {
			r.Get("/", handleStatus(deps))
			r.Delete("/session", handleLogout(deps))
			r.Get("/current", handleCurrent(deps))
			r.Post("/judgements", handleSubmit(deps))
			r.Post("/calibration", handleCalibration(deps))
			r.Get("/documents", handleListDocuments(deps))
			r.Get("/documents/{name}", handleGetDocument(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSessions reports the reviewers with a session open in this process.
func handleSessions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionsResponse{
			QueueLength: deps.Sessions.QueueLength(),
			Active:      deps.Sessions.Active(),
		})
	}
}

func handleListReviewers(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sums, err := deps.Profiles.ListReviewers(r.Context())
		if err != nil {
			reviewError(w, err)
			return
		}
		out := make([]reviewerEntry, 0, len(sums))
		for _, s := range sums {
			out = append(out, reviewerEntry{ID: s.ID, Complete: s.Complete, UpdatedAt: s.UpdatedAt})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleLogin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		st, err := deps.Sessions.Login(r.Context(), req.Reviewer)
		if err != nil {
			reviewError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var st review.Status
		err := deps.Sessions.With(r.Context(), chi.URLParam(r, "id"), func(s *review.Session) error {
			st = s.Status()
			return nil
		})
		if err != nil {
			reviewError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleLogout(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Sessions.Close(chi.URLParam(r, "id")) {
			httpError(w, http.StatusNotFound, "not_found", "no open session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	}
}

func handleCurrent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			item review.Item
			ok   bool
		)
		err := deps.Sessions.With(r.Context(), chi.URLParam(r, "id"), func(s *review.Session) error {
			item, ok = s.Current()
			return nil
		})
		if err != nil {
			reviewError(w, err)
			return
		}
		if !ok {
			reviewError(w, review.ErrQueueComplete)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleSubmit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var sub review.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var res review.Result
		err := deps.Sessions.With(r.Context(), chi.URLParam(r, "id"), func(s *review.Session) error {
			var err error
			res, err = s.Submit(r.Context(), sub)
			return err
		})
		if err != nil {
			reviewError(w, err)
			return
		}
		if !res.Accepted {
			msgs := make([]string, len(res.Violations))
			for i, v := range res.Violations {
				msgs[i] = v.Message
			}
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": map[string]any{
					"message":    strings.Join(msgs, "; "),
					"type":       "validation_error",
					"violations": res.Violations,
				},
				"status": res.Status,
			})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleCalibration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req calibrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Step < 0 || req.Seconds < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "step and seconds must be non-negative")
			return
		}

		elapsed := time.Duration(req.Seconds * float64(time.Second))
		err := deps.Sessions.With(r.Context(), chi.URLParam(r, "id"), func(s *review.Session) error {
			return s.RecordCalibration(r.Context(), req.Step, elapsed)
		})
		if err != nil {
			reviewError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Profiles.Documents(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			reviewError(w, err)
			return
		}
		names := make([]string, 0, len(docs))
		for name := range docs {
			names = append(names, name)
		}
		sort.Strings(names)
		writeJSON(w, http.StatusOK, names)
	}
}

func handleGetDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if !slices.Contains(profile.AllDocuments, name) {
			httpError(w, http.StatusNotFound, "not_found", "unknown document %q", name)
			return
		}
		body, err := deps.Profiles.Document(r.Context(), chi.URLParam(r, "id"), name)
		if err != nil {
			reviewError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}
