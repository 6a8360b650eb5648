package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/capagrader/internal/model"
	"github.com/pavelanni/capagrader/internal/olx"
	"github.com/pavelanni/capagrader/internal/responses"
	"github.com/pavelanni/capagrader/internal/xqueue"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 10 << 20

// Library is the stored problem collection.
type Library interface {
	UpsertProblem(name, source string, tree json.RawMessage) (int64, error)
	GetProblem(name string) (model.ProblemRecord, error)
	ListProblems() ([]model.ProblemRecord, error)
	GetImportedFileHash(path string) (string, error)
	SetImportedFileHash(path, hash string) error
}

// Submissions exports queued external submissions.
type Submissions interface {
	ExportSubmissions(ctx context.Context, queueName string) (model.SubmissionExport, error)
}

// Config holds the HTTP layer settings.
type Config struct {
	// AdminToken, when set, is required on the library upload route.
	AdminToken string
	// CallbackToken, when set, is required on score_update callbacks.
	CallbackToken string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	cfg         Config
	library     Library
	submissions Submissions
	bridge      *xqueue.Bridge
	grader      *responses.Grader
	converter   *olx.Converter
}

// New creates a new Handler.
func New(cfg Config, lib Library, subs Submissions, br *xqueue.Bridge, g *responses.Grader) *Handler {
	return &Handler{
		cfg:         cfg,
		library:     lib,
		submissions: subs,
		bridge:      br,
		grader:      g,
		converter:   olx.New(olx.DefaultConfig()),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Post("/grade", h.handleGrade)
	r.Post("/preview/latex", h.handlePreviewLatex)
	r.Post("/preview/chemistry", h.handlePreviewChemistry)

	r.Post("/problems/convert", h.handleConvert)
	r.Get("/problems", h.handleListProblems)
	r.Get("/problems/{name}", h.handleGetProblem)
	r.With(h.requireToken(h.cfg.AdminToken)).Post("/problems", h.handleUploadProblem)

	r.Post("/xqueue/submit", h.handleSubmit)
	r.Get("/xqueue/submissions", h.handleExport)
	r.With(h.requireToken(h.cfg.CallbackToken)).
		Post("/courses/{courseID}/xqueue/{userID}/{itemID}/score_update", h.handleScoreUpdate)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
