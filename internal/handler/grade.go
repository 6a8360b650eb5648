package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/capagrader/internal/chem"
	appI18n "github.com/pavelanni/capagrader/internal/i18n"
	"github.com/pavelanni/capagrader/internal/olx"
	"github.com/pavelanni/capagrader/internal/preview"
	"github.com/pavelanni/capagrader/internal/responses"
	"github.com/pavelanni/capagrader/internal/store"
)

type gradeRequest struct {
	// Problem names a stored problem; Tree supplies one inline.
	Problem  string          `json:"problem"`
	Tree     json.RawMessage `json:"tree"`
	Response int             `json:"response"`
	Answer   string          `json:"answer"`
}

type gradeResponse struct {
	responses.Result
	Label string `json:"label"`
}

var correctnessLabels = map[responses.Correctness]string{
	responses.Correct:          "Correct",
	responses.Incorrect:        "Incorrect",
	responses.PartiallyCorrect: "PartiallyCorrect",
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tree := req.Tree
	if len(tree) == 0 {
		if req.Problem == "" {
			writeError(w, http.StatusBadRequest, "problem or tree is required")
			return
		}
		rec, err := h.library.GetProblem(req.Problem)
		if errors.Is(err, store.ErrProblemNotFound) {
			writeError(w, http.StatusNotFound, "problem not found: "+req.Problem)
			return
		}
		if err != nil {
			slog.Error("load problem", "name", req.Problem, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		tree = rec.Tree
	}

	var p olx.Problem
	if err := json.Unmarshal(tree, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid problem tree: "+err.Error())
		return
	}
	fields := p.Gradable()
	if req.Response < 0 || req.Response >= len(fields) {
		writeError(w, http.StatusBadRequest, "response index out of range")
		return
	}

	ctx := r.Context()
	res, err := h.grader.Grade(&p, fields[req.Response], req.Answer)
	var (
		inputErr *responses.InputError
		staffErr *responses.StaffAnswerError
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, gradeResponse{Result: res, Label: appI18n.T(ctx, correctnessLabels[res.Correctness])})
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "InvalidAnswer", map[string]any{"Detail": inputErr.Message}))
	case errors.As(err, &staffErr):
		slog.Error("staff answer", "problem", req.Problem, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  appI18n.T(ctx, "StaffAnswerProblem"),
			"detail": staffErr.Error(),
		})
	case errors.Is(err, responses.ErrExternal):
		writeError(w, http.StatusConflict, appI18n.T(ctx, "ExternalGrading"))
	case errors.Is(err, responses.ErrUnsupported):
		writeError(w, http.StatusUnprocessableEntity, appI18n.T(ctx, "UnsupportedResponse"))
	default:
		slog.Error("grade", "problem", req.Problem, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type previewRequest struct {
	Formula       string   `json:"formula"`
	Variables     []string `json:"variables"`
	Functions     []string `json:"functions"`
	CaseSensitive bool     `json:"case_sensitive"`
}

func (h *Handler) handlePreviewLatex(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	latex, err := preview.RenderLatex(req.Formula, req.Variables, req.Functions, req.CaseSensitive)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"preview": "", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"preview": latex})
}

func (h *Handler) handlePreviewChemistry(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"preview": chem.RenderHTML(req.Formula)})
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	p, err := h.converter.ConvertReader(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleListProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := h.library.ListProblems()
	if err != nil {
		slog.Error("list problems", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, problems)
}

func (h *Handler) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := h.library.GetProblem(name)
	if errors.Is(err, store.ErrProblemNotFound) {
		writeError(w, http.StatusNotFound, "problem not found: "+name)
		return
	}
	if err != nil {
		slog.Error("load problem", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// readAll reads a size-limited body.
func readAll(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}
