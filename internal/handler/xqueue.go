package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	appI18n "github.com/pavelanni/capagrader/internal/i18n"
	"github.com/pavelanni/capagrader/internal/xqueue"
)

type submitRequest struct {
	Block  *xqueue.Block     `json:"block"`
	Header json.RawMessage   `json:"header"`
	Body   json.RawMessage   `json:"body"`
	Files  map[string]string `json:"files"`
}

type submitResponse struct {
	*xqueue.SubmissionHandle
	Message string `json:"message"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	res, err := h.bridge.Submit(ctx, req.Block, rawOrNil(req.Header), rawOrNil(req.Body), req.Files)
	if err != nil {
		// The bridge has logged the failure; the learner gets the generic text.
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":  appI18n.T(ctx, "SubmissionUndeliverable"),
			"detail": err.Error(),
		})
		return
	}
	if res.Report != nil {
		writeJSON(w, http.StatusBadRequest, res.Report)
		return
	}

	msgID, status := "SubmissionQueued", http.StatusAccepted
	if res.Handle.Duplicate {
		msgID, status = "SubmissionDuplicate", http.StatusOK
	}
	writeJSON(w, status, submitResponse{SubmissionHandle: res.Handle, Message: appI18n.T(ctx, msgID)})
}

// rawOrNil keeps an absent or null field nil so the bridge reports it as
// missing. A JSON string is passed on as the string it holds, the way XQueue
// clients encode headers and bodies.
func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return raw
}

// handleScoreUpdate accepts a grader reply either as a JSON body or, as
// XQueue servers send it, in the xqueue_body form field.
func (h *Handler) handleScoreUpdate(w http.ResponseWriter, r *http.Request) {
	var reply []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
			return
		}
		reply = []byte(r.PostForm.Get("xqueue_body"))
	} else {
		body, err := readAll(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		reply = body
	}

	msg, err := h.bridge.UpdateScore(r.Context(), r.URL.EscapedPath(), reply)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "score": msg.Score, "correct": msg.Correct})
	case errors.Is(err, xqueue.ErrUnknownSubmission):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, xqueue.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case xqueue.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, xqueue.ErrorReport(err))
	default:
		slog.Error("score update", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := h.submissions.ExportSubmissions(r.Context(), r.URL.Query().Get("queue"))
	if err != nil {
		slog.Error("export submissions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}
