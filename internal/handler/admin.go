package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

// handleUploadProblem converts an uploaded OLX file and stores it under the
// file's base name. A file whose content hash matches the last import is
// skipped.
func (h *Handler) handleUploadProblem(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	file, header, err := r.FormFile("problem_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(path.Base(header.Filename), path.Ext(header.Filename))
	}

	storedHash, err := h.library.GetImportedFileHash(header.Filename)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "unchanged": true})
		return
	}

	p, err := h.converter.Convert(string(data))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	tree, err := json.Marshal(p)
	if err != nil {
		slog.Error("encode problem", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	id, err := h.library.UpsertProblem(name, header.Filename, tree)
	if err != nil {
		slog.Error("failed to store problem", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store problem")
		return
	}
	if err := h.library.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("uploaded problem", "filename", header.Filename, "name", name, "fields", len(p.Gradable()))
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "name": name, "fields": len(p.Gradable())})
}
