package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// ArchiveHandler lists and downloads archived slippage log chunks.
type ArchiveHandler struct {
	reader domain.BlobReader
	prefix string
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler serving objects under prefix.
// A nil reader makes every route answer 501.
func NewArchiveHandler(reader domain.BlobReader, prefix string, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, prefix: prefix, logger: logger}
}

type archiveObject struct {
	Date         string    `json:"date"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// List returns archived chunks, optionally for one cutoff date.
// GET /api/archive?date=2025-05-04
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotImplemented, "no archive storage configured")
		return
	}
	prefix := h.prefix
	if d := r.URL.Query().Get("date"); d != "" {
		if !validDate(d) {
			writeError(w, http.StatusBadRequest, errBadParam("date").Error())
			return
		}
		prefix += d + "/"
	}

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archive failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	objects := make([]archiveObject, 0, len(infos))
	for _, info := range infos {
		date, name, ok := strings.Cut(strings.TrimPrefix(info.Path, h.prefix), "/")
		if !ok {
			continue
		}
		objects = append(objects, archiveObject{
			Date:         date,
			Name:         name,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

// Get streams one archived chunk as JSON lines.
// GET /api/archive/{date}/{name}
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotImplemented, "no archive storage configured")
		return
	}
	date, name := r.PathValue("date"), r.PathValue("name")
	if !validDate(date) {
		writeError(w, http.StatusBadRequest, errBadParam("date").Error())
		return
	}
	if !strings.HasSuffix(name, ".jsonl") || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusBadRequest, errBadParam("name").Error())
		return
	}

	body, err := h.reader.Get(r.Context(), h.prefix+date+"/"+name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive object not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get archive failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted", slog.String("error", err.Error()))
	}
}

func validDate(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}
