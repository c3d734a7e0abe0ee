package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// StreamTailer reads the newest entries of a signal bus stream.
type StreamTailer interface {
	StreamTail(ctx context.Context, stream string, count int64) ([][]byte, error)
}

// LogHandler serves recent probe/prediction rows and training history. Rows
// come from the database when one is configured, otherwise from the
// recorder's bus stream.
type LogHandler struct {
	logs   domain.SlippageLogStore
	perf   domain.ModelPerformanceStore
	stream StreamTailer
	logger *slog.Logger
}

// NewLogHandler creates a LogHandler. Any source may be nil.
func NewLogHandler(logs domain.SlippageLogStore, perf domain.ModelPerformanceStore, stream StreamTailer, logger *slog.Logger) *LogHandler {
	return &LogHandler{logs: logs, perf: perf, stream: stream, logger: logger}
}

type logResponse struct {
	Records []domain.LogRecord `json:"records"`
	Source  string             `json:"source"`
}

// ListRecent returns the newest log rows.
// GET /api/log?limit=50&offset=0&since=RFC3339
func (h *LogHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case h.logs != nil:
		records, err := h.logs.ListRecent(r.Context(), opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list slippage log failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list log records")
			return
		}
		writeJSON(w, http.StatusOK, logResponse{Records: nonNil(records), Source: "postgres"})

	case h.stream != nil:
		raw, err := h.stream.StreamTail(r.Context(), domain.StreamLogRecord, int64(opts.Limit))
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: tail log stream failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to read log stream")
			return
		}
		records := make([]domain.LogRecord, 0, len(raw))
		for _, b := range raw {
			var rec domain.LogRecord
			if err := json.Unmarshal(b, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		writeJSON(w, http.StatusOK, logResponse{Records: records, Source: "stream"})

	default:
		writeError(w, http.StatusNotImplemented, "no log storage configured")
	}
}

// ListEvaluations returns the newest training runs.
// GET /api/model/history?limit=50
func (h *LogHandler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.perf == nil {
		writeError(w, http.StatusNotImplemented, "no model performance storage configured")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	evals, err := h.perf.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list model evaluations failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list model evaluations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluations": nonNil(evals)})
}

// parseListOpts reads limit (default 50, max 500), offset and since.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: 50}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, errBadParam("limit")
		}
		opts.Limit = min(n, 500)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errBadParam("offset")
		}
		opts.Offset = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errBadParam("since")
		}
		opts.Since = &t
	}
	return opts, nil
}

type errBadParam string

func (e errBadParam) Error() string { return "invalid query parameter " + string(e) }

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
