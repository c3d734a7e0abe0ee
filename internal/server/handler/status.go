package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// FeedStatusSource reports the feed connection state.
type FeedStatusSource interface {
	Status() domain.FeedStatus
}

// StatusHandler serves the process mode and feed connectivity.
type StatusHandler struct {
	mode      string
	feed      FeedStatusSource
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. feed may be nil when the process
// runs without a live feed.
func NewStatusHandler(mode string, feed FeedStatusSource, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, feed: feed, startedAt: startedAt}
}

type statusResponse struct {
	Mode          string             `json:"mode"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Feed          *domain.FeedStatus `json:"feed,omitempty"`
}

// GetStatus responds with the mode, uptime and feed state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.mode,
		UptimeSeconds: max(int64(time.Since(h.startedAt).Seconds()), 0),
	}
	if h.feed != nil {
		st := h.feed.Status()
		resp.Feed = &st
	}
	writeJSON(w, http.StatusOK, resp)
}
