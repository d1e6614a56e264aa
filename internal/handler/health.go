package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/userbot-server-go/internal/config"
	"github.com/openclaw/userbot-server-go/internal/model"
)

type Counter interface {
	Counts() model.SessionCounts
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type StreamCounter interface {
	TotalClients() int
}

type HealthHandler struct {
	counter   Counter
	db        Pinger
	streams   StreamCounter
	startedAt time.Time
	now       func() time.Time
}

// NewHealthHandler accepts a nil db when audit persistence is disabled and
// nil streams when no event broker runs.
func NewHealthHandler(counter Counter, db Pinger, streams StreamCounter, startedAt time.Time) *HealthHandler {
	return &HealthHandler{
		counter:   counter,
		db:        db,
		streams:   streams,
		startedAt: startedAt,
		now:       time.Now,
	}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	counts := h.counter.Counts()
	resp := map[string]any{
		"status":             "ok",
		"activeSessions":     counts.Pending,
		"activeLiveSessions": counts.Live,
		"uptime":             int64(h.now().Sub(h.startedAt).Seconds()),
	}

	if h.streams != nil {
		resp["eventStreams"] = h.streams.TotalClients()
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: database unreachable")
			resp["database"] = "unreachable"
		} else {
			resp["database"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
