package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/userbot-server-go/internal/errors"
	"github.com/openclaw/userbot-server-go/internal/model"
	"github.com/openclaw/userbot-server-go/internal/repository"
	"github.com/openclaw/userbot-server-go/internal/service"
	"github.com/openclaw/userbot-server-go/internal/util"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination falls back to defaults for missing or out-of-range values.
func ParsePagination(r *http.Request) PaginationParams {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}
}

type AdminHandler struct {
	authService *service.AuthService
	events      repository.AuthEventRepository
	authHandler func(http.Handler) http.Handler
}

// NewAdminHandler accepts a nil events repository; the audit listing then
// answers 503.
func NewAdminHandler(
	authService *service.AuthService,
	events repository.AuthEventRepository,
	authHandler func(http.Handler) http.Handler,
) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		events:      events,
		authHandler: authHandler,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(h.authHandler)

	r.Get("/sessions", h.ListSessions)
	r.Post("/sessions/{id}/disconnect", h.DisconnectSession)
	r.Get("/audit", h.ListAuditEvents)
	r.Get("/audit/{id}", h.GetAuditEvent)

	return r
}

// GET /admin/sessions
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.authService.ListSessions()
	counts := h.authService.Counts()

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"pending":  counts.Pending,
		"live":     counts.Live,
	})
}

// POST /admin/sessions/{id}/disconnect
func (h *AdminHandler) DisconnectSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !util.IsValidSessionID(id) {
		writeError(w, apperrors.SessionNotFound())
		return
	}

	if err := h.authService.Disconnect(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	log.Info().Str("sessionId", id).Msg("session disconnected by admin")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /admin/audit?sessionId=&limit=&offset=
func (h *AdminHandler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, apperrors.Unavailable("Audit storage is not configured"))
		return
	}

	p := ParsePagination(r)
	sessionID := r.URL.Query().Get("sessionId")

	var (
		events []model.AuthEvent
		err    error
	)
	if sessionID != "" {
		events, err = h.events.FindBySessionID(r.Context(), sessionID, p.Limit, p.Offset)
	} else {
		events, err = h.events.FindRecent(r.Context(), p.Limit, p.Offset)
	}
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	items := make([]map[string]any, 0, len(events))
	for _, e := range events {
		items = append(items, formatAuthEvent(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// GET /admin/audit/{id}
func (h *AdminHandler) GetAuditEvent(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, apperrors.Unavailable("Audit storage is not configured"))
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, apperrors.NotFound("Audit event"))
		return
	}

	event, err := h.events.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}
	if event == nil {
		writeError(w, apperrors.NotFound("Audit event"))
		return
	}

	writeJSON(w, http.StatusOK, formatAuthEvent(*event))
}

func formatAuthEvent(e model.AuthEvent) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"sessionId": e.SessionID,
		"type":      e.Type,
		"phone":     e.Phone,
		"reason":    e.Reason,
		"createdAt": formatTime(&e.CreatedAt),
	}
}
