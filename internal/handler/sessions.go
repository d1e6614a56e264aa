package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/userbot-server-go/internal/config"
	apperrors "github.com/openclaw/userbot-server-go/internal/errors"
	"github.com/openclaw/userbot-server-go/internal/service"
	"github.com/openclaw/userbot-server-go/internal/sse"
	"github.com/openclaw/userbot-server-go/internal/util"
)

type SessionsHandler struct {
	authService *service.AuthService
	broker      *sse.Broker
}

// NewSessionsHandler accepts a nil broker; the event stream then answers 503.
func NewSessionsHandler(authService *service.AuthService, broker *sse.Broker) *SessionsHandler {
	return &SessionsHandler{
		authService: authService,
		broker:      broker,
	}
}

func (h *SessionsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Event streams outlive the request timeout.
	r.Get("/{id}/events", h.Events)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Get("/{id}", h.Status)
		r.Post("/{id}/disconnect", h.Disconnect)
	})

	return r
}

func sessionIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if !util.IsValidSessionID(id) {
		return "", apperrors.SessionNotFound()
	}
	return id, nil
}

// GET /sessions/{id}
func (h *SessionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.authService.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /sessions/{id}/disconnect
func (h *SessionsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.authService.Disconnect(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /sessions/{id}/events
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	state, ok := h.authService.State(id)
	if !ok {
		writeError(w, apperrors.SessionNotFound())
		return
	}

	if h.broker == nil {
		writeError(w, apperrors.Unavailable("Event stream is not enabled"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(id)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("sessionId", id).Msg("sse connection established")

	if err := sendEvent(w, flusher, "state", map[string]any{"sessionId": id, "state": state}); err != nil {
		return
	}

	streamEvents(r.Context(), w, flusher, client, id)
}

func streamEvents(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, client *sse.Client, id string) {
	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("sessionId", id).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("sessionId", id).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}
			// Nothing follows a terminal event.
			if event.Type == sse.EventDisconnected || event.Type == sse.EventEvicted {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("sessionId", id).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
