package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/userbot-server-go/internal/model"
	"github.com/openclaw/userbot-server-go/internal/repository"
	"github.com/openclaw/userbot-server-go/internal/util"
)

type Event struct {
	Type      model.AuthEventType
	SessionID string
	Phone     string
	Reason    string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "auth").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.Phone != "" {
		logger = logger.With().Str("phone", util.MaskPhone(event.Phone)).Logger()
	}
	if event.Reason != "" {
		logger = logger.With().Str("reason", event.Reason).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("auth audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// Recorder logs audit events and, when a repository is configured, stores them.
type Recorder struct {
	repo repository.AuthEventRepository
	now  func() time.Time
}

// NewRecorder accepts a nil repository; events are then only logged.
func NewRecorder(repo repository.AuthEventRepository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, event Event) {
	Log(ctx, event)

	if r == nil || r.repo == nil {
		return
	}

	params := model.CreateAuthEventParams{
		ID:        uuid.NewString(),
		SessionID: event.SessionID,
		Type:      event.Type,
		CreatedAt: r.now(),
	}
	if event.Phone != "" {
		masked := util.MaskPhone(event.Phone)
		params.Phone = &masked
	}
	if event.Reason != "" {
		reason := event.Reason
		params.Reason = &reason
	}

	// Audit storage must not fail the auth flow.
	if _, err := r.repo.Create(context.WithoutCancel(ctx), params); err != nil {
		log.Warn().Err(err).Str("sessionId", event.SessionID).Msg("failed to persist audit event")
	}
}

func (r *Recorder) Persistent() bool {
	return r != nil && r.repo != nil
}
