package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/userbot-server-go/internal/audit"
	apperrors "github.com/openclaw/userbot-server-go/internal/errors"
	"github.com/openclaw/userbot-server-go/internal/model"
	"github.com/openclaw/userbot-server-go/internal/sse"
	"github.com/openclaw/userbot-server-go/internal/store"
	"github.com/openclaw/userbot-server-go/internal/upstream"
	"github.com/openclaw/userbot-server-go/internal/util"
)

const closeTimeout = 5 * time.Second

// Attacher produces the inbound message handler of a live session.
type Attacher interface {
	Handler(session *model.LiveSession) upstream.MessageHandler
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, topicID, eventType string, data any) error
}

type AuthOptions struct {
	SecondFactorEnabled bool
	Now                 func() time.Time
}

type BeginAuthResult struct {
	SessionID string `json:"sessionId"`
}

type VerifyResult struct {
	SessionID            string          `json:"sessionId"`
	Identity             *model.Identity `json:"identity,omitempty"`
	RequiresSecondFactor bool            `json:"-"`
}

type SessionStatusResult struct {
	IsConnected bool               `json:"isConnected"`
	State       model.SessionState `json:"state,omitempty"`
	Identity    *model.Identity    `json:"identity,omitempty"`
	ConnectedAt *time.Time         `json:"connectedAt,omitempty"`
	Uptime      *int64             `json:"uptime,omitempty"`
	CreatedAt   *time.Time         `json:"createdAt,omitempty"`
}

type SessionSummary struct {
	SessionID   string             `json:"sessionId"`
	State       model.SessionState `json:"state"`
	Phone       string             `json:"phone,omitempty"`
	Identity    *model.Identity    `json:"identity,omitempty"`
	CreatedAt   *time.Time         `json:"createdAt,omitempty"`
	ConnectedAt *time.Time         `json:"connectedAt,omitempty"`
}

// AuthService drives a session from code request to live connection and
// back. Store access is never held across upstream calls.
type AuthService struct {
	store     store.Store
	connector upstream.Connector
	attacher  Attacher
	publisher EventPublisher
	recorder  *audit.Recorder
	opts      AuthOptions
}

// NewAuthService wires the state machine. publisher and recorder may be nil.
func NewAuthService(
	st store.Store,
	connector upstream.Connector,
	attacher Attacher,
	publisher EventPublisher,
	recorder *audit.Recorder,
	opts AuthOptions,
) *AuthService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AuthService{
		store:     st,
		connector: connector,
		attacher:  attacher,
		publisher: publisher,
		recorder:  recorder,
		opts:      opts,
	}
}

func (s *AuthService) BeginAuth(ctx context.Context, phone, apiID, apiHash string) (*BeginAuthResult, error) {
	phone = strings.TrimSpace(phone)
	apiID = strings.TrimSpace(apiID)
	apiHash = strings.TrimSpace(apiHash)

	switch {
	case phone == "":
		return nil, apperrors.MissingRequired("phone")
	case apiID == "":
		return nil, apperrors.MissingRequired("apiId")
	case apiHash == "":
		return nil, apperrors.MissingRequired("apiHash")
	case !util.IsNumeric(apiID):
		return nil, apperrors.InvalidInput("apiId", "must be a positive integer")
	}

	id, _ := strconv.ParseInt(apiID, 10, 64)

	sessionID, err := util.GenerateSessionID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Could not create session", err)
	}

	conn, err := s.connector.Connect(ctx)
	if err != nil {
		s.record(ctx, audit.Event{Type: model.AuthEventCodeRequestFailed, SessionID: sessionID, Phone: phone, Reason: reasonOf(err)})
		return nil, err
	}

	codeHash, err := conn.RequestCode(ctx, phone, id, apiHash)
	if err != nil {
		s.closeConn(ctx, sessionID, conn)
		s.record(ctx, audit.Event{Type: model.AuthEventCodeRequestFailed, SessionID: sessionID, Phone: phone, Reason: reasonOf(err)})
		return nil, err
	}

	pending := &model.PendingAuth{
		SessionID: sessionID,
		Phone:     phone,
		APIID:     id,
		APIHash:   apiHash,
		CodeHash:  codeHash,
		CreatedAt: s.opts.Now(),
		Conn:      conn,
	}
	if err := s.store.InsertPending(pending); err != nil {
		s.closeConn(ctx, sessionID, conn)
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Could not create session", err)
	}

	s.record(ctx, audit.Event{Type: model.AuthEventCodeRequested, SessionID: sessionID, Phone: phone})
	log.Info().
		Str("sessionId", sessionID).
		Str("phone", util.MaskPhone(phone)).
		Msg("verification code requested")

	return &BeginAuthResult{SessionID: sessionID}, nil
}

func (s *AuthService) SubmitCode(ctx context.Context, sessionID, code, password string) (*VerifyResult, error) {
	pending, ok := s.store.GetPending(sessionID)
	if !ok {
		return nil, apperrors.SessionNotFound()
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.MissingRequired("code")
	}

	pending.LockAttempt()
	defer pending.UnlockAttempt()

	// Reaped or promoted while waiting for the attempt lock.
	if current, ok := s.store.GetPending(sessionID); !ok || current != pending {
		return nil, apperrors.SessionNotFound()
	}

	user, err := pending.Conn.SignIn(ctx, pending.Phone, code, pending.CodeHash)
	if err != nil && apperrors.GetReason(err) == apperrors.ReasonSecondFactorRequired {
		switch {
		case !s.opts.SecondFactorEnabled:
			s.abandon(ctx, pending, err)
			return nil, apperrors.UpstreamRejected(apperrors.ReasonSecondFactorUnsupported,
				"Two-factor authentication is not supported by this server").WithCause(err)
		case password == "":
			s.record(ctx, audit.Event{Type: model.AuthEventSecondFactorRequired, SessionID: sessionID, Phone: pending.Phone})
			return &VerifyResult{SessionID: sessionID, RequiresSecondFactor: true}, nil
		}
		user, err = pending.Conn.VerifySecondFactor(ctx, password)
	}
	if err != nil {
		if apperrors.GetReason(err).Retryable() {
			s.record(ctx, audit.Event{Type: model.AuthEventSignInFailed, SessionID: sessionID, Phone: pending.Phone, Reason: reasonOf(err)})
			return nil, err
		}
		s.abandon(ctx, pending, err)
		return nil, err
	}

	identity := model.IdentityFromUser(user)
	live := &model.LiveSession{
		SessionID:   sessionID,
		Conn:        pending.Conn,
		Identity:    identity,
		ConnectedAt: s.opts.Now(),
	}

	if s.attacher != nil {
		if err := pending.Conn.Subscribe(s.guard(live, s.attacher.Handler(live))); err != nil {
			s.abandon(ctx, pending, err)
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Could not attach message handler", err)
		}
	}

	if err := s.store.Promote(live); err != nil {
		// The guarded handler never fires for a session that is not live.
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("promotion lost to concurrent removal")
		return nil, apperrors.SessionNotFound()
	}

	s.record(ctx, audit.Event{Type: model.AuthEventConnected, SessionID: sessionID, Phone: pending.Phone})
	s.publish(ctx, sessionID, sse.EventConnected, map[string]any{
		"identity":    identity,
		"connectedAt": live.ConnectedAt,
	})
	log.Info().
		Str("sessionId", sessionID).
		Int64("accountId", identity.ID).
		Msg("session connected")

	return &VerifyResult{SessionID: sessionID, Identity: &identity}, nil
}

// guard drops messages once the session is no longer the live entry for its id.
func (s *AuthService) guard(live *model.LiveSession, h upstream.MessageHandler) upstream.MessageHandler {
	return func(ctx context.Context, msg upstream.Message) {
		current, ok := s.store.GetLive(live.SessionID)
		if !ok || current != live {
			return
		}
		h(ctx, msg)
	}
}

func (s *AuthService) Disconnect(ctx context.Context, sessionID string) error {
	live, ok := s.store.DeleteLive(sessionID)
	if !ok {
		return apperrors.SessionNotFound()
	}

	s.closeConn(ctx, sessionID, live.Conn)
	s.record(ctx, audit.Event{Type: model.AuthEventDisconnected, SessionID: sessionID})
	s.publish(ctx, sessionID, sse.EventDisconnected, map[string]any{"reason": "requested"})
	log.Info().Str("sessionId", sessionID).Msg("session disconnected")
	return nil
}

// CheckLiveness confirms the session's connection still answers. A failed
// check evicts the session.
func (s *AuthService) CheckLiveness(ctx context.Context, sessionID string) (bool, error) {
	live, ok := s.store.GetLive(sessionID)
	if !ok {
		return false, apperrors.SessionNotFound()
	}

	if _, err := live.Conn.GetMe(ctx); err != nil {
		s.evict(ctx, live, err)
		return false, nil
	}
	return true, nil
}

func (s *AuthService) evict(ctx context.Context, live *model.LiveSession, cause error) {
	current, ok := s.store.GetLive(live.SessionID)
	if !ok || current != live {
		return
	}
	if _, ok := s.store.DeleteLive(live.SessionID); !ok {
		return
	}

	log.Warn().Err(cause).Str("sessionId", live.SessionID).Msg("liveness check failed, evicting session")
	s.closeConn(ctx, live.SessionID, live.Conn)
	s.record(ctx, audit.Event{Type: model.AuthEventEvicted, SessionID: live.SessionID, Reason: reasonOf(cause)})
	s.publish(ctx, live.SessionID, sse.EventEvicted, map[string]any{"reason": "liveness check failed"})
}

func (s *AuthService) Status(ctx context.Context, sessionID string) (*SessionStatusResult, error) {
	pending, live := s.store.Lookup(sessionID)

	if live != nil {
		alive, err := s.CheckLiveness(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !alive {
			return &SessionStatusResult{IsConnected: false}, nil
		}

		uptime := int64(live.Uptime(s.opts.Now()).Seconds())
		connectedAt := live.ConnectedAt
		identity := live.Identity
		return &SessionStatusResult{
			IsConnected: true,
			State:       model.SessionStateConnected,
			Identity:    &identity,
			ConnectedAt: &connectedAt,
			Uptime:      &uptime,
		}, nil
	}

	if pending != nil {
		createdAt := pending.CreatedAt
		return &SessionStatusResult{
			IsConnected: false,
			State:       model.SessionStateCodeRequested,
			CreatedAt:   &createdAt,
		}, nil
	}

	return nil, apperrors.SessionNotFound()
}

// ReapPending removes an abandoned pending auth and closes its connection. It
// reports whether this call removed it; a concurrent promotion or removal wins.
func (s *AuthService) ReapPending(ctx context.Context, pending *model.PendingAuth) bool {
	removed, ok := s.store.DeletePending(pending.SessionID)
	if !ok {
		return false
	}
	s.closeConn(ctx, removed.SessionID, removed.Conn)
	s.record(ctx, audit.Event{Type: model.AuthEventPendingExpired, SessionID: removed.SessionID, Phone: removed.Phone})
	return true
}

// State reports which store holds the session, without probing it.
func (s *AuthService) State(sessionID string) (model.SessionState, bool) {
	pending, live := s.store.Lookup(sessionID)
	switch {
	case live != nil:
		return model.SessionStateConnected, true
	case pending != nil:
		return model.SessionStateCodeRequested, true
	}
	return "", false
}

func (s *AuthService) Counts() model.SessionCounts {
	return s.store.Counts()
}

func (s *AuthService) ListSessions() []SessionSummary {
	var out []SessionSummary

	s.store.RangeLive(func(live *model.LiveSession) bool {
		identity := live.Identity
		connectedAt := live.ConnectedAt
		out = append(out, SessionSummary{
			SessionID:   live.SessionID,
			State:       model.SessionStateConnected,
			Phone:       util.MaskPhone(identity.Phone),
			Identity:    &identity,
			ConnectedAt: &connectedAt,
		})
		return true
	})
	s.store.RangePending(func(p *model.PendingAuth) bool {
		createdAt := p.CreatedAt
		out = append(out, SessionSummary{
			SessionID: p.SessionID,
			State:     model.SessionStateCodeRequested,
			Phone:     util.MaskPhone(p.Phone),
			CreatedAt: &createdAt,
		})
		return true
	})

	if out == nil {
		out = []SessionSummary{}
	}
	return out
}

// Shutdown closes every connection it can reach before ctx expires.
func (s *AuthService) Shutdown(ctx context.Context) {
	var closed, skipped int

	s.store.RangeLive(func(live *model.LiveSession) bool {
		if ctx.Err() != nil {
			skipped++
			return true
		}
		if _, ok := s.store.DeleteLive(live.SessionID); ok {
			s.closeConn(ctx, live.SessionID, live.Conn)
			closed++
		}
		return true
	})
	s.store.RangePending(func(p *model.PendingAuth) bool {
		if ctx.Err() != nil {
			skipped++
			return true
		}
		if _, ok := s.store.DeletePending(p.SessionID); ok {
			s.closeConn(ctx, p.SessionID, p.Conn)
			closed++
		}
		return true
	})

	log.Info().Int("closed", closed).Int("skipped", skipped).Msg("sessions shut down")
}

// abandon discards a pending auth after a terminal failure.
func (s *AuthService) abandon(ctx context.Context, pending *model.PendingAuth, cause error) {
	s.record(ctx, audit.Event{Type: model.AuthEventSignInFailed, SessionID: pending.SessionID, Phone: pending.Phone, Reason: reasonOf(cause)})

	if _, ok := s.store.DeletePending(pending.SessionID); !ok {
		return
	}
	s.closeConn(ctx, pending.SessionID, pending.Conn)
}

func (s *AuthService) closeConn(ctx context.Context, sessionID string, conn upstream.Client) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	if err := conn.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to close connection")
	}
}

func (s *AuthService) record(ctx context.Context, event audit.Event) {
	s.recorder.Record(ctx, event)
}

func (s *AuthService) publish(ctx context.Context, sessionID, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(ctx, sessionID, eventType, data); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Str("event", eventType).Msg("failed to publish session event")
	}
}

func reasonOf(err error) string {
	if reason := apperrors.GetReason(err); reason != "" {
		return string(reason)
	}
	return string(apperrors.GetCode(err))
}
