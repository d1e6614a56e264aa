package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/openclaw/userbot-server-go/internal/model"
)

type mockAuthEventRepo struct {
	mock.Mock
}

func (m *mockAuthEventRepo) Create(ctx context.Context, params model.CreateAuthEventParams) (*model.AuthEvent, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuthEvent), args.Error(1)
}

func (m *mockAuthEventRepo) FindByID(ctx context.Context, id string) (*model.AuthEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuthEvent), args.Error(1)
}

func (m *mockAuthEventRepo) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.AuthEvent, error) {
	args := m.Called(ctx, sessionID, limit, offset)
	return args.Get(0).([]model.AuthEvent), args.Error(1)
}

func (m *mockAuthEventRepo) FindRecent(ctx context.Context, limit, offset int) ([]model.AuthEvent, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.AuthEvent), args.Error(1)
}

func (m *mockAuthEventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func TestRecorder(t *testing.T) {
	t.Run("logs only without repository", func(t *testing.T) {
		r := NewRecorder(nil)
		assert.False(t, r.Persistent())
		assert.NotPanics(t, func() {
			r.Record(context.Background(), Event{Type: model.AuthEventCodeRequested, SessionID: "s1"})
		})
	})

	t.Run("nil recorder is safe", func(t *testing.T) {
		var r *Recorder
		assert.NotPanics(t, func() {
			r.Record(context.Background(), Event{Type: model.AuthEventConnected})
		})
	})

	t.Run("persists masked phone and reason", func(t *testing.T) {
		repo := new(mockAuthEventRepo)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(p model.CreateAuthEventParams) bool {
			return p.SessionID == "s1" &&
				p.Type == model.AuthEventSignInFailed &&
				p.Phone != nil && *p.Phone == "+15****67" &&
				p.Reason != nil && *p.Reason == "PHONE_CODE_INVALID" &&
				p.ID != ""
		})).Return(&model.AuthEvent{}, nil)

		r := NewRecorder(repo)
		r.Record(context.Background(), Event{
			Type:      model.AuthEventSignInFailed,
			SessionID: "s1",
			Phone:     "+15551234567",
			Reason:    "PHONE_CODE_INVALID",
		})

		repo.AssertExpectations(t)
	})

	t.Run("repository failure does not panic", func(t *testing.T) {
		repo := new(mockAuthEventRepo)
		repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		r := NewRecorder(repo)
		assert.NotPanics(t, func() {
			r.Record(context.Background(), Event{Type: model.AuthEventConnected, SessionID: "s1"})
		})
	})
}

func TestGetClientIP(t *testing.T) {
	t.Run("prefers forwarded header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		assert.Equal(t, "203.0.113.7", getClientIP(req))
	})

	t.Run("falls back to remote addr", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		assert.Equal(t, req.RemoteAddr, getClientIP(req))
	})
}
