package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/userbot-server-go/internal/model"
	"github.com/openclaw/userbot-server-go/internal/service"
	"github.com/openclaw/userbot-server-go/internal/store"
	"github.com/openclaw/userbot-server-go/internal/upstream/upstreamtest"
)

type fakeEventRepo struct {
	events    []model.AuthEvent
	err       error
	lastQuery string
	lastLimit int
}

func (f *fakeEventRepo) Create(ctx context.Context, params model.CreateAuthEventParams) (*model.AuthEvent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEventRepo) FindByID(ctx context.Context, id string) (*model.AuthEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.events {
		if f.events[i].ID == id {
			return &f.events[i], nil
		}
	}
	return nil, nil
}

func (f *fakeEventRepo) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.AuthEvent, error) {
	f.lastQuery, f.lastLimit = "session:"+sessionID, limit
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AuthEvent
	for _, e := range f.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) FindRecent(ctx context.Context, limit, offset int) ([]model.AuthEvent, error) {
	f.lastQuery, f.lastLimit = "recent", limit
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeEventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func passThrough(next http.Handler) http.Handler { return next }

func newAdminRouter(repo *fakeEventRepo) http.Handler {
	svc := service.NewAuthService(store.NewMemory(), upstreamtest.NewConnector(), nil, nil, nil, service.AuthOptions{})
	r := chi.NewRouter()
	r.Mount("/admin", NewAdminHandler(svc, repo, passThrough).Routes())
	return r
}

func TestAdminHandler_Audit(t *testing.T) {
	reason := "PHONE_CODE_INVALID"
	repo := &fakeEventRepo{events: []model.AuthEvent{
		{ID: "6f1c2a8e-3b0d-4a57-9a43-0c4f1f2de001", SessionID: "s1", Type: model.AuthEventSignInFailed, Reason: &reason, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{ID: "6f1c2a8e-3b0d-4a57-9a43-0c4f1f2de002", SessionID: "s2", Type: model.AuthEventConnected, CreatedAt: time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)},
	}}
	router := newAdminRouter(repo)

	get := func(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec, body
	}

	t.Run("lists recent events", func(t *testing.T) {
		rec, body := get(t, "/admin/audit?limit=5")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["items"], 2)
		assert.Equal(t, float64(5), body["limit"])
		assert.Equal(t, "recent", repo.lastQuery)
	})

	t.Run("filters by session", func(t *testing.T) {
		rec, body := get(t, "/admin/audit?sessionId=s1")
		require.Equal(t, http.StatusOK, rec.Code)
		items := body["items"].([]any)
		require.Len(t, items, 1)
		item := items[0].(map[string]any)
		assert.Equal(t, "PHONE_CODE_INVALID", item["reason"])
		assert.Equal(t, "2026-01-02T03:04:05Z", item["createdAt"])
		assert.Equal(t, "session:s1", repo.lastQuery)
		assert.Equal(t, DefaultLimit, repo.lastLimit)
	})

	t.Run("gets one event", func(t *testing.T) {
		rec, body := get(t, "/admin/audit/6f1c2a8e-3b0d-4a57-9a43-0c4f1f2de002")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "connected", body["type"])
	})

	t.Run("unknown event", func(t *testing.T) {
		rec, _ := get(t, "/admin/audit/6f1c2a8e-3b0d-4a57-9a43-0c4f1f2de999")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec, _ = get(t, "/admin/audit/not-a-uuid")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("database failure is hidden", func(t *testing.T) {
		failing := &fakeEventRepo{err: errors.New("connection refused")}
		rec := httptest.NewRecorder()
		newAdminRouter(failing).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}
