package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/userbot-server-go/internal/errors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input is 400", apperrors.InvalidInput("apiId", "must be numeric"), http.StatusBadRequest},
		{"session not found is 404", apperrors.SessionNotFound(), http.StatusNotFound},
		{"correctable rejection is 400", apperrors.UpstreamRejected(apperrors.ReasonInvalidCode, "bad code"), http.StatusBadRequest},
		{"banned rejection is 500", apperrors.UpstreamRejected(apperrors.ReasonBanned, "banned"), http.StatusInternalServerError},
		{"unknown rejection is 500", apperrors.UpstreamRejected(apperrors.ReasonUnknown, "failed"), http.StatusInternalServerError},
		{"unavailable is 503", apperrors.Unavailable("no database"), http.StatusServiceUnavailable},
		{"plain error is 500", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, decodeError(t, rec).Error)
		})
	}

	t.Run("hides internal causes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.Wrap(apperrors.ErrCodeInternal, "gateway exploded at 10.0.0.3", errors.New("dial tcp")))

		resp := decodeError(t, rec)
		assert.Equal(t, "An unexpected error occurred", resp.Error)
		assert.NotContains(t, rec.Body.String(), "10.0.0.3")
	})

	t.Run("flags second factor prompt", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteSecondFactorRequired(rec, "password required")

		resp := decodeError(t, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.True(t, resp.Requires2FA)
		assert.Equal(t, apperrors.ReasonSecondFactorRequired, resp.Reason)
	})

	t.Run("rejections never ask for a password", func(t *testing.T) {
		for _, reason := range []apperrors.Reason{apperrors.ReasonSecondFactorRequired, apperrors.ReasonSecondFactorUnsupported} {
			rec := httptest.NewRecorder()
			WriteError(rec, apperrors.UpstreamRejected(reason, "no"))

			resp := decodeError(t, rec)
			assert.False(t, resp.Requires2FA, reason)
			assert.NotContains(t, rec.Body.String(), "requires2FA")
		}
	})

	t.Run("unsupported second factor is a server refusal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.UpstreamRejected(apperrors.ReasonSecondFactorUnsupported, "not supported"))

		resp := decodeError(t, rec)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, apperrors.ReasonSecondFactorUnsupported, resp.Reason)
		assert.Equal(t, "not supported", resp.Error)
	})
}
