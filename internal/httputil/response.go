package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/userbot-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error       string              `json:"error"`
	Code        apperrors.ErrorCode `json:"code"`
	Reason      apperrors.Reason    `json:"reason,omitempty"`
	Requires2FA bool                `json:"requires2FA,omitempty"`
	Details     any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Msg("unexpected error")
		appErr = apperrors.Internal("An unexpected error occurred")
	} else if appErr.Code == apperrors.ErrCodeInternal || appErr.Code == apperrors.ErrCodeDatabase {
		// Causes stay server-side.
		log.Error().Err(appErr).Msg("internal error")
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteErrorWithStatus(w, StatusFromError(appErr), appErr)
}

// WriteErrorWithStatus writes an error with a specific HTTP status code
func WriteErrorWithStatus(w http.ResponseWriter, status int, err *apperrors.AppError) {
	response := ErrorResponse{
		Error:       err.Message,
		Code:        err.Code,
		Reason:      err.Reason,
		Details:     err.Details,
	}
	WriteJSON(w, status, response)
}

// WriteSecondFactorRequired asks the client to repeat the verification with a
// password. Only a still-pending sign-in should answer this way.
func WriteSecondFactorRequired(w http.ResponseWriter, message string) {
	err := apperrors.UpstreamRejected(apperrors.ReasonSecondFactorRequired, message)
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:       err.Message,
		Code:        err.Code,
		Reason:      err.Reason,
		Requires2FA: true,
	})
}

// StatusFromError maps an AppError to its HTTP status code
func StatusFromError(err *apperrors.AppError) int {
	if err.Code == apperrors.ErrCodeUpstreamRejected {
		if err.Reason.Correctable() {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
	return statusFromCode(err.Code)
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized

	// 404 Not Found
	case apperrors.ErrCodeNotFound,
		apperrors.ErrCodeSessionNotFound:
		return http.StatusNotFound

	// 503 Service Unavailable
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
