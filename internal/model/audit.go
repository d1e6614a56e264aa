package model

import "time"

type AuthEventType string

const (
	AuthEventCodeRequested        AuthEventType = "code_requested"
	AuthEventCodeRequestFailed    AuthEventType = "code_request_failed"
	AuthEventSignInFailed         AuthEventType = "sign_in_failed"
	AuthEventSecondFactorRequired AuthEventType = "second_factor_required"
	AuthEventConnected            AuthEventType = "connected"
	AuthEventDisconnected         AuthEventType = "disconnected"
	AuthEventEvicted              AuthEventType = "evicted"
	AuthEventPendingExpired       AuthEventType = "pending_expired"
	AuthEventAdminAuthFailed      AuthEventType = "admin_auth_failed"
)

type AuthEvent struct {
	ID        string        `db:"id" json:"id"`
	SessionID string        `db:"session_id" json:"sessionId"`
	Type      AuthEventType `db:"event_type" json:"type"`
	Phone     *string       `db:"phone_masked" json:"phone,omitempty"`
	Reason    *string       `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
}

type CreateAuthEventParams struct {
	ID        string
	SessionID string
	Type      AuthEventType
	Phone     *string
	Reason    *string
	CreatedAt time.Time
}
