package model

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/userbot-server-go/internal/upstream"
)

type SessionState string

const (
	SessionStateCodeRequested SessionState = "code_requested"
	SessionStateConnected     SessionState = "connected"
)

// Identity is the resolved account behind a live session.
type Identity struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

func IdentityFromUser(u *upstream.User) Identity {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return Identity{
		ID:          u.ID,
		DisplayName: name,
		Username:    u.Username,
		Phone:       u.Phone,
	}
}

// Handle returns the @username, or the numeric id when the account has none.
func (i Identity) Handle() string {
	if i.Username != "" {
		return "@" + i.Username
	}
	return "id" + strconv.FormatInt(i.ID, 10)
}

// PendingAuth is an authentication attempt between code request and
// verification. Fields are never modified after creation.
type PendingAuth struct {
	SessionID string
	Phone     string
	APIID     int64
	APIHash   string
	CodeHash  string
	CreatedAt time.Time
	Conn      upstream.Client

	attempt sync.Mutex
}

// LockAttempt serializes verification attempts on this pending auth.
func (p *PendingAuth) LockAttempt() {
	p.attempt.Lock()
}

func (p *PendingAuth) UnlockAttempt() {
	p.attempt.Unlock()
}

func (p *PendingAuth) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// LiveSession is an authenticated account with an open connection.
type LiveSession struct {
	SessionID   string
	Conn        upstream.Client
	Identity    Identity
	ConnectedAt time.Time
}

func (s *LiveSession) Uptime(now time.Time) time.Duration {
	return now.Sub(s.ConnectedAt)
}

// SessionCounts is a snapshot of both session stores.
type SessionCounts struct {
	Pending int `json:"pending"`
	Live    int `json:"live"`
}
