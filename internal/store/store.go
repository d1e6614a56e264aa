// Package store holds the two in-memory session maps: pending authentications
// and live sessions. A session id is in at most one of them at any time.
package store

import (
	"errors"

	"github.com/openclaw/userbot-server-go/internal/model"
)

var (
	ErrNotFound = errors.New("store: session not found")
	ErrExists   = errors.New("store: session already exists")
)

type Store interface {
	InsertPending(p *model.PendingAuth) error
	GetPending(sessionID string) (*model.PendingAuth, bool)
	// DeletePending removes and returns the entry. Only the caller that gets
	// ok=true owns the entry's connection afterwards.
	DeletePending(sessionID string) (*model.PendingAuth, bool)
	// RangePending iterates a snapshot; fn may call back into the store.
	RangePending(fn func(p *model.PendingAuth) bool)

	GetLive(sessionID string) (*model.LiveSession, bool)
	DeleteLive(sessionID string) (*model.LiveSession, bool)
	RangeLive(fn func(s *model.LiveSession) bool)

	// Lookup reads both maps in one step, so a session mid-promotion is
	// always found in one of them.
	Lookup(sessionID string) (*model.PendingAuth, *model.LiveSession)

	// Promote moves a session from pending to live in one step. It fails with
	// ErrNotFound when the pending entry is gone.
	Promote(live *model.LiveSession) error

	Counts() model.SessionCounts
}
