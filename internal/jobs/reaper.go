package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/userbot-server-go/internal/config"
	"github.com/openclaw/userbot-server-go/internal/model"
)

// Sessions is the part of the auth service the reaper drives.
type Sessions interface {
	ReapPending(ctx context.Context, pending *model.PendingAuth) bool
	CheckLiveness(ctx context.Context, sessionID string) (bool, error)
}

type SessionRanger interface {
	RangePending(fn func(p *model.PendingAuth) bool)
	RangeLive(fn func(s *model.LiveSession) bool)
}

type AuditCleaner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type ReaperOptions struct {
	Interval       time.Duration
	PendingTTL     time.Duration
	ProbeLive      bool
	AuditRetention time.Duration
	Now            func() time.Time
}

// Reaper periodically removes pending auths older than the TTL, probes live
// sessions and prunes old audit rows.
type Reaper struct {
	sessions Sessions
	ranger   SessionRanger
	audit    AuditCleaner
	opts     ReaperOptions
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReaper accepts a nil audit cleaner.
func NewReaper(sessions Sessions, ranger SessionRanger, audit AuditCleaner, opts ReaperOptions) *Reaper {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reaper{
		sessions: sessions,
		ranger:   ranger,
		audit:    audit,
		opts:     opts,
		done:     make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
	log.Info().
		Dur("interval", r.opts.Interval).
		Dur("pendingTTL", r.opts.PendingTTL).
		Bool("probeLive", r.opts.ProbeLive).
		Msg("reaper started")
}

// Stop waits for a sweep in progress to finish.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		log.Info().Msg("reaper stopped")
	})
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.Sweep()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep runs every cleanup step once.
func (r *Reaper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), config.ReaperSweepTimeout)
	defer cancel()

	r.runCleanup(ctx, "expired pending auths", r.reapPending)
	if r.opts.ProbeLive {
		r.runCleanup(ctx, "dead live sessions", r.probeLive)
	}
	if r.audit != nil && r.opts.AuditRetention > 0 {
		r.runCleanup(ctx, "audit events", func(ctx context.Context) (int64, error) {
			return r.audit.DeleteOlderThan(ctx, r.opts.Now().Add(-r.opts.AuditRetention))
		})
	}
}

func (r *Reaper) reapPending(ctx context.Context) (int64, error) {
	now := r.opts.Now()
	var count int64

	r.ranger.RangePending(func(p *model.PendingAuth) bool {
		if ctx.Err() != nil {
			return false
		}
		if p.Age(now) <= r.opts.PendingTTL {
			return true
		}
		if r.sessions.ReapPending(ctx, p) {
			count++
		}
		return true
	})
	return count, ctx.Err()
}

func (r *Reaper) probeLive(ctx context.Context) (int64, error) {
	var ids []string
	r.ranger.RangeLive(func(s *model.LiveSession) bool {
		ids = append(ids, s.SessionID)
		return true
	})

	var count int64
	for _, id := range ids {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		alive, err := r.sessions.CheckLiveness(ctx, id)
		if err != nil {
			// Disconnected since the snapshot.
			continue
		}
		if !alive {
			count++
		}
	}
	return count, nil
}

func (r *Reaper) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
