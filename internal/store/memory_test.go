package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/userbot-server-go/internal/model"
)

func newPending(id string) *model.PendingAuth {
	return &model.PendingAuth{
		SessionID: id,
		Phone:     "+15551234567",
		APIID:     12345,
		APIHash:   "abchash",
		CodeHash:  "code-hash",
		CreatedAt: time.Now(),
	}
}

func TestMemory_Pending(t *testing.T) {
	t.Run("inserts and gets pending", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.InsertPending(newPending("a")))

		p, ok := s.GetPending("a")
		assert.True(t, ok)
		assert.Equal(t, "a", p.SessionID)
		assert.Equal(t, model.SessionCounts{Pending: 1}, s.Counts())
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.InsertPending(newPending("a")))
		assert.ErrorIs(t, s.InsertPending(newPending("a")), ErrExists)
	})

	t.Run("delete returns entry once", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.InsertPending(newPending("a")))

		_, ok := s.DeletePending("a")
		assert.True(t, ok)
		_, ok = s.DeletePending("a")
		assert.False(t, ok)
	})

	t.Run("range allows deletion while iterating", func(t *testing.T) {
		s := NewMemory()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.InsertPending(newPending(fmt.Sprintf("p%d", i))))
		}

		s.RangePending(func(p *model.PendingAuth) bool {
			s.DeletePending(p.SessionID)
			return true
		})
		assert.Equal(t, 0, s.Counts().Pending)
	})

	t.Run("range stops when fn returns false", func(t *testing.T) {
		s := NewMemory()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.InsertPending(newPending(fmt.Sprintf("p%d", i))))
		}

		visited := 0
		s.RangePending(func(p *model.PendingAuth) bool {
			visited++
			return false
		})
		assert.Equal(t, 1, visited)
	})
}

func TestMemory_Promote(t *testing.T) {
	t.Run("moves session from pending to live", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.InsertPending(newPending("a")))

		require.NoError(t, s.Promote(&model.LiveSession{SessionID: "a", ConnectedAt: time.Now()}))

		_, inPending := s.GetPending("a")
		_, inLive := s.GetLive("a")
		assert.False(t, inPending)
		assert.True(t, inLive)
		assert.Equal(t, model.SessionCounts{Pending: 0, Live: 1}, s.Counts())
	})

	t.Run("fails without pending entry", func(t *testing.T) {
		s := NewMemory()
		assert.ErrorIs(t, s.Promote(&model.LiveSession{SessionID: "missing"}), ErrNotFound)
		assert.Equal(t, model.SessionCounts{}, s.Counts())
	})

	t.Run("promotes exactly once", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.InsertPending(newPending("a")))

		require.NoError(t, s.Promote(&model.LiveSession{SessionID: "a"}))
		assert.ErrorIs(t, s.Promote(&model.LiveSession{SessionID: "a"}), ErrNotFound)
	})

	t.Run("pending id cannot collide with live id", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.InsertPending(newPending("a")))
		require.NoError(t, s.Promote(&model.LiveSession{SessionID: "a"}))

		assert.ErrorIs(t, s.InsertPending(newPending("a")), ErrExists)
	})

	t.Run("readers never see a session in both or neither store", func(t *testing.T) {
		s := NewMemory()
		const n = 200
		for i := 0; i < n; i++ {
			require.NoError(t, s.InsertPending(newPending(fmt.Sprintf("s%d", i))))
		}

		var wg sync.WaitGroup
		done := make(chan struct{})
		violations := make(chan string, n)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				c := s.Counts()
				if c.Pending+c.Live != n {
					violations <- fmt.Sprintf("counts %+v", c)
					return
				}
			}
		}()

		var promoters sync.WaitGroup
		for i := 0; i < n; i++ {
			promoters.Add(1)
			go func(id string) {
				defer promoters.Done()
				_ = s.Promote(&model.LiveSession{SessionID: id})
			}(fmt.Sprintf("s%d", i))
		}
		promoters.Wait()
		close(done)
		wg.Wait()
		close(violations)

		for v := range violations {
			t.Errorf("observed intermediate state: %s", v)
		}
		assert.Equal(t, model.SessionCounts{Pending: 0, Live: n}, s.Counts())
	})
}

func TestMemory_Lookup(t *testing.T) {
	t.Run("reports the holding store", func(t *testing.T) {
		s := NewMemory()
		p, l := s.Lookup("a")
		assert.Nil(t, p)
		assert.Nil(t, l)

		require.NoError(t, s.InsertPending(newPending("a")))
		p, l = s.Lookup("a")
		assert.NotNil(t, p)
		assert.Nil(t, l)

		require.NoError(t, s.Promote(&model.LiveSession{SessionID: "a"}))
		p, l = s.Lookup("a")
		assert.Nil(t, p)
		assert.NotNil(t, l)
	})

	t.Run("finds a session exactly once while it is promoted", func(t *testing.T) {
		s := NewMemory()
		const n = 200
		for i := 0; i < n; i++ {
			require.NoError(t, s.InsertPending(newPending(fmt.Sprintf("s%d", i))))
		}

		done := make(chan struct{})
		violations := make(chan string, n)
		var readers sync.WaitGroup
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for i := 0; i < n; i++ {
					id := fmt.Sprintf("s%d", i)
					p, l := s.Lookup(id)
					if (p == nil) == (l == nil) {
						violations <- id
						return
					}
				}
			}
		}()

		var promoters sync.WaitGroup
		for i := 0; i < n; i++ {
			promoters.Add(1)
			go func(id string) {
				defer promoters.Done()
				_ = s.Promote(&model.LiveSession{SessionID: id})
			}(fmt.Sprintf("s%d", i))
		}
		promoters.Wait()
		close(done)
		readers.Wait()
		close(violations)

		for id := range violations {
			t.Errorf("session %s found in both or neither store", id)
		}
	})
}

func TestMemory_Live(t *testing.T) {
	t.Run("delete removes live session", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.InsertPending(newPending("a")))
		require.NoError(t, s.Promote(&model.LiveSession{SessionID: "a"}))

		live, ok := s.DeleteLive("a")
		assert.True(t, ok)
		assert.Equal(t, "a", live.SessionID)

		_, ok = s.GetLive("a")
		assert.False(t, ok)
	})

	t.Run("range visits every live session", func(t *testing.T) {
		s := NewMemory()
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("l%d", i)
			require.NoError(t, s.InsertPending(newPending(id)))
			require.NoError(t, s.Promote(&model.LiveSession{SessionID: id}))
		}

		seen := map[string]bool{}
		s.RangeLive(func(l *model.LiveSession) bool {
			seen[l.SessionID] = true
			return true
		})
		assert.Len(t, seen, 3)
	})
}
