package dispatcher

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/userbot-server-go/internal/model"
	"github.com/openclaw/userbot-server-go/internal/sse"
	"github.com/openclaw/userbot-server-go/internal/upstream"
	"github.com/openclaw/userbot-server-go/internal/upstream/upstreamtest"
)

type fixedCounter struct {
	counts model.SessionCounts
}

func (c fixedCounter) Counts() model.SessionCounts { return c.counts }

type recordingPublisher struct {
	mu     sync.Mutex
	events []map[string]any
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, topicID, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := data.(map[string]any)
	m["topic"] = topicID
	m["type"] = eventType
	p.events = append(p.events, m)
	return nil
}

type panickingClient struct {
	upstream.Client
}

func (panickingClient) SendMessage(ctx context.Context, chatID int64, text string) (upstream.MessageRef, error) {
	panic("boom")
}

func newLive(t *testing.T) (*model.LiveSession, *upstreamtest.Client) {
	t.Helper()
	conn, err := upstreamtest.NewConnector().Connect(context.Background())
	require.NoError(t, err)
	cl := conn.(*upstreamtest.Client)
	return &model.LiveSession{
		SessionID:   "0123456789abcdef0123456789abcdef",
		Conn:        cl,
		Identity:    model.Identity{ID: 42, DisplayName: "Ada Lovelace", Username: "ada"},
		ConnectedAt: time.Now().Add(-time.Minute),
	}, cl
}

func text(s string) upstream.Message {
	return upstream.Message{MessageID: 7, ChatID: 1001, ChatType: "private", SenderID: 5, Text: s}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		command string
		ok      bool
	}{
		{"/ping", "/ping", true},
		{"  /PING  ", "/ping", true},
		{"/Status please", "/status please", true},
		{"/ping@my_bot extra", "/ping@my_bot extra", true},
		{"/menu@my_bot", "/menu", true},
		{"hello", "", false},
		{"", "", false},
		{"   ", "", false},
		{"/", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			command, ok := normalize(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.command, command)
		})
	}
}

func TestDispatcher_Commands(t *testing.T) {
	ctx := context.Background()
	counter := fixedCounter{counts: model.SessionCounts{Pending: 2, Live: 3}}

	t.Run("ping replies with latency", func(t *testing.T) {
		live, cl := newLive(t)
		d := New(Options{}, counter, nil)

		d.Handle(ctx, live, text("  /PING "))

		sent := cl.Sent()
		require.Len(t, sent, 2)
		assert.Equal(t, int64(1001), sent[1].ChatID)
		assert.Regexp(t, regexp.MustCompile(`^Pong! Latency: \d+ ms$`), sent[1].Text)
	})

	t.Run("ping latency uses the clock", func(t *testing.T) {
		live, cl := newLive(t)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		calls := 0
		now := func() time.Time {
			calls++
			return base.Add(time.Duration(calls) * 25 * time.Millisecond)
		}
		d := New(Options{Now: now, StartedAt: base}, counter, nil)

		// Handle reads the clock once before the command runs.
		d.Handle(ctx, live, text("/ping"))

		sent := cl.Sent()
		require.Len(t, sent, 2)
		assert.Equal(t, "Pong! Latency: 25 ms", sent[1].Text)
	})

	t.Run("menu and start show help", func(t *testing.T) {
		for _, cmd := range []string{"/menu", "/start", "/MENU@bot"} {
			live, cl := newLive(t)
			New(Options{}, counter, nil).Handle(ctx, live, text(cmd))

			sent := cl.Sent()
			require.Len(t, sent, 1, cmd)
			assert.Contains(t, sent[0].Text, "Ada Lovelace")
			assert.Contains(t, sent[0].Text, "/ping")
		}
	})

	t.Run("status reports counts", func(t *testing.T) {
		live, cl := newLive(t)
		New(Options{}, counter, nil).Handle(ctx, live, text("/status"))

		sent := cl.Sent()
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0].Text, "Live sessions: 3")
		assert.Contains(t, sent[0].Text, "Pending sign-ins: 2")
		assert.Contains(t, sent[0].Text, "Goroutines:")
	})

	t.Run("info reports chat details", func(t *testing.T) {
		live, cl := newLive(t)
		New(Options{}, counter, nil).Handle(ctx, live, text("/info"))

		sent := cl.Sent()
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0].Text, "Chat ID: 1001")
		assert.Contains(t, sent[0].Text, "Chat type: private")
		assert.Contains(t, sent[0].Text, "@ada")
	})
}

func TestDispatcher_Ignores(t *testing.T) {
	ctx := context.Background()

	t.Run("plain text is ignored", func(t *testing.T) {
		live, cl := newLive(t)
		New(Options{UnknownCommandMode: UnknownHint}, nil, nil).Handle(ctx, live, text("hello there"))
		assert.Empty(t, cl.Sent())
	})

	t.Run("empty message is ignored", func(t *testing.T) {
		live, cl := newLive(t)
		New(Options{}, nil, nil).Handle(ctx, live, upstream.Message{ChatID: 1})
		assert.Empty(t, cl.Sent())
	})

	t.Run("unknown command is ignored by default", func(t *testing.T) {
		live, cl := newLive(t)
		New(Options{}, nil, nil).Handle(ctx, live, text("/dance"))
		assert.Empty(t, cl.Sent())
	})

	t.Run("command with trailing text is not matched", func(t *testing.T) {
		live, cl := newLive(t)
		New(Options{}, nil, nil).Handle(ctx, live, text("/status please"))
		assert.Empty(t, cl.Sent())
	})

	t.Run("unknown command gets a hint when enabled", func(t *testing.T) {
		live, cl := newLive(t)
		New(Options{UnknownCommandMode: UnknownHint}, nil, nil).Handle(ctx, live, text("/dance"))

		sent := cl.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, unknownHint, sent[0].Text)
	})
}

func TestDispatcher_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("send failure is contained", func(t *testing.T) {
		live, cl := newLive(t)
		cl.FailSend(errors.New("socket closed"))
		pub := &recordingPublisher{}

		assert.NotPanics(t, func() {
			New(Options{}, nil, pub).Handle(ctx, live, text("/ping"))
		})

		require.Len(t, pub.events, 1)
		assert.Equal(t, false, pub.events[0]["ok"])
	})

	t.Run("panicking handler is recovered", func(t *testing.T) {
		live, _ := newLive(t)
		live.Conn = panickingClient{}

		assert.NotPanics(t, func() {
			New(Options{}, nil, nil).Handle(ctx, live, text("/menu"))
		})
	})

	t.Run("later messages are still handled after a failure", func(t *testing.T) {
		live, cl := newLive(t)
		d := New(Options{}, nil, nil)
		require.NoError(t, cl.Subscribe(d.Handler(live)))

		cl.FailSend(errors.New("socket closed"))
		require.True(t, cl.Deliver(ctx, text("/ping")))

		cl.FailSend(nil)
		require.True(t, cl.Deliver(ctx, text("/info")))

		sent := cl.Sent()
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0].Text, "Chat info")
	})
}

func TestDispatcher_PublishesCommandEvents(t *testing.T) {
	live, _ := newLive(t)
	pub := &recordingPublisher{}

	New(Options{}, nil, pub).Handle(context.Background(), live, text("/status"))

	require.Len(t, pub.events, 1)
	assert.Equal(t, sse.EventCommand, pub.events[0]["type"])
	assert.Equal(t, live.SessionID, pub.events[0]["topic"])
	assert.Equal(t, "/status", pub.events[0]["command"])
	assert.Equal(t, true, pub.events[0]["ok"])
}
