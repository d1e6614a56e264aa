// Package dispatcher reacts to text commands received by a live session.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/userbot-server-go/internal/model"
	"github.com/openclaw/userbot-server-go/internal/sse"
	"github.com/openclaw/userbot-server-go/internal/upstream"
)

const (
	UnknownIgnore = "ignore"
	UnknownHint   = "hint"
)

const unknownHint = "Unknown command. Send /menu to see what I can do."

type Counter interface {
	Counts() model.SessionCounts
}

type Publisher interface {
	PublishJSON(ctx context.Context, topicID, eventType string, data any) error
}

type Options struct {
	// UnknownCommandMode is UnknownIgnore or UnknownHint.
	UnknownCommandMode string
	StartedAt          time.Time
	Now                func() time.Time
}

type commandFunc func(ctx context.Context, conn upstream.Client, cc model.CommandContext) error

type Dispatcher struct {
	opts      Options
	counter   Counter
	publisher Publisher
	commands  map[string]commandFunc
}

// New builds a dispatcher. publisher may be nil.
func New(opts Options, counter Counter, publisher Publisher) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = opts.Now()
	}
	if opts.UnknownCommandMode == "" {
		opts.UnknownCommandMode = UnknownIgnore
	}

	d := &Dispatcher{
		opts:      opts,
		counter:   counter,
		publisher: publisher,
	}
	d.commands = map[string]commandFunc{
		"/menu":   d.menu,
		"/start":  d.menu,
		"/ping":   d.ping,
		"/status": d.status,
		"/info":   d.info,
	}
	return d
}

// Handler returns the message handler to register on the session's connection.
func (d *Dispatcher) Handler(session *model.LiveSession) upstream.MessageHandler {
	return func(ctx context.Context, msg upstream.Message) {
		d.Handle(ctx, session, msg)
	}
}

// Handle processes one inbound message. It never panics and never returns an
// error: a failing command only loses its own reply.
func (d *Dispatcher) Handle(ctx context.Context, session *model.LiveSession, msg upstream.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("sessionId", session.SessionID).
				Int64("chatId", msg.ChatID).
				Interface("panic", r).
				Msg("command handler panicked")
		}
	}()

	if msg.Text == "" {
		return
	}

	command, ok := normalize(msg.Text)
	if !ok {
		return
	}

	cc := model.CommandContext{
		SessionID:   session.SessionID,
		ChatID:      msg.ChatID,
		ChatType:    msg.ChatType,
		MessageID:   msg.MessageID,
		SenderID:    msg.SenderID,
		RawText:     msg.Text,
		Command:     command,
		ConnectedAt: session.ConnectedAt,
		Identity:    session.Identity,
	}
	if d.counter != nil {
		cc.Counts = d.counter.Counts()
	}

	fn, known := d.commands[command]
	if !known {
		if d.opts.UnknownCommandMode != UnknownHint {
			return
		}
		fn = d.hint
	}

	logger := log.With().
		Str("sessionId", session.SessionID).
		Int64("chatId", msg.ChatID).
		Str("command", command).
		Logger()

	start := d.opts.Now()
	if err := fn(ctx, session.Conn, cc); err != nil {
		logger.Error().Err(err).Msg("command failed")
		d.publish(ctx, session.SessionID, command, msg.ChatID, false)
		return
	}

	logger.Debug().Dur("elapsed", d.opts.Now().Sub(start)).Msg("command handled")
	d.publish(ctx, session.SessionID, command, msg.ChatID, true)
}

func (d *Dispatcher) publish(ctx context.Context, sessionID, command string, chatID int64, ok bool) {
	if d.publisher == nil {
		return
	}
	err := d.publisher.PublishJSON(ctx, sessionID, sse.EventCommand, map[string]any{
		"command": command,
		"chatId":  chatID,
		"ok":      ok,
	})
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to publish command event")
	}
}

// normalize trims and lowercases the whole text. A single-token command loses
// any @botname suffix. ok is false for text that is not a command.
func normalize(text string) (string, bool) {
	command := strings.ToLower(strings.TrimSpace(text))
	if !strings.ContainsAny(command, " \t\r\n") {
		if i := strings.IndexByte(command, '@'); i > 0 {
			command = command[:i]
		}
	}
	if !strings.HasPrefix(command, "/") || len(command) < 2 {
		return "", false
	}
	return command, true
}

func (d *Dispatcher) hint(ctx context.Context, conn upstream.Client, cc model.CommandContext) error {
	return send(ctx, conn, cc.ChatID, unknownHint)
}

func send(ctx context.Context, conn upstream.Client, chatID int64, text string) error {
	if _, err := conn.SendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
