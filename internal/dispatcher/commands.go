package dispatcher

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/openclaw/userbot-server-go/internal/model"
	"github.com/openclaw/userbot-server-go/internal/upstream"
)

func (d *Dispatcher) menu(ctx context.Context, conn upstream.Client, cc model.CommandContext) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s, this account is connected.\n\n", cc.Identity.DisplayName)
	b.WriteString("Commands:\n")
	b.WriteString("/menu - show this help\n")
	b.WriteString("/ping - measure round-trip latency\n")
	b.WriteString("/status - uptime and resource usage\n")
	b.WriteString("/info - details about this chat\n\n")
	fmt.Fprintf(&b, "Connected for %s.", formatDuration(d.opts.Now().Sub(cc.ConnectedAt)))
	return send(ctx, conn, cc.ChatID, b.String())
}

func (d *Dispatcher) ping(ctx context.Context, conn upstream.Client, cc model.CommandContext) error {
	start := d.opts.Now()
	if err := send(ctx, conn, cc.ChatID, "Pinging..."); err != nil {
		return err
	}
	latency := d.opts.Now().Sub(start).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	return send(ctx, conn, cc.ChatID, fmt.Sprintf("Pong! Latency: %d ms", latency))
}

func (d *Dispatcher) status(ctx context.Context, conn upstream.Client, cc model.CommandContext) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	now := d.opts.Now()

	var b strings.Builder
	b.WriteString("Status\n")
	fmt.Fprintf(&b, "Server uptime: %s\n", formatDuration(now.Sub(d.opts.StartedAt)))
	fmt.Fprintf(&b, "Session uptime: %s\n", formatDuration(now.Sub(cc.ConnectedAt)))
	fmt.Fprintf(&b, "Heap: %.1f MB\n", float64(mem.HeapAlloc)/(1024*1024))
	fmt.Fprintf(&b, "Goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&b, "Live sessions: %d\n", cc.Counts.Live)
	fmt.Fprintf(&b, "Pending sign-ins: %d", cc.Counts.Pending)
	return send(ctx, conn, cc.ChatID, b.String())
}

func (d *Dispatcher) info(ctx context.Context, conn upstream.Client, cc model.CommandContext) error {
	chatType := cc.ChatType
	if chatType == "" {
		chatType = "unknown"
	}

	var b strings.Builder
	b.WriteString("Chat info\n")
	fmt.Fprintf(&b, "Chat ID: %d\n", cc.ChatID)
	fmt.Fprintf(&b, "Chat type: %s\n", chatType)
	fmt.Fprintf(&b, "Message ID: %d\n", cc.MessageID)
	if cc.SenderID != 0 {
		fmt.Fprintf(&b, "Sender ID: %d\n", cc.SenderID)
	}
	fmt.Fprintf(&b, "Account: %s (%d)", cc.Identity.Handle(), cc.Identity.ID)
	return send(ctx, conn, cc.ChatID, b.String())
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}
