package model

import "time"

// CommandContext is built for every inbound command and discarded after the
// reply is sent.
type CommandContext struct {
	SessionID   string
	ChatID      int64
	ChatType    string
	MessageID   int64
	SenderID    int64
	RawText     string
	Command     string
	ConnectedAt time.Time
	Identity    Identity
	Counts      SessionCounts
}
