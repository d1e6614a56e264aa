// Package upstream is the narrow boundary to the messaging-protocol client.
//
// Implementations must return errors already normalized through Classify so
// callers never inspect raw upstream messages.
package upstream

import (
	"context"
	"time"
)

// User is an account as reported by the upstream.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Message is one inbound message event delivered to a subscribed handler.
type Message struct {
	UpdateID  int64     `json:"updateId"`
	MessageID int64     `json:"messageId"`
	ChatID    int64     `json:"chatId"`
	ChatType  string    `json:"chatType,omitempty"`
	SenderID  int64     `json:"senderId,omitempty"`
	Text      string    `json:"text,omitempty"`
	Outgoing  bool      `json:"out,omitempty"`
	Date      time.Time `json:"date"`
}

// MessageRef identifies a message sent through SendMessage.
type MessageRef struct {
	ChatID    int64 `json:"chatId"`
	MessageID int64 `json:"messageId"`
}

// MessageHandler receives inbound messages. It is called from the delivery
// goroutine in delivery order and must not block for long.
type MessageHandler func(ctx context.Context, msg Message)

// Client is one live connection to the upstream for one account.
type Client interface {
	RequestCode(ctx context.Context, phone string, apiID int64, apiHash string) (codeHash string, err error)
	// SignIn reports a second-factor requirement as an error with
	// ReasonSecondFactorRequired.
	SignIn(ctx context.Context, phone, code, codeHash string) (*User, error)
	VerifySecondFactor(ctx context.Context, password string) (*User, error)
	GetMe(ctx context.Context) (*User, error)
	SendMessage(ctx context.Context, chatID int64, text string) (MessageRef, error)
	// Subscribe registers the handler for inbound messages. Only one handler
	// may be registered per connection.
	Subscribe(handler MessageHandler) error
	Disconnect(ctx context.Context) error
}

// Connector opens new connections.
type Connector interface {
	Connect(ctx context.Context) (Client, error)
}
