// Package upstreamtest provides an in-memory upstream.Connector whose accounts,
// codes and failures are scripted by tests.
package upstreamtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openclaw/userbot-server-go/internal/upstream"
)

// Account is a scripted upstream account.
type Account struct {
	Phone    string
	APIHash  string // empty accepts any hash
	Code     string
	Password string // non-empty enables the second factor
	User     upstream.User
}

// SentMessage records one SendMessage call.
type SentMessage struct {
	ChatID int64
	Text   string
}

type Connector struct {
	mu             sync.Mutex
	accounts       map[string]Account
	clients        []*Client
	connectErr     error
	requestCodeErr error
	hashSeq        int
}

func NewConnector(accounts ...Account) *Connector {
	c := &Connector{accounts: make(map[string]Account)}
	for _, a := range accounts {
		c.accounts[a.Phone] = a
	}
	return c
}

var _ upstream.Connector = (*Connector)(nil)

func (c *Connector) Connect(ctx context.Context) (upstream.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connectErr != nil {
		return nil, upstream.Classify(c.connectErr)
	}
	cl := &Client{connector: c}
	c.clients = append(c.clients, cl)
	return cl, nil
}

// FailConnect makes every following Connect fail with err.
func (c *Connector) FailConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// FailRequestCode makes every following RequestCode fail with an upstream
// message such as "FLOOD_WAIT_30".
func (c *Connector) FailRequestCode(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCodeErr = &upstream.RPCError{Code: 400, Message: message}
}

// Clients returns every connection opened so far.
func (c *Connector) Clients() []*Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Client(nil), c.clients...)
}

// Last returns the most recent connection, or nil.
func (c *Connector) Last() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.clients) == 0 {
		return nil
	}
	return c.clients[len(c.clients)-1]
}

func (c *Connector) account(phone string) (Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.accounts[phone]
	return a, ok
}

func (c *Connector) nextHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashSeq++
	return fmt.Sprintf("hash-%d", c.hashSeq)
}

// Client is one fake connection.
type Client struct {
	connector *Connector

	mu               sync.Mutex
	account          Account
	codeHash         string
	awaitingPassword bool
	user             *upstream.User
	handler          upstream.MessageHandler
	sent             []SentMessage
	disconnected     bool
	requestCodeCalls int
	signInCalls      int

	getMeErr      error
	sendErr       error
	disconnectErr error
}

var _ upstream.Client = (*Client)(nil)

var errClosed = errors.New("upstreamtest: connection closed")

func rpc(message string) error {
	return upstream.Classify(&upstream.RPCError{Code: 400, Message: message})
}

func (cl *Client) RequestCode(ctx context.Context, phone string, apiID int64, apiHash string) (string, error) {
	cl.mu.Lock()
	cl.requestCodeCalls++
	closed := cl.disconnected
	cl.mu.Unlock()

	if closed {
		return "", upstream.Classify(errClosed)
	}

	cl.connector.mu.Lock()
	failure := cl.connector.requestCodeErr
	cl.connector.mu.Unlock()
	if failure != nil {
		return "", upstream.Classify(failure)
	}

	a, ok := cl.connector.account(phone)
	if !ok {
		return "", rpc("PHONE_NUMBER_INVALID")
	}
	if a.APIHash != "" && a.APIHash != apiHash {
		return "", rpc("API_ID_INVALID")
	}

	hash := cl.connector.nextHash()
	cl.mu.Lock()
	cl.account = a
	cl.codeHash = hash
	cl.mu.Unlock()
	return hash, nil
}

func (cl *Client) SignIn(ctx context.Context, phone, code, codeHash string) (*upstream.User, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.signInCalls++

	if cl.disconnected {
		return nil, upstream.Classify(errClosed)
	}
	if cl.codeHash == "" || codeHash != cl.codeHash || phone != cl.account.Phone {
		return nil, rpc("PHONE_CODE_EXPIRED")
	}
	if code != cl.account.Code {
		return nil, rpc("PHONE_CODE_INVALID")
	}
	if cl.account.Password != "" {
		cl.awaitingPassword = true
		return nil, rpc("SESSION_PASSWORD_NEEDED")
	}

	u := cl.account.User
	cl.user = &u
	return &u, nil
}

func (cl *Client) VerifySecondFactor(ctx context.Context, password string) (*upstream.User, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.disconnected {
		return nil, upstream.Classify(errClosed)
	}
	if !cl.awaitingPassword {
		return nil, rpc("AUTH_RESTART")
	}
	if password != cl.account.Password {
		return nil, rpc("PASSWORD_HASH_INVALID")
	}

	u := cl.account.User
	cl.user = &u
	return &u, nil
}

func (cl *Client) GetMe(ctx context.Context) (*upstream.User, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.getMeErr != nil {
		return nil, upstream.Classify(cl.getMeErr)
	}
	if cl.disconnected {
		return nil, upstream.Classify(errClosed)
	}
	if cl.user == nil {
		return nil, rpc("AUTH_KEY_UNREGISTERED")
	}
	u := *cl.user
	return &u, nil
}

func (cl *Client) SendMessage(ctx context.Context, chatID int64, text string) (upstream.MessageRef, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.sendErr != nil {
		return upstream.MessageRef{}, upstream.Classify(cl.sendErr)
	}
	cl.sent = append(cl.sent, SentMessage{ChatID: chatID, Text: text})
	return upstream.MessageRef{ChatID: chatID, MessageID: int64(len(cl.sent))}, nil
}

func (cl *Client) Subscribe(handler upstream.MessageHandler) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.handler != nil {
		return errors.New("upstreamtest: handler already registered")
	}
	cl.handler = handler
	return nil
}

func (cl *Client) Disconnect(ctx context.Context) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.disconnected = true
	cl.handler = nil
	if cl.disconnectErr != nil {
		return upstream.Classify(cl.disconnectErr)
	}
	return nil
}

// Deliver hands msg to the registered handler synchronously. It reports
// whether a handler was registered.
func (cl *Client) Deliver(ctx context.Context, msg upstream.Message) bool {
	cl.mu.Lock()
	h := cl.handler
	cl.mu.Unlock()

	if h == nil {
		return false
	}
	h(ctx, msg)
	return true
}

// ExpireCode invalidates the outstanding code hash.
func (cl *Client) ExpireCode() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.codeHash = ""
}

func (cl *Client) FailGetMe(err error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.getMeErr = err
}

func (cl *Client) FailSend(err error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.sendErr = err
}

func (cl *Client) FailDisconnect(err error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.disconnectErr = err
}

func (cl *Client) Sent() []SentMessage {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return append([]SentMessage(nil), cl.sent...)
}

func (cl *Client) Disconnected() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.disconnected
}

func (cl *Client) Subscribed() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.handler != nil
}

func (cl *Client) RequestCodeCalls() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.requestCodeCalls
}

func (cl *Client) SignInCalls() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.signInCalls
}
