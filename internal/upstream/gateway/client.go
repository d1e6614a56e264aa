// Package gateway implements upstream.Connector against the protocol gateway
// sidecar, which holds the actual messaging-protocol sessions and exposes them
// as JSON over HTTP.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/userbot-server-go/internal/redis"
	"github.com/openclaw/userbot-server-go/internal/upstream"
)

const maxErrorBody = 64 * 1024

type Options struct {
	BaseURL string
	Timeout time.Duration
	// Redis enables push delivery of updates. Nil selects polling.
	Redis        *redisclient.Client
	PollInterval time.Duration
}

type Connector struct {
	baseURL      string
	http         *http.Client
	redis        *redisclient.Client
	pollInterval time.Duration
}

func NewConnector(opts Options) *Connector {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Connector{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		http:         &http.Client{Timeout: opts.Timeout},
		redis:        opts.Redis,
		pollInterval: opts.PollInterval,
	}
}

var _ upstream.Connector = (*Connector)(nil)

func (c *Connector) Connect(ctx context.Context) (upstream.Client, error) {
	var resp struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := c.do(ctx, http.MethodPost, "/connections", struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.ConnectionID == "" {
		return nil, upstream.Classify(fmt.Errorf("gateway returned no connection id"))
	}

	log.Debug().Str("connectionId", resp.ConnectionID).Msg("gateway connection opened")
	return &Client{connector: c, id: resp.ConnectionID}, nil
}

type errorBody struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Message      string `json:"message"`
}

// do performs one JSON round trip. Every returned error is already classified.
func (c *Connector) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return upstream.Classify(fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return upstream.Classify(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("path", path).Dur("elapsed", time.Since(start)).Msg("gateway request error")
		return upstream.Classify(fmt.Errorf("gateway request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstream.Classify(decodeError(resp))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return upstream.Classify(fmt.Errorf("decode gateway response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		message := eb.ErrorMessage
		if message == "" {
			message = eb.Message
		}
		if message != "" {
			code := eb.ErrorCode
			if code == 0 {
				code = resp.StatusCode
			}
			return &upstream.RPCError{Code: code, Message: message}
		}
	}

	if resp.StatusCode == http.StatusNotFound {
		return &upstream.RPCError{Code: http.StatusNotFound, Message: "CONNECTION_NOT_FOUND"}
	}
	// Not an upstream rejection: the gateway itself failed.
	return fmt.Errorf("gateway returned status %d", resp.StatusCode)
}

// Client is one gateway connection.
type Client struct {
	connector *Connector
	id        string

	mu      sync.Mutex
	handler upstream.MessageHandler
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ upstream.Client = (*Client)(nil)

func (cl *Client) ID() string {
	return cl.id
}

func (cl *Client) path(suffix string) string {
	return "/connections/" + url.PathEscape(cl.id) + suffix
}

func (cl *Client) RequestCode(ctx context.Context, phone string, apiID int64, apiHash string) (string, error) {
	req := map[string]any{"phone": phone, "apiId": apiID, "apiHash": apiHash}
	var resp struct {
		PhoneCodeHash string `json:"phoneCodeHash"`
	}
	if err := cl.connector.do(ctx, http.MethodPost, cl.path("/auth/send-code"), req, &resp); err != nil {
		return "", err
	}
	return resp.PhoneCodeHash, nil
}

type userResponse struct {
	User upstream.User `json:"user"`
}

func (cl *Client) SignIn(ctx context.Context, phone, code, codeHash string) (*upstream.User, error) {
	req := map[string]string{"phone": phone, "code": code, "phoneCodeHash": codeHash}
	var resp userResponse
	if err := cl.connector.do(ctx, http.MethodPost, cl.path("/auth/sign-in"), req, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (cl *Client) VerifySecondFactor(ctx context.Context, password string) (*upstream.User, error) {
	req := map[string]string{"password": password}
	var resp userResponse
	if err := cl.connector.do(ctx, http.MethodPost, cl.path("/auth/check-password"), req, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (cl *Client) GetMe(ctx context.Context) (*upstream.User, error) {
	var resp userResponse
	if err := cl.connector.do(ctx, http.MethodGet, cl.path("/me"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (cl *Client) SendMessage(ctx context.Context, chatID int64, text string) (upstream.MessageRef, error) {
	req := map[string]any{"chatId": chatID, "text": text}
	var ref upstream.MessageRef
	if err := cl.connector.do(ctx, http.MethodPost, cl.path("/messages"), req, &ref); err != nil {
		return upstream.MessageRef{}, err
	}
	return ref, nil
}

// Subscribe starts delivering inbound updates to handler on a dedicated
// goroutine until Disconnect.
func (cl *Client) Subscribe(handler upstream.MessageHandler) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.handler != nil {
		return fmt.Errorf("connection %s already has a handler", cl.id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl.handler = handler
	cl.cancel = cancel
	cl.done = make(chan struct{})

	if cl.connector.redis != nil {
		go cl.push(ctx, handler, cl.done)
	} else {
		go cl.poll(ctx, handler, cl.done)
	}
	return nil
}

// Disconnect stops delivery and closes the gateway connection. A connection
// the gateway no longer knows counts as closed.
func (cl *Client) Disconnect(ctx context.Context) error {
	cl.mu.Lock()
	cancel, done := cl.cancel, cl.done
	cl.handler, cl.cancel, cl.done = nil, nil, nil
	cl.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	err := cl.connector.do(ctx, http.MethodDelete, cl.path(""), nil, nil)
	if err != nil && isUnknownConnection(err) {
		return nil
	}
	return err
}
