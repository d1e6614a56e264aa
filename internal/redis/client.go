package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionEventsChannel carries lifecycle events of one session.
func SessionEventsChannel(sessionID string) string {
	return fmt.Sprintf("session-events:%s", sessionID)
}

// UpdatesChannel is where the gateway publishes inbound updates of one connection.
func UpdatesChannel(connectionID string) string {
	return fmt.Sprintf("updates:%s", connectionID)
}
