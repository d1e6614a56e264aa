package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/userbot-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
)

// Lifecycle event types published per session.
const (
	EventConnected    = "connected"
	EventCommand      = "command"
	EventDisconnected = "disconnected"
	EventEvicted      = "evicted"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	Topic  string
	Events chan Event
	Done   chan struct{}
}

type topic struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
}

// Broker fans out session events to SSE clients. With a redis client, events
// go through pubsub so every replica sees them; without, they are delivered
// in-process.
type Broker struct {
	redis  *redisclient.Client
	topics map[string]*topic
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  redisClient,
		topics: make(map[string]*topic),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Broker) Subscribe(topicID string) *Client {
	client := &Client{
		Topic:  topicID,
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	t := b.topics[topicID]
	if t == nil {
		t = &topic{clients: make(map[*Client]bool)}
		if b.redis != nil {
			ctx, cancel := context.WithCancel(b.ctx)
			t.cancel = cancel
			go b.subscribeToRedis(ctx, topicID)
		}
		b.topics[topicID] = t
	}
	t.clients[client] = true
	clientCount := len(t.clients)
	b.mu.Unlock()

	log.Info().
		Str("topic", topicID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[client.Topic]
	if !ok {
		return
	}
	if _, ok := t.clients[client]; !ok {
		return
	}
	delete(t.clients, client)
	close(client.Done)

	if len(t.clients) == 0 {
		if t.cancel != nil {
			t.cancel()
		}
		delete(b.topics, client.Topic)
	}

	log.Info().
		Str("topic", client.Topic).
		Int("clientCount", len(t.clients)).
		Msg("sse client unsubscribed")
}

func (b *Broker) Publish(ctx context.Context, topicID string, event Event) error {
	if b.redis == nil {
		b.broadcast(topicID, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.SessionEventsChannel(topicID)
	return b.redis.Publish(ctx, channel, data).Err()
}

// PublishJSON marshals data as the event payload.
func (b *Broker) PublishJSON(ctx context.Context, topicID, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return b.Publish(ctx, topicID, Event{Type: eventType, Data: raw})
}

func (b *Broker) subscribeToRedis(ctx context.Context, topicID string) {
	channel := redisclient.SessionEventsChannel(topicID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("topic", topicID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(topicID, event)
		}
	}
}

func (b *Broker) broadcast(topicID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t := b.topics[topicID]
	if t == nil {
		return
	}

	for client := range t.clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("topic", topicID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.topics {
		for client := range t.clients {
			close(client.Done)
		}
	}
	b.topics = make(map[string]*topic)
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, t := range b.topics {
		total += len(t.clients)
	}
	return total
}
