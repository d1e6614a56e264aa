package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/userbot-server-go/internal/redis"
	"github.com/openclaw/userbot-server-go/internal/upstream"
)

const maxPollBackoff = 30 * time.Second

// push receives updates the gateway publishes on redis. Delivery is
// at-most-once: updates published while unsubscribed are lost.
func (cl *Client) push(ctx context.Context, handler upstream.MessageHandler, done chan struct{}) {
	defer close(done)

	channel := redisclient.UpdatesChannel(cl.id)
	pubsub := cl.connector.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	logger := log.With().Str("connectionId", cl.id).Str("channel", channel).Logger()
	logger.Debug().Msg("update subscription started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var update upstream.Message
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				logger.Error().Err(err).Msg("failed to unmarshal update")
				continue
			}
			handler(ctx, update)
		}
	}
}

type updatesResponse struct {
	Updates []upstream.Message `json:"updates"`
}

// poll fetches updates on a fixed interval. The offset only advances after a
// batch is handed to the handler, so a lost response is fetched again.
func (cl *Client) poll(ctx context.Context, handler upstream.MessageHandler, done chan struct{}) {
	defer close(done)

	logger := log.With().Str("connectionId", cl.id).Logger()
	logger.Debug().Dur("interval", cl.connector.pollInterval).Msg("update polling started")

	var offset int64
	wait := cl.connector.pollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		updates, err := cl.fetchUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = min(wait*2, maxPollBackoff)
			logger.Warn().Err(err).Dur("retryIn", wait).Msg("failed to poll updates")
			timer.Reset(wait)
			continue
		}
		wait = cl.connector.pollInterval

		for _, u := range updates {
			if ctx.Err() != nil {
				return
			}
			handler(ctx, u)
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}
		timer.Reset(wait)
	}
}

func (cl *Client) fetchUpdates(ctx context.Context, offset int64) ([]upstream.Message, error) {
	var resp updatesResponse
	path := cl.path(fmt.Sprintf("/updates?offset=%d", offset))
	if err := cl.connector.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Updates, nil
}

func isUnknownConnection(err error) bool {
	var rpcErr *upstream.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == http.StatusNotFound
}
