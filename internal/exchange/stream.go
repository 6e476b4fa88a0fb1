package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"dislocations/internal/model"
)

const maxBackoff = 16 * time.Second

// parseFunc turns one raw websocket message into a quote. ok=false means
// the message was not a ticker update (heartbeats, subscription acks).
type parseFunc func(message []byte) (model.Quote, bool)

// runStream dials the websocket, optionally sends a subscription message,
// and pumps parsed quotes until ctx is cancelled. Connection failures
// trigger a reconnect with exponential backoff.
func runStream(ctx context.Context, logger *slog.Logger, url string, subscribe any, parse parseFunc, quotes chan<- model.Quote) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			logger.Info("context cancelled, shutting down")
			return nil
		default:
		}

		logger.Info("connecting to WebSocket", "url", url, "backoff", backoff)
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			logger.Error("WebSocket connection failed", "error", err)
			if !sleep(ctx, &backoff) {
				return nil
			}
			continue
		}

		if subscribe != nil {
			if err := c.WriteJSON(subscribe); err != nil {
				logger.Error("failed to send subscription", "error", err)
				c.Close()
				if !sleep(ctx, &backoff) {
					return nil
				}
				continue
			}
		}

		backoff = time.Second
		logger.Info("connected successfully")

		// Unblock ReadMessage when the context is cancelled.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				c.Close()
			case <-done:
			}
		}()

		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				close(done)
				c.Close()
				if ctx.Err() != nil {
					logger.Info("context cancelled, closing connection")
					return nil
				}
				logger.Error("failed to read message", "error", err)
				break
			}

			q, ok := parse(message)
			if !ok {
				continue
			}
			select {
			case quotes <- q:
			case <-ctx.Done():
				close(done)
				c.Close()
				return nil
			}
		}
	}
}

// sleep waits for the current backoff and doubles it up to the cap. It
// returns false when the context was cancelled while waiting.
func sleep(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
		*backoff *= 2
		if *backoff > maxBackoff {
			*backoff = maxBackoff
		}
		return true
	}
}
