package exchange

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"dislocations/internal/model"
)

// KrakenClient implements the Client interface for Kraken.
type KrakenClient struct {
	logger *slog.Logger
	pair   string
}

// NewKrakenClient creates a new KrakenClient for the given pair. Kraken
// names bitcoin XBT, so "BTC/USD" is subscribed as "XBT/USD".
func NewKrakenClient(logger *slog.Logger, pair string) *KrakenClient {
	return &KrakenClient{logger: logger.With(slog.String("venue", "kraken")), pair: pair}
}

func (k *KrakenClient) Name() string {
	return "kraken"
}

// Stream connects to the Kraken WebSocket API and streams ticker quotes.
func (k *KrakenClient) Stream(ctx context.Context, quotes chan<- model.Quote) error {
	pair := strings.Replace(k.pair, "BTC", "XBT", 1)
	subscription := map[string]any{
		"event": "subscribe",
		"pair":  []string{pair},
		"subscription": map[string]string{
			"name": "ticker",
		},
	}
	return runStream(ctx, k.logger, "wss://ws.kraken.com", subscription, k.parse, quotes)
}

// parse handles ticker payloads, which arrive as arrays:
// [channelID, tickerData, channelName, pair]. Event objects (heartbeats,
// subscription status) are ignored.
func (k *KrakenClient) parse(message []byte) (model.Quote, bool) {
	var frame []json.RawMessage
	if err := json.Unmarshal(message, &frame); err != nil {
		// Not an array: subscriptionStatus, heartbeat or systemStatus.
		return model.Quote{}, false
	}
	if len(frame) < 2 {
		return model.Quote{}, false
	}
	// The price arrays mix strings and numbers ([price, wholeLotVolume,
	// lotVolume]), so the first element is asserted, not typed.
	var ticker struct {
		Bid []any `json:"b"`
		Ask []any `json:"a"`
	}
	if err := json.Unmarshal(frame[1], &ticker); err != nil {
		k.logger.Warn("failed to parse ticker payload", "error", err)
		return model.Quote{}, false
	}
	if len(ticker.Bid) == 0 || len(ticker.Ask) == 0 {
		return model.Quote{}, false
	}
	bidStr, okB := ticker.Bid[0].(string)
	askStr, okA := ticker.Ask[0].(string)
	if !okB || !okA {
		return model.Quote{}, false
	}
	bid, err := strconv.ParseFloat(bidStr, 64)
	if err != nil {
		k.logger.Warn("failed to parse bid price", "error", err)
		return model.Quote{}, false
	}
	ask, err := strconv.ParseFloat(askStr, 64)
	if err != nil {
		k.logger.Warn("failed to parse ask price", "error", err)
		return model.Quote{}, false
	}
	return model.Quote{
		Venue: "kraken",
		Time:  time.Now().UTC(),
		Bid:   bid,
		Ask:   ask,
		Mid:   (bid + ask) / 2,
	}, true
}
