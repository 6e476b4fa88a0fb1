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

// CoinbaseClient implements the Client interface for Coinbase Exchange.
type CoinbaseClient struct {
	logger *slog.Logger
	pair   string
}

// NewCoinbaseClient creates a new CoinbaseClient for the given pair
// ("BTC/USD" is subscribed as product "BTC-USD").
func NewCoinbaseClient(logger *slog.Logger, pair string) *CoinbaseClient {
	return &CoinbaseClient{logger: logger.With(slog.String("venue", "coinbase")), pair: pair}
}

func (c *CoinbaseClient) Name() string {
	return "coinbase"
}

// Stream connects to the Coinbase Exchange WebSocket feed and streams
// ticker quotes.
func (c *CoinbaseClient) Stream(ctx context.Context, quotes chan<- model.Quote) error {
	product := strings.ReplaceAll(c.pair, "/", "-")
	subscription := map[string]any{
		"type":        "subscribe",
		"product_ids": []string{product},
		"channels":    []string{"ticker"},
	}
	return runStream(ctx, c.logger, "wss://ws-feed.exchange.coinbase.com", subscription, c.parse, quotes)
}

func (c *CoinbaseClient) parse(message []byte) (model.Quote, bool) {
	var ticker struct {
		Type    string `json:"type"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	}
	if err := json.Unmarshal(message, &ticker); err != nil {
		c.logger.Warn("failed to parse message", "error", err)
		return model.Quote{}, false
	}
	if ticker.Type != "ticker" || ticker.BestBid == "" || ticker.BestAsk == "" {
		return model.Quote{}, false
	}
	bid, err := strconv.ParseFloat(ticker.BestBid, 64)
	if err != nil {
		c.logger.Warn("failed to parse bid price", "error", err)
		return model.Quote{}, false
	}
	ask, err := strconv.ParseFloat(ticker.BestAsk, 64)
	if err != nil {
		c.logger.Warn("failed to parse ask price", "error", err)
		return model.Quote{}, false
	}
	return model.Quote{
		Venue: "coinbase",
		Time:  time.Now().UTC(),
		Bid:   bid,
		Ask:   ask,
		Mid:   (bid + ask) / 2,
	}, true
}
