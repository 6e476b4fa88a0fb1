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

// BinanceClient implements the Client interface for Binance.
type BinanceClient struct {
	logger *slog.Logger
	pair   string
}

// NewBinanceClient creates a new BinanceClient for the given pair
// (e.g. "BTC/USDT").
func NewBinanceClient(logger *slog.Logger, pair string) *BinanceClient {
	return &BinanceClient{logger: logger.With(slog.String("venue", "binance")), pair: pair}
}

func (b *BinanceClient) Name() string {
	return "binance"
}

// Stream connects to the Binance WebSocket API and streams ticker quotes.
func (b *BinanceClient) Stream(ctx context.Context, quotes chan<- model.Quote) error {
	symbol := strings.ToLower(strings.ReplaceAll(b.pair, "/", ""))
	url := "wss://stream.binance.com:9443/ws/" + symbol + "@ticker"
	return runStream(ctx, b.logger, url, nil, b.parse, quotes)
}

func (b *BinanceClient) parse(message []byte) (model.Quote, bool) {
	var ticker struct {
		Bid string `json:"b"`
		Ask string `json:"a"`
	}
	if err := json.Unmarshal(message, &ticker); err != nil {
		b.logger.Warn("failed to parse message", "error", err)
		return model.Quote{}, false
	}
	if ticker.Bid == "" || ticker.Ask == "" {
		return model.Quote{}, false
	}
	bid, err := strconv.ParseFloat(ticker.Bid, 64)
	if err != nil {
		b.logger.Warn("failed to parse bid price", "error", err)
		return model.Quote{}, false
	}
	ask, err := strconv.ParseFloat(ticker.Ask, 64)
	if err != nil {
		b.logger.Warn("failed to parse ask price", "error", err)
		return model.Quote{}, false
	}
	return model.Quote{
		Venue: "binance",
		Time:  time.Now().UTC(),
		Bid:   bid,
		Ask:   ask,
		Mid:   (bid + ask) / 2,
	}, true
}
