package exchange

import (
	"fmt"
	"log/slog"
)

// NewClient creates a new venue client based on the given name.
func NewClient(name string, logger *slog.Logger, pair string) (Client, error) {
	switch name {
	case "kraken":
		return NewKrakenClient(logger, pair), nil
	case "binance":
		return NewBinanceClient(logger, pair), nil
	case "coinbase":
		return NewCoinbaseClient(logger, pair), nil
	default:
		return nil, fmt.Errorf("unknown venue: %s", name)
	}
}
