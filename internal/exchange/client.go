package exchange

import (
	"context"

	"dislocations/internal/model"
)

// Client defines the standard interface for all venue clients. Stream
// blocks until ctx is cancelled, sending one Quote per ticker update.
type Client interface {
	Name() string
	Stream(ctx context.Context, quotes chan<- model.Quote) error
}
