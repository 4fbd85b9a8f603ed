package feed

import (
	"context"

	"github.com/omertoast/pricestream/quotes"
	"github.com/omertoast/pricestream/subscriptions"
)

type Client interface {
	// Fetch prices every ticker concurrently. Tickers whose lookup fails map to nil.
	Fetch(ctx context.Context, tickers []string) subscriptions.PriceMap
	// Lookup returns the full quote for every ticker, in input order.
	Lookup(ctx context.Context, tickers []string) []quotes.Quote
}
