package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/omertoast/pricestream/feed"
	"github.com/omertoast/pricestream/metrics"
	"github.com/omertoast/pricestream/quotes"
	"github.com/omertoast/pricestream/subscriptions"
)

var _ feed.Client = &client{}

const defaultConcurrency = 8

type (
	client struct {
		// concurrency bounds the number of in-flight quote lookups per call.
		concurrency int

		b   Backends
		log *zap.Logger
	}

	Backends interface {
		Quotes() quotes.Client
		Metrics() *metrics.Metrics
		Logger() *zap.Logger
	}
)

func New(b Backends, concurrency int) feed.Client {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &client{
		concurrency: concurrency,
		b:           b,
		log:         b.Logger().Named("feed"),
	}
}

func (c *client) Fetch(ctx context.Context, tickers []string) subscriptions.PriceMap {
	qs := c.Lookup(ctx, tickers)

	prices := make(subscriptions.PriceMap, 0, len(tickers))
	for i, t := range tickers {
		prices.Set(t, qs[i].Price)
	}
	return prices
}

func (c *client) Lookup(ctx context.Context, tickers []string) []quotes.Quote {
	out := make([]quotes.Quote, len(tickers))
	sem := make(chan struct{}, c.concurrency)

	var wg sync.WaitGroup
	for i, t := range tickers {
		wg.Add(1)
		go func(i int, t string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				out[i] = quotes.Quote{Requested: t, Error: ctx.Err().Error()}
				return
			}

			q, err := c.b.Quotes().Quote(ctx, t)
			c.b.Metrics().Fetched(err)
			if err != nil {
				c.log.Debug("quote lookup failed", zap.String("symbol", t), zap.Error(err))
				q.Price = nil
				if q.Error == "" {
					q.Error = err.Error()
				}
			}
			q.Requested = t
			out[i] = q
		}(i, t)
	}
	wg.Wait()

	return out
}
