package massive

import (
	"context"
	"fmt"
	"strings"

	"github.com/omertoast/pricestream/quotes"

	massiverest "github.com/massive-com/client-go/v2/rest"
	"github.com/massive-com/client-go/v2/rest/models"
)

var _ quotes.Client = &client{}

type (
	client struct {
		trades lastTrader
	}

	// lastTrader is the subset of the Massive REST client used here.
	lastTrader interface {
		GetLastTrade(ctx context.Context, params *models.GetLastTradeParams, options ...models.RequestOption) (*models.GetLastTradeResponse, error)
	}
)

func New(apiKey string) (*client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w missing MASSIVE_API_KEY", quotes.ErrInternal)
	}
	return &client{trades: massiverest.New(apiKey)}, nil
}

// Quote returns the price of the most recent trade for symbol. Massive
// covers US listings only and reports prices in USD.
func (c *client) Quote(ctx context.Context, symbol string) (quotes.Quote, error) {
	q := quotes.Quote{Requested: symbol}

	res, err := c.trades.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: symbol})
	if err != nil {
		return q, fmt.Errorf("%w %s", quotes.ErrInternal, err)
	}
	if res == nil || res.Results.Price <= 0 {
		return q, fmt.Errorf("%w %s", quotes.ErrNotFound, symbol)
	}

	q.Resolved = symbol
	q.Price = quotes.Float(res.Results.Price)
	q.Currency = "USD"
	return q, nil
}
