package quotes

import "context"

// Client looks up the latest price for a single symbol.
type Client interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// Searcher maps a free-text query (a company name) to listed symbols.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Match, error)
}
