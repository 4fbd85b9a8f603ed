package resolver

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/omertoast/pricestream/quotes"
)

var _ quotes.Client = &Resolver{}

var krxSuffixes = []string{".KS", ".KQ"}

// Resolver turns user input (a symbol, a bare KRX code or a company name)
// into a priced quote by trying candidate symbols against an upstream source.
type Resolver struct {
	src      quotes.Client
	searcher quotes.Searcher // optional
	aliases  map[string]string
	log      *zap.Logger
}

func New(src quotes.Client, searcher quotes.Searcher, aliases map[string]string, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	if aliases == nil {
		aliases = map[string]string{}
	}
	return &Resolver{src: src, searcher: searcher, aliases: aliases, log: log}
}

// Quote resolves input in order: alias table, input as given, bare numeric
// code with KRX suffixes, name search, and finally KRX suffixes on anything.
// The returned quote always carries Requested and, on failure, Error.
func (r *Resolver) Quote(ctx context.Context, input string) (quotes.Quote, error) {
	orig := strings.TrimSpace(input)
	if orig == "" {
		return fail(input, "empty ticker")
	}

	if mapped, ok := r.aliases[orig]; ok {
		r.log.Debug("using alias", zap.String("input", orig), zap.String("symbol", mapped))
		if q, ok := r.try(ctx, orig, mapped); ok {
			return q, nil
		}
	}

	up := strings.ToUpper(orig)
	if q, ok := r.try(ctx, orig, up); ok {
		return q, nil
	}

	if !strings.Contains(up, ".") && isNumeric(strings.ReplaceAll(up, "-", "")) {
		for _, suf := range krxSuffixes {
			if q, ok := r.try(ctx, orig, up+suf); ok {
				return q, nil
			}
		}
	}

	if r.searcher != nil && hasLetter(orig) {
		if m, ok := r.search(ctx, orig); ok {
			q, priced := r.try(ctx, orig, m.Symbol)
			if m.Name != "" {
				q.Name = m.Name
			}
			if priced {
				return q, nil
			}
			q.Resolved = m.Symbol
			q.Error = "symbol found but price unavailable"
			return q, fmt.Errorf("%w %s", quotes.ErrNotFound, q.Error)
		}
	}

	for _, suf := range krxSuffixes {
		if q, ok := r.try(ctx, orig, up+suf); ok {
			return q, nil
		}
	}

	return fail(orig, "not found")
}

func (r *Resolver) try(ctx context.Context, requested, symbol string) (quotes.Quote, bool) {
	q, err := r.src.Quote(ctx, symbol)
	q.Requested = requested
	if q.Resolved == "" {
		q.Resolved = symbol
	}
	if q.Currency == "" && quotes.IsKRX(q.Resolved) {
		q.Currency = "KRW"
	}
	if err != nil || q.Price == nil {
		r.log.Debug("candidate failed", zap.String("symbol", symbol), zap.Error(err))
		return q, false
	}
	return q, true
}

// search prefers KRX listings, then the first hit.
func (r *Resolver) search(ctx context.Context, query string) (quotes.Match, bool) {
	matches, err := r.searcher.Search(ctx, query)
	if err != nil {
		r.log.Debug("symbol search failed", zap.String("query", query), zap.Error(err))
		return quotes.Match{}, false
	}
	for _, m := range matches {
		if quotes.IsKRX(m.Symbol) {
			return m, true
		}
	}
	if len(matches) > 0 {
		return matches[0], true
	}
	return quotes.Match{}, false
}

func fail(requested, reason string) (quotes.Quote, error) {
	return quotes.Quote{Requested: requested, Error: reason}, fmt.Errorf("%w %s: %s", quotes.ErrNotFound, requested, reason)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
