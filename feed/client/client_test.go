package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/omertoast/pricestream/metrics"
	"github.com/omertoast/pricestream/quotes"
	"github.com/omertoast/pricestream/subscriptions"
)

type slowSource struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	prices   map[string]float64
}

func (s *slowSource) Quote(ctx context.Context, symbol string) (quotes.Quote, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	p, ok := s.prices[symbol]
	if !ok {
		return quotes.Quote{}, fmt.Errorf("%w %s", quotes.ErrNotFound, symbol)
	}
	return quotes.Quote{Resolved: symbol, Price: quotes.Float(p)}, nil
}

type backends struct {
	src quotes.Client
	m   *metrics.Metrics
}

func (b backends) Quotes() quotes.Client     { return b.src }
func (b backends) Metrics() *metrics.Metrics { return b.m }
func (b backends) Logger() *zap.Logger       { return zap.NewNop() }

func TestFetch_KeepsOrderAndNullsFailures(t *testing.T) {
	src := &slowSource{prices: map[string]float64{"AAPL": 1.5, "TSLA": 2.25}}
	m := metrics.New("test", "")
	c := New(backends{src: src, m: m}, 4)

	got := c.Fetch(context.Background(), []string{"TSLA", "NOPE", "AAPL", "TSLA"})

	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(got), got)
	}
	want := []string{"TSLA", "NOPE", "AAPL"}
	for i, sym := range want {
		if got[i].Symbol != sym {
			t.Errorf("entry %d = %s, want %s", i, got[i].Symbol, sym)
		}
	}
	if p, _ := priceOf(got, "NOPE"); p != nil {
		t.Errorf("NOPE price = %v, want nil", *p)
	}
	if p, _ := priceOf(got, "AAPL"); p == nil || *p != 1.5 {
		t.Errorf("AAPL price = %v", p)
	}

	q := m.Snapshot()["quotes"].(map[string]any)
	if q["fetches_total"].(int64) != 4 || q["errors_total"].(int64) != 1 {
		t.Errorf("metrics = %v", q)
	}
}

func TestLookup_BoundsConcurrency(t *testing.T) {
	src := &slowSource{prices: map[string]float64{}}
	c := New(backends{src: src, m: metrics.New("test", "")}, 2)

	tickers := make([]string, 12)
	for i := range tickers {
		tickers[i] = fmt.Sprintf("T%d", i)
	}
	qs := c.Lookup(context.Background(), tickers)

	if peak := src.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	for i, q := range qs {
		if q.Requested != tickers[i] || q.Error == "" || q.Price != nil {
			t.Errorf("quote %d = %+v", i, q)
		}
	}
}

func TestLookup_CancelledContext(t *testing.T) {
	src := &slowSource{prices: map[string]float64{"AAPL": 1}}
	c := New(backends{src: src, m: metrics.New("test", "")}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	qs := c.Lookup(ctx, []string{"AAPL", "AAPL", "AAPL"})
	if len(qs) != 3 {
		t.Fatalf("len = %d", len(qs))
	}
}

func priceOf(m subscriptions.PriceMap, symbol string) (*float64, bool) {
	for _, e := range m {
		if e.Symbol == symbol {
			return e.Price, true
		}
	}
	return nil, false
}
