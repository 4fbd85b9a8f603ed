package client

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/omertoast/pricestream/feed"
	"github.com/omertoast/pricestream/metrics"
	"github.com/omertoast/pricestream/quotes"
	"github.com/omertoast/pricestream/subscriptions"
)

type fakeFeed struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  [][]string
}

func (f *fakeFeed) Fetch(ctx context.Context, tickers []string) subscriptions.PriceMap {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tickers)

	var out subscriptions.PriceMap
	for _, t := range tickers {
		if p, ok := f.prices[t]; ok {
			out.Set(t, quotes.Float(p))
		} else {
			out.Set(t, nil)
		}
	}
	return out
}

func (f *fakeFeed) Lookup(ctx context.Context, tickers []string) []quotes.Quote {
	out := make([]quotes.Quote, len(tickers))
	for i, t := range tickers {
		out[i] = quotes.Quote{Requested: t, Resolved: strings.ToUpper(t)}
		if p, ok := f.prices[strings.ToUpper(t)]; ok {
			out[i].Price = quotes.Float(p)
		} else {
			out[i].Error = "not found"
		}
	}
	return out
}

type backends struct {
	feed feed.Client
	m    *metrics.Metrics
}

func (b backends) Feed() feed.Client          { return b.feed }
func (b backends) Metrics() *metrics.Metrics { return b.m }
func (b backends) Logger() *zap.Logger       { return zap.NewNop() }

func startServer(t *testing.T) (*httptest.Server, *fakeFeed, *metrics.Metrics) {
	t.Helper()

	ff := &fakeFeed{prices: map[string]float64{"AAPL": 123.4, "TSLA": 250}}
	m := metrics.New("test", "")
	c := New(backends{feed: ff, m: m})
	c.minInterval = 10 * time.Millisecond

	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)
	return srv, ff, m
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) subscriptions.Snapshot {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var snap subscriptions.Snapshot
	if err := wsjson.Read(ctx, conn, &snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return snap
}

func TestSubscribe_StreamsSnapshots(t *testing.T) {
	srv, _, _ := startServer(t)
	conn := dial(t, srv)

	err := conn.Write(context.Background(), websocket.MessageText, []byte(`{"tickers":[" aapl","","msft"],"interval":0}`))
	if err != nil {
		t.Fatal(err)
	}

	snap := readSnapshot(t, conn)
	if len(snap.Prices) != 2 || snap.Prices[0].Symbol != "AAPL" || snap.Prices[1].Symbol != "MSFT" {
		t.Fatalf("prices = %+v", snap.Prices)
	}
	if p := snap.Prices[0].Price; p == nil || *p != 123.4 {
		t.Errorf("AAPL = %v", p)
	}
	if snap.Prices[1].Price != nil {
		t.Errorf("MSFT = %v, want null", *snap.Prices[1].Price)
	}
	if _, err := time.Parse(subscriptions.TimestampLayout, snap.TS); err != nil {
		t.Errorf("ts %q: %v", snap.TS, err)
	}
}

func TestSubscribe_ReplacesTickers(t *testing.T) {
	srv, _, _ := startServer(t)
	conn := dial(t, srv)
	ctx := context.Background()

	wsjson.Write(ctx, conn, map[string]any{"tickers": []string{"AAPL"}, "interval": 0})
	readSnapshot(t, conn)

	wsjson.Write(ctx, conn, map[string]any{"tickers": []string{"tsla"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := readSnapshot(t, conn)
		if _, ok := priceOf(snap.Prices, "TSLA"); ok {
			if _, stale := priceOf(snap.Prices, "AAPL"); stale {
				t.Fatalf("AAPL still present: %+v", snap.Prices)
			}
			return
		}
	}
	t.Fatal("never received a TSLA snapshot")
}

func TestSubscribe_IgnoresMalformedFrames(t *testing.T) {
	srv, ff, m := startServer(t)
	conn := dial(t, srv)
	ctx := context.Background()

	conn.Write(ctx, websocket.MessageText, []byte(`not json`))
	conn.Write(ctx, websocket.MessageText, []byte(`[1,2]`))
	conn.Write(ctx, websocket.MessageText, []byte(`{"tickers":["AAPL"],"interval":0}`))

	snap := readSnapshot(t, conn)
	if _, ok := priceOf(snap.Prices, "AAPL"); !ok {
		t.Fatalf("prices = %+v", snap.Prices)
	}

	frames := m.Snapshot()["frames"].(map[string]any)
	if frames["dropped"].(int64) != 2 {
		t.Errorf("dropped = %v, want 2", frames["dropped"])
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.calls) == 0 {
		t.Error("feed was never polled")
	}
}

func TestSubscribe_CloseStopsStream(t *testing.T) {
	srv, ff, m := startServer(t)
	conn := dial(t, srv)

	wsjson.Write(context.Background(), conn, map[string]any{"tickers": []string{"AAPL"}, "interval": 0})
	readSnapshot(t, conn)
	conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for m.ActiveConns() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.ActiveConns() != 0 {
		t.Fatal("connection still active after close")
	}

	ff.mu.Lock()
	n := len(ff.calls)
	ff.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.calls) != n {
		t.Errorf("feed polled after close: %d -> %d", n, len(ff.calls))
	}
}

func TestSubscriber_Apply(t *testing.T) {
	tests := []struct {
		name     string
		frames   []string
		tickers  []string
		interval int
		wantErr  bool
	}{
		{"both fields", []string{`{"tickers":["aapl"," msft "],"interval":10}`}, []string{"AAPL", "MSFT"}, 10, false},
		{"interval only keeps tickers", []string{`{"tickers":["A"]}`, `{"interval":"7"}`}, []string{"A"}, 7, false},
		{"float interval truncates", []string{`{"interval":2.9}`}, nil, 2, false},
		{"bad interval ignored", []string{`{"interval":"soon"}`}, nil, 5, false},
		{"bad tickers ignored", []string{`{"tickers":"AAPL"}`}, nil, 5, false},
		{"duplicates kept", []string{`{"tickers":["a","A"]}`}, []string{"A", "A"}, 5, false},
		{"invalid json", []string{`{`}, nil, 5, true},
		{"null", []string{`null`}, nil, 5, true},
		{"huge float interval clamps", []string{`{"interval":1e20}`}, nil, int(maxInterval), false},
		{"huge integer interval clamps", []string{`{"interval":100000000000000000000}`}, nil, int(maxInterval), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &subscriber{interval: defaultInterval}
			var err error
			for _, f := range tt.frames {
				err = s.apply([]byte(f))
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			tickers, interval := s.state()
			if strings.Join(tickers, ",") != strings.Join(tt.tickers, ",") {
				t.Errorf("tickers = %v, want %v", tickers, tt.tickers)
			}
			if interval != tt.interval {
				t.Errorf("interval = %d, want %d", interval, tt.interval)
			}
		})
	}
}

func TestDelay(t *testing.T) {
	c := &client{minInterval: time.Second}
	tests := []struct {
		interval int
		want     time.Duration
	}{
		{0, time.Second},
		{-3, time.Second},
		{7, 7 * time.Second},
		{int(maxInterval), time.Duration(maxInterval) * time.Second},
	}
	for _, tt := range tests {
		if got := c.delay(tt.interval); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.interval, got, tt.want)
		}
	}
	if got := c.delay(math.MaxInt); got < time.Duration(maxInterval)*time.Second {
		t.Errorf("delay(MaxInt) = %v, wrapped below the cap", got)
	}
}

func TestSubscriber_StartsOnce(t *testing.T) {
	s := &subscriber{}
	if !s.start() {
		t.Fatal("first start should launch the stream")
	}
	if s.start() || s.start() {
		t.Fatal("stream launched more than once")
	}
}

func TestPricesHandler(t *testing.T) {
	srv, _, _ := startServer(t)

	resp, err := http.Get(srv.URL + "/prices?tickers=tsla,%20,nope,tsla")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Prices map[string]quotes.Quote `json:"prices"`
		TS     string                  `json:"ts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Prices) != 2 {
		t.Fatalf("prices = %+v", body.Prices)
	}
	if q := body.Prices["tsla"]; q.Price == nil || *q.Price != 250 || q.Resolved != "TSLA" {
		t.Errorf("tsla = %+v", q)
	}
	if q := body.Prices["nope"]; q.Price != nil || q.Error == "" {
		t.Errorf("nope = %+v", q)
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _, _ := startServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["ok"] != true {
		t.Errorf("health = %v", body)
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
