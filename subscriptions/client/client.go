package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/omertoast/pricestream/feed"
	"github.com/omertoast/pricestream/metrics"
	"github.com/omertoast/pricestream/quotes"
	"github.com/omertoast/pricestream/subscriptions"
	"github.com/omertoast/pricestream/web"
)

var _ subscriptions.Client = &client{}

const (
	defaultInterval = 5

	// maxInterval is the largest interval, in seconds, that fits in a time.Duration.
	maxInterval = math.MaxInt64 / int64(time.Second)

	// idleWait is how long a connection with no tickers waits before
	// looking at its subscription again.
	idleWait = time.Second
)

type (
	// client serves one independent polling stream per websocket connection.
	client struct {
		// writeTimeout bounds each snapshot write. A subscriber that cannot
		// take a frame within it is disconnected.
		//
		// Defaults to 5s.
		writeTimeout time.Duration

		// minInterval is the lower bound on the delay between snapshots.
		//
		// Defaults to 1s.
		minInterval time.Duration

		// serveMux routes the various endpoints to the appropriate handler.
		serveMux http.ServeMux

		log *zap.Logger
		b   Backends
	}

	Backends interface {
		Feed() feed.Client
		Metrics() *metrics.Metrics
		Logger() *zap.Logger
	}

	// subscriber is the state of one websocket connection.
	subscriber struct {
		id string

		mu       sync.Mutex
		tickers  []string
		interval int
		started  bool
	}
)

func New(b Backends) *client {
	c := &client{
		writeTimeout: 5 * time.Second,
		minInterval:  time.Second,
		log:          b.Logger().Named("subscriptions"),
		b:            b,
	}
	c.serveMux.HandleFunc("/ws", c.subscribeHandler)
	c.serveMux.HandleFunc("/prices", c.pricesHandler)
	c.serveMux.HandleFunc("/health", c.healthHandler)
	c.serveMux.Handle("/", web.Handler())

	return c
}

func (c *client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.serveMux.ServeHTTP(w, r)
}

// subscribeHandler accepts the WebSocket connection and streams snapshots
// for whatever the connection last subscribed to until it goes away.
func (c *client) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	s := &subscriber{id: uuid.NewString(), interval: defaultInterval}
	log := c.log.With(zap.String("conn_id", s.id))

	err := c.subscribe(r.Context(), w, r, s, log)
	if errors.Is(err, context.Canceled) {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		log.Debug("connection closed by peer")
		return
	}
	if err != nil {
		log.Warn("connection ended", zap.Error(err))
		return
	}
}

// subscribe reads subscription frames from the connection. The first valid
// frame starts the connection's stream goroutine; later frames only replace
// its tickers and interval. Reading returns once the peer closes or the
// stream fails to write, which cancels the stream.
func (c *client) subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request, s *subscriber, log *zap.Logger) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	c.b.Metrics().ConnOpened()
	defer c.b.Metrics().ConnClosed()
	log.Debug("connection accepted", zap.String("remote", r.RemoteAddr))

	// cancel must run before Wait so the stream goroutine can exit.
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.b.Metrics().FrameIn()
		if typ != websocket.MessageText {
			continue
		}

		if err := s.apply(msg); err != nil {
			c.b.Metrics().FrameDropped()
			log.Debug("ignoring frame", zap.Error(err))
			continue
		}

		if s.start() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.stream(ctx, conn, s, log)
			}()
		}
	}
}

// stream polls prices for the subscriber and writes a snapshot every
// max(minInterval, interval). With no tickers it idles.
func (c *client) stream(ctx context.Context, conn *websocket.Conn, s *subscriber, log *zap.Logger) {
	for {
		tickers, interval := s.state()
		if len(tickers) == 0 {
			if !sleep(ctx, idleWait) {
				return
			}
			continue
		}

		prices := c.b.Feed().Fetch(ctx, tickers)
		if ctx.Err() != nil {
			return
		}

		msg, err := json.Marshal(subscriptions.Snapshot{
			Prices: prices,
			TS:     subscriptions.Timestamp(time.Now()),
		})
		if err != nil {
			log.Error("failed to encode snapshot", zap.Error(err))
			return
		}

		err = writeTimeout(ctx, c.writeTimeout, conn, msg)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("failed to write snapshot", zap.Error(err))
				conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with snapshots")
			}
			return
		}
		c.b.Metrics().SnapshotSent()

		if !sleep(ctx, c.delay(interval)) {
			return
		}
	}
}

// apply updates the subscriber from a client frame. Fields that are absent
// or of the wrong shape leave the current value alone.
func (s *subscriber) apply(msg []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return errors.Join(subscriptions.ErrInvalid, err)
	}
	if fields == nil {
		return subscriptions.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok := fields["tickers"]; ok {
		if tickers, ok := parseTickers(raw); ok {
			s.tickers = tickers
		}
	}
	if raw, ok := fields["interval"]; ok {
		if n, ok := parseInterval(raw); ok {
			s.interval = n
		}
	}
	return nil
}

// start reports whether the caller should launch the stream, which happens once.
func (s *subscriber) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}

func (s *subscriber) state() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tickers...), s.interval
}

func parseTickers(raw json.RawMessage) ([]string, bool) {
	var in []string
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out, true
}

// delay is how long to wait between snapshots for interval seconds.
func (c *client) delay(interval int) time.Duration {
	wait := time.Duration(clampInterval(int64(interval))) * time.Second
	if wait < c.minInterval {
		wait = c.minInterval
	}
	return wait
}

func clampInterval(n int64) int {
	limit := min(maxInterval, int64(math.MaxInt))
	return int(max(-limit, min(n, limit)))
}

// parseInterval accepts a JSON number (truncated toward zero) or a string
// holding an integer.
func parseInterval(raw json.RawMessage) (int, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return clampInterval(n), true
		}
		if f, err := x.Float64(); err == nil {
			f = max(-float64(maxInterval), min(f, float64(maxInterval)))
			return clampInterval(int64(f)), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return clampInterval(n), true
		}
	}
	return 0, false
}

func (c *client) pricesHandler(w http.ResponseWriter, r *http.Request) {
	var tickers []string
	seen := make(map[string]struct{})
	for _, t := range strings.Split(r.URL.Query().Get("tickers"), ",") {
		t = strings.TrimSpace(t)
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		tickers = append(tickers, t)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	writeJSON(w, struct {
		Prices quoteList `json:"prices"`
		TS     string    `json:"ts"`
	}{
		Prices: c.b.Feed().Lookup(ctx, tickers),
		TS:     subscriptions.Timestamp(time.Now()),
	})
}

func (c *client) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, c.b.Metrics().Snapshot())
}

// quoteList encodes as an object keyed by each quote's requested input.
type quoteList []quotes.Quote

func (l quoteList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, q := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(q.Requested)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(q)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}

func writeTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.Write(ctx, websocket.MessageText, msg)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
