package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/omertoast/pricestream/subscriptions"
	"github.com/omertoast/pricestream/watcher"
)

var _ watcher.Client = &client{}

type (
	client struct {
		endpoint string
		dialOpts *websocket.DialOptions

		// onUpdate is called with every new table, including the empty one
		// Unsubscribe leaves behind. It must not call back into the client.
		onUpdate func(watcher.Table)

		log *zap.Logger

		// mu guards the socket reference and the table. The receive loop of a
		// socket only touches them while that socket is still current.
		mu    sync.Mutex
		conn  *websocket.Conn
		table watcher.Table
	}

	Options struct {
		// Endpoint is the ws:// or wss:// stream URL, see watcher.Endpoint.
		Endpoint string
		DialOpts *websocket.DialOptions
		OnUpdate func(watcher.Table)
		Log      *zap.Logger
	}
)

func New(opts Options) watcher.Client {
	c := &client{
		endpoint: opts.Endpoint,
		dialOpts: opts.DialOpts,
		onUpdate: opts.OnUpdate,
		log:      opts.Log,
	}
	if c.onUpdate == nil {
		c.onUpdate = func(watcher.Table) {}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, _, err := websocket.Dial(ctx, c.endpoint, c.dialOpts)
	if err != nil {
		return fmt.Errorf("%w %s", watcher.ErrInternal, err)
	}
	c.conn = conn
	c.log.Info("ws open", zap.String("endpoint", c.endpoint))

	go c.receive(conn)
	return nil
}

func (c *client) Subscribe(ctx context.Context, tickersField, intervalField string) error {
	if err := c.Connect(ctx); err != nil {
		c.log.Warn("connect failed", zap.Error(err))
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	req := watcher.BuildRequest(tickersField, intervalField)
	if err := wsjson.Write(ctx, conn, req); err != nil {
		return fmt.Errorf("%w %s", watcher.ErrInternal, err)
	}
	c.log.Debug("subscription sent", zap.Strings("tickers", req.Tickers), zap.Int("interval", req.Interval))
	return nil
}

func (c *client) Unsubscribe() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.table = watcher.Table{}
	c.onUpdate(c.table)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		c.log.Debug("close", zap.Error(err))
	}
	return nil
}

func (c *client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *client) Table() watcher.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return watcher.Table{Rows: append([]watcher.Row(nil), c.table.Rows...)}
}

// receive reads snapshots from conn until it fails, replacing the table on
// every well-formed frame and dropping malformed ones.
func (c *client) receive(conn *websocket.Conn) {
	ctx := context.Background()

	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			c.forget(conn, err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var snap *subscriptions.Snapshot
		if err := json.Unmarshal(msg, &snap); err != nil {
			c.log.Error("dropping malformed frame", zap.Error(err))
			continue
		}
		if snap == nil {
			c.log.Error("dropping malformed frame", zap.ByteString("frame", msg))
			continue
		}
		table := watcher.FromSnapshot(*snap)

		c.mu.Lock()
		if c.conn == conn {
			c.table = table
			c.onUpdate(table)
		}
		c.mu.Unlock()
	}
}

// forget drops the socket reference after conn closed, unless the reference
// has already moved on.
func (c *client) forget(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	if !current {
		return
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
		c.log.Info("ws closed")
		return
	}
	c.log.Warn("ws closed", zap.Error(err))
}
