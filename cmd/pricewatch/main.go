// Command pricewatch is a terminal client for the pricestream server.
//
// It reads commands from stdin:
//
//	sub [tickers] [interval]   subscribe, e.g. "sub aapl, msft 10"
//	interval <seconds>         change the interval field
//	unsub                      close the socket and clear the table
//	show                       print the current table
//	quit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	env_client "github.com/omertoast/pricestream/environment/client"
	"github.com/omertoast/pricestream/logging"
	"github.com/omertoast/pricestream/watcher"
	watcher_client "github.com/omertoast/pricestream/watcher/client"
)

// fields mirrors the two inputs of the browser page.
type fields struct {
	tickers  string
	interval string
}

func main() {
	env := env_client.New()
	ctx := context.Background()

	pageURL := flag.String("url", "http://127.0.0.1:8000", "URL of the pricestream server")
	watchlist := flag.String("watchlist", "", "optional yaml watchlist used as the initial ticker field")
	logLevel := flag.String("log-level", env.GetString(ctx, "LOG_LEVEL", "warn"), "log level: debug|info|warn|error")
	flag.Parse()

	logger, err := logging.New(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	endpoint, err := watcher.Endpoint(*pageURL)
	if err != nil {
		logger.Fatal("bad -url", zap.Error(err))
	}

	f := fields{interval: fmt.Sprint(watcher.DefaultInterval)}
	if *watchlist != "" {
		f.tickers, f.interval, err = watcher.LoadWatchlist(*watchlist)
		if err != nil {
			logger.Fatal("failed to load watchlist", zap.Error(err))
		}
	}

	var outMu sync.Mutex
	out := os.Stdout
	c := watcher_client.New(watcher_client.Options{
		Endpoint: endpoint,
		Log:      logger.Named("watcher"),
		OnUpdate: func(t watcher.Table) {
			outMu.Lock()
			defer outMu.Unlock()
			printTable(out, t)
		},
	})

	fmt.Fprintf(out, "pricewatch -> %s (type 'sub <tickers> [interval]', 'unsub', 'show', 'quit')\n", endpoint)
	if err := repl(ctx, os.Stdin, out, &outMu, c, &f, logger); err != nil {
		logger.Error("input", zap.Error(err))
	}
	c.Unsubscribe()
}

func repl(ctx context.Context, in io.Reader, out io.Writer, outMu *sync.Mutex, c watcher.Client, f *fields, logger *zap.Logger) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		cmd, rest, _ := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToLower(cmd) {
		case "":
		case "sub", "subscribe":
			if rest != "" {
				f.tickers, f.interval = splitSubscribeArgs(rest, f.interval)
			}
			subCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := c.Subscribe(subCtx, f.tickers, f.interval); err != nil {
				logger.Warn("subscribe failed", zap.Error(err))
			}
			cancel()
		case "interval":
			f.interval = rest
		case "unsub", "unsubscribe":
			c.Unsubscribe()
		case "show":
			outMu.Lock()
			printTable(out, c.Table())
			outMu.Unlock()
		case "quit", "exit":
			return nil
		default:
			outMu.Lock()
			fmt.Fprintf(out, "unknown command %q\n", cmd)
			outMu.Unlock()
		}
	}
	return sc.Err()
}

// splitSubscribeArgs treats a trailing all-digit word as the interval field.
func splitSubscribeArgs(rest, interval string) (string, string) {
	i := strings.LastIndexAny(rest, " \t")
	if i < 0 {
		return rest, interval
	}
	last := rest[i+1:]
	if strings.Trim(last, "0123456789") != "" || last == "" {
		return rest, interval
	}
	return strings.TrimSpace(rest[:i]), last
}

func printTable(w io.Writer, t watcher.Table) {
	if t.Empty() {
		fmt.Fprintln(w, "(no prices)")
		return
	}
	t.Render(w)
	fmt.Fprintln(w)
}
