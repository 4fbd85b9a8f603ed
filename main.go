package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/omertoast/pricestream/environment"
	env_client "github.com/omertoast/pricestream/environment/client"
	"github.com/omertoast/pricestream/feed"
	feed_client "github.com/omertoast/pricestream/feed/client"
	"github.com/omertoast/pricestream/logging"
	"github.com/omertoast/pricestream/metrics"
	"github.com/omertoast/pricestream/quotes"
	"github.com/omertoast/pricestream/quotes/cache"
	"github.com/omertoast/pricestream/quotes/massive"
	"github.com/omertoast/pricestream/quotes/resolver"
	"github.com/omertoast/pricestream/quotes/yahoo"
	"github.com/omertoast/pricestream/subscriptions"
	subs_client "github.com/omertoast/pricestream/subscriptions/client"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	b := &backends{}
	ctx := context.Background()

	b.environment = env_client.New()

	logger, err := logging.New(b.environment.GetString(ctx, "LOG_LEVEL", "info"))
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	b.logger = logger
	b.metrics = metrics.New(version, commit)

	src, closeSrc, err := newQuotes(ctx, b.environment, logger)
	if err != nil {
		logger.Fatal("failed to create quote source", zap.Error(err))
	}
	defer closeSrc()
	b.quotes = src

	b.feed = feed_client.New(b, b.environment.GetInt(ctx, "FETCH_CONCURRENCY", 8))
	b.subscriptions = subs_client.New(b)

	if err := run(*b); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// run starts a http.Server for the address given as the first argument,
// or LISTEN_ADDR, and shuts it down on SIGINT/SIGTERM.
func run(b backends) error {
	addr := b.environment.GetString(context.Background(), "LISTEN_ADDR", "127.0.0.1:8000")
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	b.logger.Info("listening", zap.String("url", "http://"+l.Addr().String()))

	s := &http.Server{
		Handler:           b.subscriptions,
		ReadHeaderTimeout: time.Second * 10,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		b.logger.Error("failed to serve", zap.Error(err))
	case sig := <-sigs:
		b.logger.Info("terminating", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	return s.Shutdown(ctx)
}

// newQuotes builds the upstream source named by QUOTE_PROVIDER, wraps it in
// the symbol resolver and, when REDIS_ADDR is set, the Redis cache.
func newQuotes(ctx context.Context, env environment.Client, logger *zap.Logger) (quotes.Client, func(), error) {
	var (
		upstream quotes.Client
		searcher quotes.Searcher
	)
	yc := yahoo.New(env.GetString(ctx, "YAHOO_BASE_URL", yahoo.DefaultBaseURL))
	searcher = yc

	switch provider := env.GetString(ctx, "QUOTE_PROVIDER", "yahoo"); provider {
	case "massive":
		apiKey, err := env.Get(ctx, "MASSIVE_API_KEY")
		if err != nil {
			return nil, nil, err
		}
		mc, err := massive.New(apiKey)
		if err != nil {
			return nil, nil, err
		}
		upstream = mc
	default:
		if provider != "yahoo" {
			logger.Warn("unknown QUOTE_PROVIDER, using yahoo", zap.String("provider", provider))
		}
		upstream = yc
	}

	aliases, err := resolver.LoadAliases(env.GetString(ctx, "ALIASES_FILE", ""))
	if err != nil {
		return nil, nil, err
	}
	var src quotes.Client = resolver.New(upstream, searcher, aliases, logger.Named("resolver"))

	redisAddr := env.GetString(ctx, "REDIS_ADDR", "")
	if redisAddr == "" {
		return src, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ttl := env.GetDuration(ctx, "QUOTE_CACHE_TTL", 2*time.Second)
	c := cache.New(rdb, src, ttl, logger.Named("cache"))

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable, quotes will bypass the cache", zap.String("addr", redisAddr), zap.Error(err))
	} else {
		logger.Info("quote cache enabled", zap.String("addr", redisAddr), zap.Duration("ttl", ttl))
	}
	return c, func() { rdb.Close() }, nil
}

type backends struct {
	environment   environment.Client
	logger        *zap.Logger
	metrics       *metrics.Metrics
	quotes        quotes.Client
	feed          feed.Client
	subscriptions subscriptions.Client
}

func (b backends) Logger() *zap.Logger {
	return b.logger
}

func (b backends) Metrics() *metrics.Metrics {
	return b.metrics
}

func (b backends) Quotes() quotes.Client {
	return b.quotes
}

func (b backends) Feed() feed.Client {
	return b.feed
}
