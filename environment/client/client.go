package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/omertoast/pricestream/environment"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var _ environment.Client = &client{}

type client struct {
	v *viper.Viper
}

// Defaults for every key the server and client read.
var defaults = map[string]any{
	"LISTEN_ADDR":       "127.0.0.1:8000",
	"QUOTE_PROVIDER":    "yahoo",
	"YAHOO_BASE_URL":    "https://query1.finance.yahoo.com",
	"REDIS_ADDR":        "",
	"QUOTE_CACHE_TTL":   "2s",
	"FETCH_CONCURRENCY": 8,
	"LOG_LEVEL":         "info",
}

// New loads files (".env" when none are given) into the process environment and
// returns a client that reads environment variables over the built-in defaults.
func New(files ...string) environment.Client {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			fmt.Printf("environment: Warning: %s file not found.\n", f)
		}
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	return &client{v: v}
}

func (c *client) Get(ctx context.Context, name string) (string, error) {
	value := strings.TrimSpace(c.v.GetString(name))
	if value == "" {
		return "", fmt.Errorf("%w %v", environment.ErrNotFound, name)
	}

	return value, nil
}

func (c *client) GetString(ctx context.Context, name, def string) string {
	value, err := c.Get(ctx, name)
	if err != nil {
		return def
	}
	return value
}

func (c *client) GetInt(ctx context.Context, name string, def int) int {
	if !c.v.IsSet(name) {
		return def
	}
	n, err := toInt(c.v.Get(name))
	if err != nil {
		return def
	}
	return n
}

func (c *client) GetDuration(ctx context.Context, name string, def time.Duration) time.Duration {
	value, err := c.Get(ctx, name)
	if err != nil {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	default:
		return 0, fmt.Errorf("%w unsupported value %T", environment.ErrInternal, v)
	}
}
