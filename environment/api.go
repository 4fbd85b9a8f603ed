package environment

import (
	"context"
	"time"
)

type Client interface {
	// Get returns the value of name, or ErrNotFound when it is unset and has no default.
	Get(ctx context.Context, name string) (string, error)
	GetString(ctx context.Context, name, def string) string
	GetInt(ctx context.Context, name string, def int) int
	GetDuration(ctx context.Context, name string, def time.Duration) time.Duration
}
