package subscriptions

import (
	"net/http"
)

// Client serves the price stream: the /ws websocket endpoint plus the
// one-shot /prices lookup, /health and the browser page.
type Client interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}
