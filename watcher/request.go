package watcher

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/omertoast/pricestream/subscriptions"
)

// DefaultInterval is used when the interval field is empty, unparseable or not positive.
const DefaultInterval = 5

// BuildRequest turns the raw ticker list and interval fields into a
// subscription request. Tickers are trimmed and uppercased and empty entries
// dropped; duplicates are left in.
func BuildRequest(tickersField, intervalField string) subscriptions.Request {
	tickers := []string{}
	for _, t := range strings.Split(tickersField, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			tickers = append(tickers, t)
		}
	}
	return subscriptions.Request{
		Tickers:  tickers,
		Interval: ParseInterval(intervalField),
	}
}

// ParseInterval reads the leading integer of s ("10", " 7s", "10.5" -> 10).
func ParseInterval(s string) int {
	s = strings.TrimSpace(s)

	i := 0
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	n, digits := 0, 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		if n > (1<<31-1)/10 {
			return DefaultInterval
		}
		n = n*10 + int(s[i]-'0')
		digits++
	}
	if digits == 0 || neg || n <= 0 {
		return DefaultInterval
	}
	return n
}

// Endpoint derives the stream URL from the page the user points at:
// the scheme maps http -> ws and https -> wss, the host is kept and the
// path becomes /ws.
func Endpoint(pageURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", fmt.Errorf("%w %s", ErrInvalid, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w unsupported scheme %q", ErrInvalid, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w missing host in %q", ErrInvalid, pageURL)
	}

	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/ws"}).String(), nil
}
