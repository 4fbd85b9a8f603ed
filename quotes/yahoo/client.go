package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omertoast/pricestream/quotes"
)

var (
	_ quotes.Client   = &client{}
	_ quotes.Searcher = &client{}
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
)

type (
	client struct {
		baseURL    string
		httpClient *http.Client
	}

	chartResponse struct {
		Chart struct {
			Result []struct {
				Meta struct {
					Symbol             string   `json:"symbol"`
					Currency           string   `json:"currency"`
					ShortName          string   `json:"shortName"`
					LongName           string   `json:"longName"`
					RegularMarketPrice *float64 `json:"regularMarketPrice"`
				} `json:"meta"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error *struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}

	searchResponse struct {
		Quotes []struct {
			Symbol    string `json:"symbol"`
			ShortName string `json:"shortname"`
			LongName  string `json:"longname"`
		} `json:"quotes"`
	}
)

func New(baseURL string) *client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Quote returns the last one-minute close of the current session, or the
// regular market price when the session has no bars yet.
func (c *client) Quote(ctx context.Context, symbol string) (quotes.Quote, error) {
	q := quotes.Quote{Requested: symbol}

	params := url.Values{}
	params.Set("range", "1d")
	params.Set("interval", "1m")

	var resp chartResponse
	status, err := c.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), params, &resp)
	if err != nil {
		return q, err
	}
	if status == http.StatusNotFound || len(resp.Chart.Result) == 0 {
		return q, fmt.Errorf("%w %s", quotes.ErrNotFound, symbol)
	}

	r := resp.Chart.Result[0]
	q.Resolved = r.Meta.Symbol
	if q.Resolved == "" {
		q.Resolved = symbol
	}
	q.Currency = r.Meta.Currency
	q.Name = r.Meta.ShortName
	if q.Name == "" {
		q.Name = r.Meta.LongName
	}

	if len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] != nil {
				q.Price = quotes.Float(*closes[i])
				break
			}
		}
	}
	if q.Price == nil && r.Meta.RegularMarketPrice != nil {
		q.Price = quotes.Float(*r.Meta.RegularMarketPrice)
	}
	if q.Price == nil {
		return q, fmt.Errorf("%w price for %s", quotes.ErrNotFound, symbol)
	}

	return q, nil
}

func (c *client) Search(ctx context.Context, query string) ([]quotes.Match, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("quotesCount", "10")
	params.Set("newsCount", "0")

	var resp searchResponse
	status, err := c.getJSON(ctx, "/v1/finance/search", params, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w search status %d", quotes.ErrInternal, status)
	}

	out := make([]quotes.Match, 0, len(resp.Quotes))
	for _, r := range resp.Quotes {
		if r.Symbol == "" {
			continue
		}
		name := r.ShortName
		if name == "" {
			name = r.LongName
		}
		out = append(out, quotes.Match{Symbol: strings.ToUpper(r.Symbol), Name: name})
	}
	return out, nil
}

func (c *client) getJSON(ctx context.Context, path string, params url.Values, v any) (int, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("%w %s", quotes.ErrInternal, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w %s", quotes.ErrInternal, err)
	}
	defer resp.Body.Close()

	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "application/json") {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("%w non-json response (status %d)", quotes.ErrInternal, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("%w %s", quotes.ErrInternal, err)
	}
	return resp.StatusCode, nil
}
