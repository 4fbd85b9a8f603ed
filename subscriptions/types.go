package subscriptions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the UTC ISO-8601 layout, without zone, used for Snapshot.TS.
const TimestampLayout = "2006-01-02T15:04:05.000000"

type (
	// Request is the client -> server frame.
	Request struct {
		Tickers  []string `json:"tickers"`
		Interval int      `json:"interval"`
	}

	// Snapshot is the server -> client frame. It replaces whatever the
	// client displayed before.
	Snapshot struct {
		Prices PriceMap `json:"prices"`
		TS     string   `json:"ts"`
	}

	PriceEntry struct {
		Symbol string
		Price  *float64 // nil when no price is available
	}

	// PriceMap is a JSON object of symbol -> number|null that keeps the
	// order its keys were inserted or received in.
	PriceMap []PriceEntry
)

// Timestamp formats t for Snapshot.TS.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Set updates symbol in place, or appends it when it is new.
func (m *PriceMap) Set(symbol string, price *float64) {
	for i := range *m {
		if (*m)[i].Symbol == symbol {
			(*m)[i].Price = price
			return
		}
	}
	*m = append(*m, PriceEntry{Symbol: symbol, Price: price})
}

func (m PriceMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Symbol)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Price)
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

// UnmarshalJSON accepts null or an object whose values are numbers or null.
// Any other value type is an error.
func (m *PriceMap) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w prices must be an object", ErrInvalid)
	}

	out := PriceMap{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w prices key %v", ErrInvalid, tok)
		}
		var price *float64
		if err := dec.Decode(&price); err != nil {
			return fmt.Errorf("%w price for %s: %s", ErrInvalid, key, err)
		}
		out.Set(key, price)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = out
	return nil
}
