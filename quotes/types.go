package quotes

import "strings"

type (
	Quote struct {
		Requested string   `json:"requested"`
		Resolved  string   `json:"resolved,omitempty"`
		Name      string   `json:"name,omitempty"`
		Price     *float64 `json:"price"`
		Currency  string   `json:"currency,omitempty"`
		Error     string   `json:"error,omitempty"`
	}

	Match struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	}
)

// IsKRX reports whether symbol is listed on KOSPI (.KS) or KOSDAQ (.KQ).
func IsKRX(symbol string) bool {
	s := strings.ToUpper(symbol)
	return strings.HasSuffix(s, ".KS") || strings.HasSuffix(s, ".KQ")
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}
