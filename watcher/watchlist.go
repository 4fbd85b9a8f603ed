package watcher

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type watchlistFile struct {
	Watchlist []struct {
		Symbol string `yaml:"symbol"`
	} `yaml:"watchlist"`
	Interval int `yaml:"interval"`
}

// LoadWatchlist reads a yaml watchlist and returns it as the comma-separated
// ticker field plus the interval field ("" when the file sets none).
func LoadWatchlist(path string) (tickersField, intervalField string, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("%w %s", ErrInvalid, err)
	}
	var wf watchlistFile
	if err := yaml.Unmarshal(b, &wf); err != nil {
		return "", "", fmt.Errorf("%w %s", ErrInvalid, err)
	}

	syms := make([]string, 0, len(wf.Watchlist))
	for _, it := range wf.Watchlist {
		if s := strings.TrimSpace(it.Symbol); s != "" {
			syms = append(syms, s)
		}
	}
	if len(syms) == 0 {
		return "", "", fmt.Errorf("%w no symbols found in watchlist", ErrInvalid)
	}

	if wf.Interval > 0 {
		intervalField = fmt.Sprint(wf.Interval)
	}
	return strings.Join(syms, ","), intervalField, nil
}
