package resolver

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/omertoast/pricestream/quotes"
)

//go:embed aliases.yaml
var defaultAliases []byte

type aliasFile struct {
	Aliases []struct {
		Name   string `yaml:"name"`
		Symbol string `yaml:"symbol"`
	} `yaml:"aliases"`
}

// LoadAliases reads a name -> symbol table. An empty path loads the built-in table.
func LoadAliases(path string) (map[string]string, error) {
	b := defaultAliases
	if path != "" {
		var err error
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w %s", quotes.ErrInternal, err)
		}
	}
	return parseAliases(b)
}

func parseAliases(b []byte) (map[string]string, error) {
	var af aliasFile
	if err := yaml.Unmarshal(b, &af); err != nil {
		return nil, fmt.Errorf("%w %s", quotes.ErrInternal, err)
	}

	out := make(map[string]string, len(af.Aliases))
	for _, a := range af.Aliases {
		name := strings.TrimSpace(a.Name)
		sym := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if name == "" || sym == "" {
			continue
		}
		out[name] = sym
	}
	return out, nil
}
