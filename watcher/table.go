package watcher

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/omertoast/pricestream/subscriptions"
)

type (
	Row struct {
		Symbol string
		Price  string
		TS     string
	}

	// Table is the rendered form of one snapshot.
	Table struct {
		Rows []Row
	}
)

// FromSnapshot builds one row per symbol, in the order the server sent them.
func FromSnapshot(s subscriptions.Snapshot) Table {
	rows := make([]Row, 0, len(s.Prices))
	for _, e := range s.Prices {
		rows = append(rows, Row{Symbol: e.Symbol, Price: FormatPrice(e.Price), TS: s.TS})
	}
	return Table{Rows: rows}
}

// FormatPrice renders p with two decimals, or "-" when there is no price.
func FormatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	// Rounds the shortest decimal form half away from zero: 1.005 is "1.01",
	// not the binary-float "1.00".
	return decimal.NewFromFloat(*p).StringFixed(2)
}

func (t Table) Empty() bool { return len(t.Rows) == 0 }

// Render writes the table as aligned columns.
func (t Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tUPDATED")
	for _, r := range t.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Symbol, r.Price, r.TS)
	}
	return tw.Flush()
}
