package tier

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier is one price bucket and the marker style used for it.
type Tier struct {
	// MaxExclusive is the upper bound of the bucket; the last tier is unbounded.
	MaxExclusive decimal.NullDecimal `json:"max_exclusive"`
	Name         string              `json:"tier"`
	Color        string              `json:"color"`
	Size         int                 `json:"size"`
	Glyph        string              `json:"glyph"`
	Label        string              `json:"label"`
}

// Table is an ordered list of tiers, lowest first.
type Table []Tier

func bound(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

// Default buckets prices in FCFA.
var Default = Table{
	{MaxExclusive: bound(1000), Name: "low", Color: "#22c55e", Size: 16, Glyph: "B", Label: "Bas"},
	{MaxExclusive: bound(2000), Name: "medium", Color: "#eab308", Size: 20, Glyph: "M", Label: "Moyen"},
	{MaxExclusive: bound(3000), Name: "high", Color: "#f97316", Size: 24, Glyph: "H", Label: "Élevé"},
	{Name: "very-high", Color: "#ef4444", Size: 28, Glyph: "V", Label: "Très élevé"},
}

var (
	ErrEmptyTable    = errors.New("tier table is empty")
	ErrUnboundedTail = errors.New("last tier must be unbounded")
)

// Validate checks that bounds strictly increase and the last tier is open ended.
func (t Table) Validate() error {
	if len(t) == 0 {
		return ErrEmptyTable
	}
	for i, tr := range t {
		last := i == len(t)-1
		if last {
			if tr.MaxExclusive.Valid {
				return ErrUnboundedTail
			}
			break
		}
		if !tr.MaxExclusive.Valid {
			return fmt.Errorf("tier %q at %d has no upper bound", tr.Name, i)
		}
		if i > 0 && !tr.MaxExclusive.Decimal.GreaterThan(t[i-1].MaxExclusive.Decimal) {
			return fmt.Errorf("tier %q bound %s does not exceed %s", tr.Name, tr.MaxExclusive.Decimal, t[i-1].MaxExclusive.Decimal)
		}
	}
	return nil
}

// Classify returns the first tier whose bound is above the price. A price
// equal to a bound belongs to the next tier.
func (t Table) Classify(price decimal.Decimal) Tier {
	for _, tr := range t {
		if !tr.MaxExclusive.Valid || price.LessThan(tr.MaxExclusive.Decimal) {
			return tr
		}
	}
	if len(t) == 0 {
		return Tier{}
	}
	return t[len(t)-1]
}

// LegendEntry describes one tier for the map legend.
type LegendEntry struct {
	Tier  Tier   `json:"tier"`
	Range string `json:"range"`
}

// Legend lists tiers with their price range, e.g. "1000-2000 FCFA".
func (t Table) Legend(currency string) []LegendEntry {
	entries := make([]LegendEntry, 0, len(t))
	for i, tr := range t {
		var r string
		switch {
		case i == 0 && tr.MaxExclusive.Valid:
			r = fmt.Sprintf("< %s %s", tr.MaxExclusive.Decimal, currency)
		case !tr.MaxExclusive.Valid && i > 0:
			r = fmt.Sprintf("> %s %s", t[i-1].MaxExclusive.Decimal, currency)
		case !tr.MaxExclusive.Valid:
			r = "all"
		default:
			r = fmt.Sprintf("%s-%s %s", t[i-1].MaxExclusive.Decimal, tr.MaxExclusive.Decimal, currency)
		}
		entries = append(entries, LegendEntry{Tier: tr, Range: r})
	}
	return entries
}
