package mapengine

import (
	"sync"

	"github.com/shopspring/decimal"

	"pricemap/backend/model"
	"pricemap/backend/tier"
)

// Icon is the marker style handed to the map.
type Icon struct {
	Kind       model.Kind `json:"kind"`
	Tier       string     `json:"tier,omitempty"`
	Color      string     `json:"color"`
	Glyph      string     `json:"glyph"`
	SizePx     int        `json:"size_px"`
	FontSizePx int        `json:"font_size_px"`
	AnchorX    int        `json:"anchor_x"`
	AnchorY    int        `json:"anchor_y"`
}

var placeStyles = map[model.Kind]struct {
	color, glyph string
	size         int
}{
	model.KindStore:    {"#3b82f6", "S", 22},
	model.KindSupplier: {"#8b5cf6", "F", 22},
}

// IconFactory builds marker icons for one engine and reuses them across renders.
type IconFactory struct {
	tiers tier.Table

	mu    sync.Mutex
	icons map[string]Icon
}

func NewIconFactory(tiers tier.Table) *IconFactory {
	return &IconFactory{
		tiers: tiers,
		icons: map[string]Icon{},
	}
}

func (f *IconFactory) Tiers() tier.Table {
	return f.tiers
}

// ForPrice classifies the price and returns the icon of its tier.
func (f *IconFactory) ForPrice(price decimal.Decimal) (Icon, tier.Tier) {
	t := f.tiers.Classify(price)
	return f.get("price:"+t.Name, func() Icon {
		return newIcon(model.KindPrice, t.Name, t.Color, t.Glyph, t.Size)
	}), t
}

func (f *IconFactory) ForPlace(k model.Kind) Icon {
	return f.get("place:"+string(k), func() Icon {
		s, ok := placeStyles[k]
		if !ok {
			s = placeStyles[model.KindStore]
		}
		return newIcon(k, "", s.color, s.glyph, s.size)
	})
}

// Len is the number of distinct icons built so far.
func (f *IconFactory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.icons)
}

func (f *IconFactory) get(key string, build func() Icon) Icon {
	f.mu.Lock()
	defer f.mu.Unlock()
	if icon, ok := f.icons[key]; ok {
		return icon
	}
	icon := build()
	f.icons[key] = icon
	return icon
}

func newIcon(k model.Kind, tierName, color, glyph string, size int) Icon {
	fontSize := 8
	if size > 20 {
		fontSize = 10
	}
	return Icon{
		Kind:       k,
		Tier:       tierName,
		Color:      color,
		Glyph:      glyph,
		SizePx:     size,
		FontSizePx: fontSize,
		AnchorX:    size / 2,
		AnchorY:    size / 2,
	}
}
