package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricemap/backend/util"
)

// EntityID identifies a price, store or supplier. The backend sends numeric ids,
// but string ids are accepted as well.
type EntityID string

func (id *EntityID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = EntityID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("entity id %s: %w", string(b), err)
	}
	*id = EntityID(n.String())
	return nil
}

// Seed is the integer used to derive display offsets for the entity.
func (id EntityID) Seed() int64 {
	return util.IdToSeed(string(id))
}

func (id EntityID) String() string {
	return string(id)
}

type Kind string

const (
	KindPrice    Kind = "price"
	KindStore    Kind = "store"
	KindSupplier Kind = "supplier"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPrice, KindStore, KindSupplier:
		return k, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// EntityRef is unique across entity classes, unlike a bare EntityID.
type EntityRef struct {
	Kind Kind     `json:"kind"`
	ID   EntityID `json:"id"`
}

func (r EntityRef) String() string {
	return string(r.Kind) + ":" + string(r.ID)
}

// Entity is the positioned part shared by every map record.
type Entity struct {
	ID                    EntityID `json:"id"`
	Latitude              *float64 `json:"latitude"`
	Longitude             *float64 `json:"longitude"`
	IsApproximateLocation bool     `json:"is_approximate_location"`
}

// Position reports the coordinates only when both are present and valid.
func (e Entity) Position() (lat, lon float64, ok bool) {
	if e.Latitude == nil || e.Longitude == nil {
		return 0, 0, false
	}
	lat, lon = *e.Latitude, *e.Longitude
	if !ValidCoordinate(lat, lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

// WithPosition returns a copy carrying fresh coordinate pointers.
func (e Entity) WithPosition(lat, lon float64, approximate bool) Entity {
	e.Latitude = &lat
	e.Longitude = &lon
	e.IsApproximateLocation = approximate
	return e
}

// WithoutPosition returns a copy that will be excluded from rendering.
func (e Entity) WithoutPosition() Entity {
	e.Latitude = nil
	e.Longitude = nil
	e.IsApproximateLocation = false
	return e
}

func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

type PriceObservation struct {
	Entity
	Price        decimal.Decimal `json:"price"`
	ProductID    EntityID        `json:"product_id"`
	ProductName  string          `json:"product_name"`
	LocalityID   EntityID        `json:"locality_id"`
	LocalityName string          `json:"locality_name"`
	CategoryName string          `json:"category_name"`
	CategoryType string          `json:"category_type"`
	Date         time.Time       `json:"date"`
	UnitName     string          `json:"unit_name"`
	UnitSymbol   string          `json:"unit_symbol"`
}

// Place is a store or a supplier.
type Place struct {
	Entity
	Kind    Kind   `json:"kind"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}

func (p Place) Ref() EntityRef {
	return EntityRef{Kind: p.Kind, ID: p.ID}
}

// Locality is reference data for coordinate fallback; it is never rendered.
type Locality struct {
	ID        EntityID `json:"id"`
	Name      string   `json:"name"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
}

type AvailabilityRecord struct {
	ProductID           EntityID   `json:"product_id"`
	ProductName         string     `json:"product_name"`
	IsAvailable         bool       `json:"is_available"`
	AvailableQuantity   *float64   `json:"available_quantity"`
	QuantityUnit        string     `json:"quantity_unit"`
	ExpectedRestockDate *time.Time `json:"expected_restock_date"`
	AvailableFrom       *time.Time `json:"available_from"`
	AvailableUntil      *time.Time `json:"available_until"`
	Notes               string     `json:"notes"`
}

type EntitySummary struct {
	Prices       []PriceObservation   `json:"prices"`
	Availability []AvailabilityRecord `json:"availability"`
}

// AnyAvailable tells whether at least one product is currently available.
func (s *EntitySummary) AnyAvailable() bool {
	if s == nil {
		return false
	}
	for _, a := range s.Availability {
		if a.IsAvailable {
			return true
		}
	}
	return false
}

// EvolutionPoint is one day of aggregated prices for a product at a locality.
type EvolutionPoint struct {
	Date       time.Time `json:"date"`
	AvgPrice   float64   `json:"avg_price"`
	PriceCount int       `json:"price_count"`
	MinPrice   float64   `json:"min_price"`
	MaxPrice   float64   `json:"max_price"`
}

// Filters narrows the price collection shown on the map.
type Filters struct {
	ProductIDs  []EntityID          `json:"product_ids"`
	CategoryIDs []EntityID          `json:"category_ids"`
	LocalityIDs []EntityID          `json:"locality_ids"`
	Search      string              `json:"search"`
	PriceMin    decimal.NullDecimal `json:"price_min"`
	PriceMax    decimal.NullDecimal `json:"price_max"`
	DateFrom    *time.Time          `json:"date_from"`
	DateTo      *time.Time          `json:"date_to"`
}

// QueryKey renders the filters canonically, for logs and metric labels.
func (f Filters) QueryKey() string {
	parts := []string{}
	add := func(name string, ids []EntityID) {
		if len(ids) == 0 {
			return
		}
		s := make([]string, len(ids))
		for i, id := range ids {
			s[i] = string(id)
		}
		parts = append(parts, name+"="+strings.Join(s, ","))
	}
	add("product_id", f.ProductIDs)
	add("category_id", f.CategoryIDs)
	add("locality_id", f.LocalityIDs)
	if f.Search != "" {
		parts = append(parts, "search="+f.Search)
	}
	if f.PriceMin.Valid {
		parts = append(parts, "price_min="+f.PriceMin.Decimal.String())
	}
	if f.PriceMax.Valid {
		parts = append(parts, "price_max="+f.PriceMax.Decimal.String())
	}
	if f.DateFrom != nil {
		parts = append(parts, "date_from="+f.DateFrom.Format("2006-01-02"))
	}
	if f.DateTo != nil {
		parts = append(parts, "date_to="+f.DateTo.Format("2006-01-02"))
	}
	return strings.Join(parts, "&")
}
