package db

import (
	"context"
	"database/sql"
	"fmt"

	"pricemap/backend/model"
)

// Source serves the map engine and the price chart from MySQL.
type Source struct {
	db *sql.DB
}

func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

func (s *Source) FetchPrices(ctx context.Context, f model.Filters) ([]model.PriceObservation, error) {
	return GetPricesForMap(ctx, s.db, f)
}

func (s *Source) FetchStores(ctx context.Context) ([]model.Place, error) {
	return GetStores(ctx, s.db)
}

func (s *Source) FetchSuppliers(ctx context.Context) ([]model.Place, error) {
	return GetSuppliers(ctx, s.db)
}

func (s *Source) FetchLocalities(ctx context.Context) ([]model.Locality, error) {
	return GetLocalitiesWithCoordinates(ctx, s.db)
}

func (s *Source) FetchEntitySummary(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error) {
	switch ref.Kind {
	case model.KindSupplier:
		return GetSupplierSummary(ctx, s.db, ref.ID)
	case model.KindStore:
		return GetStoreSummary(ctx, s.db, ref.ID)
	}
	return nil, fmt.Errorf("no summary for %s", ref)
}

func (s *Source) FetchEvolution(ctx context.Context, productID, localityID model.EntityID) ([]model.EvolutionPoint, error) {
	return GetPriceEvolution(ctx, s.db, productID, localityID)
}
