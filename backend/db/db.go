package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"pricemap/backend/mapengine"
	"pricemap/backend/model"
)

var ErrNotFound = errors.New("not found")

// mysqlTooManyConnections is ER_CON_COUNT_ERROR.
const mysqlTooManyConnections = 1040

const storeSummaryPriceLimit = 20

func GetPricesForMap(ctx context.Context, db *sql.DB, f model.Filters) ([]model.PriceObservation, error) {
	query, args := mapQuery(f)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Errorf("Error getting prices for map %q: %v", f.QueryKey(), err)
		return nil, classify(err)
	}
	defer rows.Close()

	prices := []model.PriceObservation{}
	for rows.Next() {
		var (
			p            model.PriceObservation
			id           string
			productID    string
			localityID   string
			lat, lon     sql.NullFloat64
			unitSymbol   sql.NullString
			unitName     sql.NullString
			categoryType sql.NullString
		)
		if err := rows.Scan(&id, &productID, &p.ProductName, &localityID, &p.LocalityName, &lat, &lon,
			&p.Price, &unitSymbol, &unitName, &p.Date, &p.CategoryName, &categoryType); err != nil {
			log.Errorf("Cannot scan a price row: %v", err)
			return nil, err
		}
		p.ID = model.EntityID(id)
		p.ProductID = model.EntityID(productID)
		p.LocalityID = model.EntityID(localityID)
		p.Latitude = nullFloat(lat)
		p.Longitude = nullFloat(lon)
		p.UnitSymbol = unitSymbol.String
		p.UnitName = unitName.String
		p.CategoryType = categoryType.String
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return prices, nil
}

// mapQuery builds the validated prices query. Id lists with a single entry
// compare with "=", longer ones use IN.
func mapQuery(f model.Filters) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`SELECT p.id, p.product_id, pr.name, p.locality_id, l.name, l.latitude, l.longitude,
		p.price, u.symbol, u.name, p.date, pc.name, pc.type
		FROM prices p
		JOIN products pr ON p.product_id = pr.id
		JOIN localities l ON p.locality_id = l.id
		JOIN units u ON p.unit_id = u.id
		JOIN product_categories pc ON pr.category_id = pc.id
		WHERE p.status = 'validated'`)
	args := []interface{}{}

	idFilter := func(column string, ids []model.EntityID) {
		ids = nonEmpty(ids)
		switch len(ids) {
		case 0:
			return
		case 1:
			sb.WriteString(" AND " + column + " = ?")
		default:
			sb.WriteString(" AND " + column + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")")
		}
		for _, id := range ids {
			args = append(args, string(id))
		}
	}
	idFilter("p.product_id", f.ProductIDs)
	idFilter("pr.category_id", f.CategoryIDs)
	idFilter("p.locality_id", f.LocalityIDs)

	if f.DateFrom != nil {
		sb.WriteString(" AND p.date >= ?")
		args = append(args, f.DateFrom.Format(time.DateOnly))
	}
	if f.DateTo != nil {
		sb.WriteString(" AND p.date <= ?")
		args = append(args, f.DateTo.Format(time.DateOnly))
	}
	if f.PriceMin.Valid {
		sb.WriteString(" AND p.price >= ?")
		args = append(args, f.PriceMin.Decimal.String())
	}
	if f.PriceMax.Valid {
		sb.WriteString(" AND p.price <= ?")
		args = append(args, f.PriceMax.Decimal.String())
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		sb.WriteString(" AND (pr.name LIKE ? OR l.name LIKE ? OR pc.name LIKE ?)")
		term := "%" + s + "%"
		args = append(args, term, term, term)
	}
	return sb.String(), args
}

func nonEmpty(ids []model.EntityID) []model.EntityID {
	out := make([]model.EntityID, 0, len(ids))
	for _, id := range ids {
		if s := strings.TrimSpace(string(id)); s != "" {
			out = append(out, model.EntityID(s))
		}
	}
	return out
}

func GetStores(ctx context.Context, db *sql.DB) ([]model.Place, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, address, city, latitude, longitude
		FROM stores ORDER BY name`)
	if err != nil {
		log.Errorf("Error getting stores: %v", err)
		return nil, classify(err)
	}
	defer rows.Close()

	stores := []model.Place{}
	for rows.Next() {
		var (
			id       string
			address  sql.NullString
			city     sql.NullString
			lat, lon sql.NullFloat64
			p        = model.Place{Kind: model.KindStore}
		)
		if err := rows.Scan(&id, &p.Name, &address, &city, &lat, &lon); err != nil {
			log.Errorf("Cannot scan a store row: %v", err)
			return nil, err
		}
		p.ID = model.EntityID(id)
		p.Address = address.String
		p.City = city.String
		p.Latitude = nullFloat(lat)
		p.Longitude = nullFloat(lon)
		stores = append(stores, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return stores, nil
}

// GetSuppliers returns suppliers with their own coordinates; the locality
// name serves as their city for the coordinate fallback.
func GetSuppliers(ctx context.Context, db *sql.DB) ([]model.Place, error) {
	rows, err := db.QueryContext(ctx, `SELECT s.id, s.name, s.address, l.name, s.latitude, s.longitude
		FROM suppliers s
		JOIN localities l ON s.locality_id = l.id
		ORDER BY s.name`)
	if err != nil {
		log.Errorf("Error getting suppliers: %v", err)
		return nil, classify(err)
	}
	defer rows.Close()

	suppliers := []model.Place{}
	for rows.Next() {
		var (
			id       string
			address  sql.NullString
			lat, lon sql.NullFloat64
			p        = model.Place{Kind: model.KindSupplier}
		)
		if err := rows.Scan(&id, &p.Name, &address, &p.City, &lat, &lon); err != nil {
			log.Errorf("Cannot scan a supplier row: %v", err)
			return nil, err
		}
		p.ID = model.EntityID(id)
		p.Address = address.String
		p.Latitude = nullFloat(lat)
		p.Longitude = nullFloat(lon)
		suppliers = append(suppliers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return suppliers, nil
}

func GetLocalitiesWithCoordinates(ctx context.Context, db *sql.DB) ([]model.Locality, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, latitude, longitude
		FROM localities
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL`)
	if err != nil {
		log.Errorf("Error getting localities: %v", err)
		return nil, classify(err)
	}
	defer rows.Close()

	localities := []model.Locality{}
	for rows.Next() {
		var (
			id string
			l  model.Locality
		)
		if err := rows.Scan(&id, &l.Name, &l.Latitude, &l.Longitude); err != nil {
			log.Errorf("Cannot scan a locality row: %v", err)
			return nil, err
		}
		l.ID = model.EntityID(id)
		localities = append(localities, l)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return localities, nil
}

// GetSupplierSummary returns the validated prices a supplier is linked to
// and its product availability.
func GetSupplierSummary(ctx context.Context, db *sql.DB, id model.EntityID) (*model.EntitySummary, error) {
	var name string
	err := db.QueryRowContext(ctx, "SELECT name FROM suppliers WHERE id = ?", string(id)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("supplier %s: %w", id, ErrNotFound)
	}
	if err != nil {
		log.Errorf("Error getting supplier %s: %v", id, err)
		return nil, classify(err)
	}

	prices, err := queryPrices(ctx, db, `SELECT p.id, sp.product_id, pr.name, p.locality_id, l.name,
		p.price, u.symbol, u.name, p.date, pc.name, pc.type
		FROM supplier_prices sp
		JOIN prices p ON sp.price_id = p.id
		JOIN products pr ON sp.product_id = pr.id
		JOIN product_categories pc ON pr.category_id = pc.id
		JOIN units u ON p.unit_id = u.id
		JOIN localities l ON p.locality_id = l.id
		WHERE sp.supplier_id = ? AND p.status = 'validated'
		ORDER BY p.date DESC`, string(id))
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT spa.product_id, pr.name, spa.is_available, spa.available_quantity,
		spa.quantity_unit, spa.expected_restock_date, spa.available_from, spa.available_until, spa.notes
		FROM supplier_product_availability spa
		JOIN products pr ON spa.product_id = pr.id
		WHERE spa.supplier_id = ?`, string(id))
	if err != nil {
		log.Errorf("Error getting availability of supplier %s: %v", id, err)
		return nil, classify(err)
	}
	defer rows.Close()

	availability := []model.AvailabilityRecord{}
	for rows.Next() {
		var (
			a                            model.AvailabilityRecord
			productID                    string
			quantity                     sql.NullFloat64
			unit, notes                  sql.NullString
			restock, fromDate, untilDate sql.NullTime
		)
		if err := rows.Scan(&productID, &a.ProductName, &a.IsAvailable, &quantity, &unit, &restock, &fromDate, &untilDate, &notes); err != nil {
			log.Errorf("Cannot scan an availability row: %v", err)
			return nil, err
		}
		a.ProductID = model.EntityID(productID)
		a.AvailableQuantity = nullFloat(quantity)
		a.QuantityUnit = unit.String
		a.ExpectedRestockDate = nullTime(restock)
		a.AvailableFrom = nullTime(fromDate)
		a.AvailableUntil = nullTime(untilDate)
		a.Notes = notes.String
		availability = append(availability, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return &model.EntitySummary{Prices: prices, Availability: availability}, nil
}

// GetStoreSummary returns the latest validated prices of the store's city.
// Stores carry no availability records.
func GetStoreSummary(ctx context.Context, db *sql.DB, id model.EntityID) (*model.EntitySummary, error) {
	var city sql.NullString
	err := db.QueryRowContext(ctx, "SELECT city FROM stores WHERE id = ?", string(id)).Scan(&city)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store %s: %w", id, ErrNotFound)
	}
	if err != nil {
		log.Errorf("Error getting store %s: %v", id, err)
		return nil, classify(err)
	}
	summary := &model.EntitySummary{Prices: []model.PriceObservation{}, Availability: []model.AvailabilityRecord{}}
	if !city.Valid || strings.TrimSpace(city.String) == "" {
		return summary, nil
	}

	prices, err := queryPrices(ctx, db, `SELECT p.id, p.product_id, pr.name, p.locality_id, l.name,
		p.price, u.symbol, u.name, p.date, pc.name, pc.type
		FROM prices p
		JOIN products pr ON p.product_id = pr.id
		JOIN product_categories pc ON pr.category_id = pc.id
		JOIN units u ON p.unit_id = u.id
		JOIN localities l ON p.locality_id = l.id
		WHERE l.name = ? AND p.status = 'validated'
		ORDER BY p.date DESC
		LIMIT ?`, city.String, storeSummaryPriceLimit)
	if err != nil {
		return nil, err
	}
	summary.Prices = prices
	return summary, nil
}

func queryPrices(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]model.PriceObservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Errorf("Error getting summary prices: %v", err)
		return nil, classify(err)
	}
	defer rows.Close()

	prices := []model.PriceObservation{}
	for rows.Next() {
		var (
			p                      model.PriceObservation
			id, productID, locID   string
			symbol, unit, category sql.NullString
		)
		if err := rows.Scan(&id, &productID, &p.ProductName, &locID, &p.LocalityName,
			&p.Price, &symbol, &unit, &p.Date, &p.CategoryName, &category); err != nil {
			log.Errorf("Cannot scan a summary price row: %v", err)
			return nil, err
		}
		p.ID = model.EntityID(id)
		p.ProductID = model.EntityID(productID)
		p.LocalityID = model.EntityID(locID)
		p.UnitSymbol = symbol.String
		p.UnitName = unit.String
		p.CategoryType = category.String
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return prices, nil
}

// GetPriceEvolution aggregates validated prices per day, oldest first.
func GetPriceEvolution(ctx context.Context, db *sql.DB, productID, localityID model.EntityID) ([]model.EvolutionPoint, error) {
	query := `SELECT p.date, AVG(p.price), COUNT(*), MIN(p.price), MAX(p.price)
		FROM prices p
		WHERE p.status = 'validated'`
	args := []interface{}{}
	if productID != "" {
		query += " AND p.product_id = ?"
		args = append(args, string(productID))
	}
	if localityID != "" {
		query += " AND p.locality_id = ?"
		args = append(args, string(localityID))
	}
	query += " GROUP BY p.date ORDER BY p.date ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Errorf("Error getting evolution of product %s at %s: %v", productID, localityID, err)
		return nil, classify(err)
	}
	defer rows.Close()

	points := []model.EvolutionPoint{}
	for rows.Next() {
		var (
			pt                   model.EvolutionPoint
			avg, lowest, highest decimal.Decimal
		)
		if err := rows.Scan(&pt.Date, &avg, &pt.PriceCount, &lowest, &highest); err != nil {
			log.Errorf("Cannot scan an evolution row: %v", err)
			return nil, err
		}
		pt.AvgPrice = avg.InexactFloat64()
		pt.MinPrice = lowest.InexactFloat64()
		pt.MaxPrice = highest.InexactFloat64()
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return points, nil
}

// classify marks connection exhaustion as throttling so the map can tell
// the user to wait rather than to check the server.
func classify(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlTooManyConnections {
		return fmt.Errorf("%w: %v", mapengine.ErrRateLimited, err)
	}
	return err
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
