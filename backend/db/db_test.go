package db

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jknair0/beforeeach"
	"github.com/shopspring/decimal"

	"pricemap/backend/mapengine"
	"pricemap/backend/model"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func date(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func fptr(v float64) *float64 {
	return &v
}

func TestMapQuery(t *testing.T) {
	from := date("2024-03-01")
	testCases := []struct {
		name       string
		filters    model.Filters
		expectSQL  []string
		expectArgs []interface{}
	}{
		{
			name:       "No filters",
			expectSQL:  []string{"WHERE p.status = 'validated'"},
			expectArgs: []interface{}{},
		}, {
			name:       "Single product",
			filters:    model.Filters{ProductIDs: []model.EntityID{"4"}},
			expectSQL:  []string{"AND p.product_id = ?"},
			expectArgs: []interface{}{"4"},
		}, {
			name:       "Several categories and localities",
			filters:    model.Filters{CategoryIDs: []model.EntityID{"1", " 2 ", ""}, LocalityIDs: []model.EntityID{"7", "8", "9"}},
			expectSQL:  []string{"AND pr.category_id IN (?,?)", "AND p.locality_id IN (?,?,?)"},
			expectArgs: []interface{}{"1", "2", "7", "8", "9"},
		}, {
			name: "Range and search",
			filters: model.Filters{
				DateFrom: &from,
				PriceMin: decimal.NewNullDecimal(decimal.NewFromInt(500)),
				PriceMax: decimal.NewNullDecimal(decimal.RequireFromString("1500.5")),
				Search:   " mil ",
			},
			expectSQL:  []string{"AND p.date >= ?", "AND p.price >= ?", "AND p.price <= ?", "(pr.name LIKE ? OR l.name LIKE ? OR pc.name LIKE ?)"},
			expectArgs: []interface{}{"2024-03-01", "500", "1500.5", "%mil%", "%mil%", "%mil%"},
		},
	}

	for _, testCase := range testCases {
		query, args := mapQuery(testCase.filters)
		for _, fragment := range testCase.expectSQL {
			if !strings.Contains(query, fragment) {
				t.Errorf("%s: expected query to contain %q, got %s", testCase.name, fragment, query)
			}
		}
		if strings.Contains(query, "p.date <= ?") {
			t.Errorf("%s: unexpected upper date bound", testCase.name)
		}
		if !reflect.DeepEqual(args, testCase.expectArgs) {
			t.Errorf("%s: expected args %v, got %v", testCase.name, testCase.expectArgs, args)
		}
	}
}

func TestGetPricesForMap(t *testing.T) {
	it(func() {
		columns := []string{"id", "product_id", "product_name", "locality_id", "locality_name", "latitude", "longitude",
			"price", "unit_symbol", "unit_name", "date", "category_name", "category_type"}
		mock.ExpectQuery("SELECT p.id, (.+) FROM prices p (.+) WHERE p.status = 'validated' AND p.product_id IN \\((.+)\\)").
			WithArgs("1", "2").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(10), int64(1), "Mil", int64(7), "Thiès", 14.8, -16.9, "1500.00", "kg", "kilogramme", date("2024-03-02"), "Céréales", "grain").
				AddRow(int64(11), int64(2), "Maïs", int64(8), "Nowhere", nil, nil, "800", nil, nil, date("2024-03-03"), "Céréales", nil))

		prices, err := GetPricesForMap(context.Background(), db, model.Filters{ProductIDs: []model.EntityID{"1", "2"}})
		if err != nil {
			t.Fatalf("GetPricesForMap: unexpected error %v", err)
		}
		if len(prices) != 2 {
			t.Fatalf("GetPricesForMap: expected 2 prices, got %d", len(prices))
		}
		first := prices[0]
		if first.ID != "10" || first.ProductID != "1" || first.LocalityName != "Thiès" || !first.Price.Equal(decimal.NewFromInt(1500)) {
			t.Errorf("GetPricesForMap: unexpected first price %+v", first)
		}
		if lat, lon, ok := first.Position(); !ok || lat != 14.8 || lon != -16.9 {
			t.Errorf("GetPricesForMap: expected position 14.8,-16.9, got %v,%v,%v", lat, lon, ok)
		}
		if _, _, ok := prices[1].Position(); ok {
			t.Errorf("GetPricesForMap: expected second price without position")
		}
		if prices[1].UnitSymbol != "" || !prices[1].Date.Equal(date("2024-03-03")) {
			t.Errorf("GetPricesForMap: unexpected second price %+v", prices[1])
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("GetPricesForMap: %v", err)
		}
	})
}

func TestGetPlaces(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT id, name, address, city, latitude, longitude FROM stores ORDER BY name").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "city", "latitude", "longitude"}).
				AddRow(int64(1), "Boutique Centrale", "Rue 10", "Thiès", nil, nil).
				AddRow(int64(2), "Marché Sandaga", nil, "Dakar", 14.67, -17.43))
		stores, err := GetStores(context.Background(), db)
		if err != nil {
			t.Fatalf("GetStores: unexpected error %v", err)
		}
		if len(stores) != 2 || stores[0].Kind != model.KindStore || stores[0].City != "Thiès" || stores[0].Latitude != nil {
			t.Errorf("GetStores: unexpected stores %+v", stores)
		}
		if !reflect.DeepEqual(stores[1].Latitude, fptr(14.67)) || stores[1].Address != "" {
			t.Errorf("GetStores: unexpected second store %+v", stores[1])
		}

		mock.ExpectQuery("FROM suppliers s JOIN localities l ON s.locality_id = l.id ORDER BY s.name").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "locality_name", "latitude", "longitude"}).
				AddRow(int64(3), "Coop Kaolack", "Route nationale", "Kaolack", 14.15, -16.07))
		suppliers, err := GetSuppliers(context.Background(), db)
		if err != nil {
			t.Fatalf("GetSuppliers: unexpected error %v", err)
		}
		if len(suppliers) != 1 || suppliers[0].Ref() != (model.EntityRef{Kind: model.KindSupplier, ID: "3"}) || suppliers[0].City != "Kaolack" {
			t.Errorf("GetSuppliers: unexpected suppliers %+v", suppliers)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("GetPlaces: %v", err)
		}
	})
}

func TestGetLocalitiesWithCoordinates(t *testing.T) {
	it(func() {
		mock.ExpectQuery("FROM localities WHERE latitude IS NOT NULL AND longitude IS NOT NULL").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "latitude", "longitude"}).
				AddRow(int64(7), "Thiès", 14.8, -16.9))
		localities, err := GetLocalitiesWithCoordinates(context.Background(), db)
		if err != nil {
			t.Fatalf("GetLocalitiesWithCoordinates: unexpected error %v", err)
		}
		expected := []model.Locality{{ID: "7", Name: "Thiès", Latitude: 14.8, Longitude: -16.9}}
		if !reflect.DeepEqual(localities, expected) {
			t.Errorf("GetLocalitiesWithCoordinates: expected %v, got %v", expected, localities)
		}
	})
}

func TestGetSupplierSummary(t *testing.T) {
	it(func() {
		testCases := []struct {
			name        string
			exists      bool
			expectError error
		}{
			{name: "Existing supplier", exists: true},
			{name: "Unknown supplier", exists: false, expectError: ErrNotFound},
		}

		priceColumns := []string{"id", "product_id", "product_name", "locality_id", "locality_name",
			"price", "unit_symbol", "unit_name", "date", "category_name", "category_type"}
		availabilityColumns := []string{"product_id", "product_name", "is_available", "available_quantity",
			"quantity_unit", "expected_restock_date", "available_from", "available_until", "notes"}

		for _, testCase := range testCases {
			setUp()
			nameRows := sqlmock.NewRows([]string{"name"})
			if testCase.exists {
				nameRows.AddRow("Coop Kaolack")
			}
			mock.ExpectQuery("SELECT name FROM suppliers WHERE id = (.+)").WithArgs("3").WillReturnRows(nameRows)
			if testCase.exists {
				mock.ExpectQuery("FROM supplier_prices sp (.+) WHERE sp.supplier_id = (.+) AND p.status = 'validated'").
					WithArgs("3").
					WillReturnRows(sqlmock.NewRows(priceColumns).
						AddRow(int64(10), int64(1), "Mil", int64(7), "Kaolack", "350", "kg", "kilogramme", date("2024-03-02"), "Céréales", "grain"))
				mock.ExpectQuery("FROM supplier_product_availability spa (.+) WHERE spa.supplier_id = (.+)").
					WithArgs("3").
					WillReturnRows(sqlmock.NewRows(availabilityColumns).
						AddRow(int64(1), "Mil", int64(1), 120.5, "kg", nil, date("2024-03-01"), nil, "Récolte récente").
						AddRow(int64(2), "Maïs", int64(0), nil, nil, date("2024-04-01"), nil, nil, nil))
			}

			summary, err := GetSupplierSummary(context.Background(), db, "3")
			if testCase.expectError != nil {
				if !errors.Is(err, testCase.expectError) {
					t.Errorf("%s: expected error %v, got %v", testCase.name, testCase.expectError, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("%s: unexpected error %v", testCase.name, err)
			}
			if len(summary.Prices) != 1 || summary.Prices[0].ProductName != "Mil" || !summary.Prices[0].Price.Equal(decimal.NewFromInt(350)) {
				t.Errorf("%s: unexpected prices %+v", testCase.name, summary.Prices)
			}
			if len(summary.Availability) != 2 || !summary.AnyAvailable() {
				t.Errorf("%s: unexpected availability %+v", testCase.name, summary.Availability)
			}
			a := summary.Availability[0]
			if !reflect.DeepEqual(a.AvailableQuantity, fptr(120.5)) || a.AvailableFrom == nil || a.ExpectedRestockDate != nil || a.Notes != "Récolte récente" {
				t.Errorf("%s: unexpected first availability %+v", testCase.name, a)
			}
			if summary.Availability[1].IsAvailable || summary.Availability[1].ExpectedRestockDate == nil {
				t.Errorf("%s: unexpected second availability %+v", testCase.name, summary.Availability[1])
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("%s: %v", testCase.name, err)
			}
		}
	})
}

func TestGetStoreSummary(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT city FROM stores WHERE id = (.+)").WithArgs("1").
			WillReturnRows(sqlmock.NewRows([]string{"city"}).AddRow("Thiès"))
		mock.ExpectQuery("FROM prices p (.+) WHERE l.name = (.+) AND p.status = 'validated' ORDER BY p.date DESC LIMIT (.+)").
			WithArgs("Thiès", storeSummaryPriceLimit).
			WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "product_name", "locality_id", "locality_name",
				"price", "unit_symbol", "unit_name", "date", "category_name", "category_type"}).
				AddRow(int64(12), int64(1), "Mil", int64(7), "Thiès", "400", "kg", "kilogramme", date("2024-03-05"), "Céréales", nil))

		summary, err := GetStoreSummary(context.Background(), db, "1")
		if err != nil {
			t.Fatalf("GetStoreSummary: unexpected error %v", err)
		}
		if len(summary.Prices) != 1 || len(summary.Availability) != 0 {
			t.Errorf("GetStoreSummary: unexpected summary %+v", summary)
		}

		mock.ExpectQuery("SELECT city FROM stores WHERE id = (.+)").WithArgs("2").
			WillReturnRows(sqlmock.NewRows([]string{"city"}).AddRow(nil))
		summary, err = GetStoreSummary(context.Background(), db, "2")
		if err != nil || len(summary.Prices) != 0 {
			t.Errorf("GetStoreSummary: expected an empty summary without city, got %+v, %v", summary, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("GetStoreSummary: %v", err)
		}
	})
}

func TestGetPriceEvolution(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT p.date, AVG\\(p.price\\), COUNT\\(\\*\\), MIN\\(p.price\\), MAX\\(p.price\\) FROM prices p WHERE p.status = 'validated' AND p.product_id = (.+) AND p.locality_id = (.+) GROUP BY p.date ORDER BY p.date ASC").
			WithArgs("1", "7").
			WillReturnRows(sqlmock.NewRows([]string{"date", "avg_price", "price_count", "min_price", "max_price"}).
				AddRow(date("2024-03-01"), "1250.5000", int64(2), "1000.00", "1501.00").
				AddRow(date("2024-03-02"), "1300.0000", int64(1), "1300.00", "1300.00"))

		points, err := GetPriceEvolution(context.Background(), db, "1", "7")
		if err != nil {
			t.Fatalf("GetPriceEvolution: unexpected error %v", err)
		}
		expected := []model.EvolutionPoint{
			{Date: date("2024-03-01"), AvgPrice: 1250.5, PriceCount: 2, MinPrice: 1000, MaxPrice: 1501},
			{Date: date("2024-03-02"), AvgPrice: 1300, PriceCount: 1, MinPrice: 1300, MaxPrice: 1300},
		}
		if !reflect.DeepEqual(points, expected) {
			t.Errorf("GetPriceEvolution: expected %v, got %v", expected, points)
		}

		mock.ExpectQuery("FROM prices p WHERE p.status = 'validated' GROUP BY p.date").
			WillReturnRows(sqlmock.NewRows([]string{"date", "avg_price", "price_count", "min_price", "max_price"}))
		points, err = GetPriceEvolution(context.Background(), db, "", "")
		if err != nil || len(points) != 0 {
			t.Errorf("GetPriceEvolution: expected no points, got %v, %v", points, err)
		}
	})
}

func TestTooManyConnectionsIsRateLimited(t *testing.T) {
	it(func() {
		mock.ExpectQuery("FROM stores").WillReturnError(&mysql.MySQLError{Number: 1040, Message: "Too many connections"})
		_, err := GetStores(context.Background(), db)
		if !errors.Is(err, mapengine.ErrRateLimited) {
			t.Errorf("GetStores: expected a rate limited error, got %v", err)
		}
		if mapengine.ClassifyError(err) != mapengine.ErrorRateLimited {
			t.Errorf("GetStores: expected rate limited classification")
		}

		mock.ExpectQuery("FROM suppliers").WillReturnError(sql.ErrConnDone)
		_, err = GetSuppliers(context.Background(), db)
		if errors.Is(err, mapengine.ErrRateLimited) || !errors.Is(err, sql.ErrConnDone) {
			t.Errorf("GetSuppliers: unexpected error %v", err)
		}
	})
}

func TestSourceSummaryDispatch(t *testing.T) {
	it(func() {
		src := NewSource(db)
		if _, err := src.FetchEntitySummary(context.Background(), model.EntityRef{Kind: model.KindPrice, ID: "1"}); err == nil {
			t.Errorf("FetchEntitySummary: expected an error for a price ref")
		}
		mock.ExpectQuery("SELECT city FROM stores WHERE id = (.+)").WithArgs("5").
			WillReturnRows(sqlmock.NewRows([]string{"city"}))
		_, err := src.FetchEntitySummary(context.Background(), model.EntityRef{Kind: model.KindStore, ID: "5"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("FetchEntitySummary: expected not found, got %v", err)
		}
	})
}

var _ mapengine.Source = (*Source)(nil)
