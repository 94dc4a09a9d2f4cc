// Package ingesttest provides an in-memory store seeded with a small,
// known dataset.
package ingesttest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"ecom-agent/internal/ingest"
	"ecom-agent/internal/models"
)

// Known aggregates of Dataset
const (
	TotalSales      = 600.0
	ProductCount    = 3
	HighestCPCItem  = int64(2)
	HighestCPCValue = 5.0
	OverallRoAS     = 3.67
)

// Dataset returns the fixture rows
func Dataset() *ingest.Dataset {
	snapshot := time.Date(2025, 6, 4, 8, 50, 7, 0, time.UTC)
	return &ingest.Dataset{
		AdSales: []models.AdSalesRecord{
			{Date: "2025-06-01", ItemID: 1, AdSales: 100, Impressions: 1000, AdSpend: 20, Clicks: 10, UnitsSold: 5},
			{Date: "2025-06-01", ItemID: 2, AdSales: 50, Impressions: 500, AdSpend: 25, Clicks: 5, UnitsSold: 2},
			{Date: "2025-06-02", ItemID: 1, AdSales: 150, Impressions: 1500, AdSpend: 30, Clicks: 20, UnitsSold: 7},
			{Date: "2025-06-02", ItemID: 3, AdSales: 0, Impressions: 200, AdSpend: 0, Clicks: 0, UnitsSold: 0},
			{Date: "2025-06-02", ItemID: 2, AdSales: 30, Impressions: 300, AdSpend: 15, Clicks: 3, UnitsSold: 1},
		},
		TotalSales: []models.TotalSalesRecord{
			{Date: "2025-06-01", ItemID: 1, TotalSales: 200, TotalUnitsOrdered: 10},
			{Date: "2025-06-01", ItemID: 2, TotalSales: 80, TotalUnitsOrdered: 4},
			{Date: "2025-06-02", ItemID: 1, TotalSales: 300, TotalUnitsOrdered: 15},
			{Date: "2025-06-02", ItemID: 3, TotalSales: 20, TotalUnitsOrdered: 1},
		},
		Eligibility: []models.EligibilityRecord{
			{EligibilityDatetimeUTC: snapshot, ItemID: 1, Eligibility: true},
			{EligibilityDatetimeUTC: snapshot, ItemID: 2, Eligibility: false,
				Message: sql.NullString{String: "This product's cost does not allow us to meet pricing expectations.", Valid: true}},
			{EligibilityDatetimeUTC: snapshot, ItemID: 3, Eligibility: true},
		},
	}
}

// Open returns an in-memory SQLite store loaded with ds, or with Dataset
// when ds is nil. The connection is closed when the test ends.
func Open(t testing.TB, ds *ingest.Dataset) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if ds == nil {
		ds = Dataset()
	}
	require.NoError(t, ingest.NewIngester(db).Load(context.Background(), ds))
	return db
}
