// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"supply-chain-risk/config"
	"supply-chain-risk/database"
	"supply-chain-risk/models"
)

// NewTestDB opens a file-backed sqlite store in a temp dir that is closed
// when the test ends.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.Database{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "supply_chain.db"),
	}, logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// WriteFile writes body to name inside a fresh temp dir and returns the path.
func WriteFile(t *testing.T, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	return path
}

// SeedTable replaces table with rows of the given model type.
func SeedTable[T any](t *testing.T, db *gorm.DB, rows []T) {
	t.Helper()
	var zero T
	require.NoError(t, db.Migrator().DropTable(&zero))
	require.NoError(t, db.AutoMigrate(&zero))
	if len(rows) > 0 {
		require.NoError(t, db.CreateInBatches(rows, 200).Error)
	}
}

// Shipment returns a silver row with sensible defaults for the given order.
func Shipment(orderID int64, orderDate string, scheduled, actual int) models.SilverLogistics {
	return models.SilverLogistics{
		OrderID:         orderID,
		CategoryName:    "Cleats",
		CustomerSegment: "Consumer",
		OrderRegion:     "Western Europe",
		ShippingMode:    "Standard Class",
		OrderStatus:     "COMPLETE",
		ActualDays:      actual,
		ScheduledDays:   scheduled,
		DelayDays:       actual - scheduled,
		OrderDate:       orderDate,
		ShippingDate:    orderDate,
	}
}

// LogisticsCSV renders rows under the raw DataCo-style header.
func LogisticsCSV(rows [][]string) []byte {
	out := "Order Id,Category Name,Customer Segment,Order Region,Shipping Mode,Order Status," +
		"Days for shipping (real),Days for shipment (scheduled),order date (DateOrders),shipping date (DateOrders)\n"
	for _, r := range rows {
		for i, v := range r {
			if i > 0 {
				out += ","
			}
			out += v
		}
		out += "\n"
	}
	return []byte(out)
}

// LogisticsRow builds one raw CSV row.
func LogisticsRow(orderID int, status, actual, scheduled, orderDate string) []string {
	return []string{
		fmt.Sprint(orderID), "Cleats", "Consumer", "Western Europe", "Standard Class", status,
		actual, scheduled, orderDate, orderDate,
	}
}
