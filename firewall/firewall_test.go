package firewall

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supply-chain-risk/database"
	"supply-chain-risk/ingest"
	"supply-chain-risk/models"
	"supply-chain-risk/testutil"
)

func TestFilter_TwoRuleExample(t *testing.T) {
	rows := []Row{
		{"shipping_days": "3", "product_price": "100"},
		{"shipping_days": "-1", "product_price": "200"},
		{"shipping_days": "5", "product_price": "-50"},
		{"shipping_days": "0", "product_price": "150"},
	}
	preds := []Predicate{
		{Name: "shipping_days", Keep: func(r Row) (bool, error) {
			v, ok, err := r.Int("shipping_days")
			return ok && v >= 0, err
		}},
		{Name: "product_price", Keep: func(r Row) (bool, error) {
			v, ok, err := r.Int("product_price")
			return ok && v > 0, err
		}},
	}

	kept, dropped, err := Filter(rows, preds)
	require.NoError(t, err)
	assert.Len(t, kept, 2)
	assert.Equal(t, map[string]int{"shipping_days": 1, "product_price": 1}, dropped)
	for _, r := range kept {
		v, _, _ := r.Int("shipping_days")
		assert.GreaterOrEqual(t, v, int64(0))
	}
}

func TestRules_RetainIffPredicatesHold(t *testing.T) {
	actuals := []interface{}{nil, "-2", "-1", "0", "1", "6"}
	statuses := []interface{}{nil, "COMPLETE", "CANCELED", "PENDING", "canceled"}

	var rows []Row
	for _, a := range actuals {
		for _, s := range statuses {
			rows = append(rows, Row{ColActualDays: a, ColOrderStatus: s})
		}
	}

	kept, _, err := Filter(rows, Rules)
	require.NoError(t, err)

	keptSet := make(map[string]bool)
	for _, r := range kept {
		keptSet[fmt.Sprint(r[ColActualDays], "|", r[ColOrderStatus])] = true
	}
	for _, r := range rows {
		v, present, _ := r.Int(ColActualDays)
		want := present && v >= 0 && r[ColOrderStatus] != nil && r.String(ColOrderStatus) != StatusCanceled
		assert.Equal(t, want, keptSet[fmt.Sprint(r[ColActualDays], "|", r[ColOrderStatus])], "%v", r)
	}
}

func TestRules_MalformedValueFailsLoudly(t *testing.T) {
	for _, raw := range []string{"three", "0x1F", "0b11", "0o7", "1_000", "2.5"} {
		_, _, err := Filter([]Row{{ColActualDays: raw, ColOrderStatus: "COMPLETE"}}, Rules)
		require.ErrorIs(t, err, ErrMalformedColumn, raw)
	}
}

func TestRow_IntReadsDecimal(t *testing.T) {
	tests := map[string]int64{"010": 10, "08": 8, "0": 0, "-3": -3, "+4": 4, " 7 ": 7}
	for raw, want := range tests {
		v, ok, err := Row{ColActualDays: raw}.Int(ColActualDays)
		require.NoError(t, err, raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, v, raw)
	}

	v, ok, err := Row{ColActualDays: int64(5)}.Int(ColActualDays)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), v)
}

func TestRules_NullStatusDropped(t *testing.T) {
	kept, dropped, err := Filter([]Row{{ColActualDays: "2", ColOrderStatus: nil}}, Rules)
	require.NoError(t, err)
	assert.Empty(t, kept)
	assert.Equal(t, map[string]int{"not_canceled": 1}, dropped)
}

func TestProject(t *testing.T) {
	s, err := Project(Row{
		ColOrderID: "77", ColCategory: "Cleats", ColSegment: "Consumer", ColRegion: "Oceania",
		ColShippingMode: "First Class", ColOrderStatus: "COMPLETE",
		ColActualDays: "5", ColScheduledDays: "2", ColOrderDate: "1/5/2017 10:30",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), s.OrderID)
	assert.Equal(t, 3, s.DelayDays)
	assert.Equal(t, "", s.ShippingDate)

	_, err = Project(Row{ColOrderID: "1", ColActualDays: "5"})
	require.ErrorIs(t, err, ErrMalformedColumn, "missing scheduled days")
}

func loadBronze(t *testing.T, rows [][]string) *Firewall {
	t.Helper()
	db := testutil.NewTestDB(t)
	path := testutil.WriteFile(t, "logistics.csv", testutil.LogisticsCSV(rows))
	_, err := ingest.NewLogisticsLoader(db, "utf-8").Load(path)
	require.NoError(t, err)
	return New(db)
}

func TestFirewall_Run(t *testing.T) {
	fw := loadBronze(t, [][]string{
		testutil.LogisticsRow(1, "COMPLETE", "3", "2", "1/5/2017 10:30"),
		testutil.LogisticsRow(2, "CANCELED", "3", "2", "1/5/2017 11:00"),
		testutil.LogisticsRow(3, "PENDING", "-1", "2", "1/6/2017 09:00"),
		testutil.LogisticsRow(4, "COMPLETE", "", "2", "1/6/2017 09:00"),
		testutil.LogisticsRow(5, "CLOSED", "0", "4", "12/31/2020 23:59"),
	})

	res, err := fw.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Read)
	assert.Equal(t, 2, res.Retained)
	assert.Equal(t, 3, res.Dropped)
	assert.Equal(t, map[string]int{"actual_days_present": 1, "actual_days_non_negative": 1, "not_canceled": 1}, res.ByRule)

	var silver []models.SilverLogistics
	require.NoError(t, fw.db.Order("order_id").Find(&silver).Error)
	require.Len(t, silver, 2)
	assert.Equal(t, 1, silver[0].DelayDays)
	assert.Equal(t, -4, silver[1].DelayDays)
	assert.Equal(t, "12/31/2020 23:59", silver[1].OrderDate)
}

func TestFirewall_RunMalformedLeavesSilverUntouched(t *testing.T) {
	fw := loadBronze(t, [][]string{
		testutil.LogisticsRow(1, "COMPLETE", "3", "2", "1/5/2017"),
	})
	_, err := fw.Run(context.Background())
	require.NoError(t, err)

	path := testutil.WriteFile(t, "bad.csv", testutil.LogisticsCSV([][]string{
		testutil.LogisticsRow(1, "COMPLETE", "3", "2", "1/5/2017"),
		testutil.LogisticsRow(2, "COMPLETE", "soon", "2", "1/5/2017"),
	}))
	_, err = ingest.NewLogisticsLoader(fw.db, "utf-8").Load(path)
	require.NoError(t, err)

	_, err = fw.Run(context.Background())
	require.ErrorIs(t, err, ErrMalformedColumn)

	n, err := database.CountRows(fw.db, models.SilverLogisticsTable)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFirewall_RunNothingRetained(t *testing.T) {
	fw := loadBronze(t, [][]string{
		testutil.LogisticsRow(1, "CANCELED", "3", "2", "1/5/2017"),
	})
	res, err := fw.Run(context.Background())
	require.ErrorIs(t, err, models.ErrInsufficientData)
	assert.Equal(t, 1, res.Dropped)
	assert.False(t, fw.db.Migrator().HasTable(models.SilverLogisticsTable))
}
