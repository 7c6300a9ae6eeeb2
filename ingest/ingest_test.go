package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supply-chain-risk/database"
	"supply-chain-risk/models"
	"supply-chain-risk/testutil"
)

func TestNormalizeColumn(t *testing.T) {
	tests := map[string]string{
		"Days for shipping (real)":      "days_for_shipping_real",
		"Days for shipment (scheduled)": "days_for_shipment_scheduled",
		"order date (DateOrders)":       "order_date_dateorders",
		"Order Item Product Price":      "order_item_product_price",
		"Customer Fname.":               "customer_fname",
		"  Type ":                       "type",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeColumn(in), in)
	}
}

func TestNormalizeHeader_Collisions(t *testing.T) {
	got := normalizeHeader([]string{"Order Id", "Order.Id", "", "order id"})
	assert.Equal(t, []string{"order_id", "orderid", "column_3", "order_id_2"}, got)
}

func TestLogisticsLoader_Load(t *testing.T) {
	db := testutil.NewTestDB(t)
	body := testutil.LogisticsCSV([][]string{
		testutil.LogisticsRow(1, "COMPLETE", "3", "2", "1/5/2017 10:30"),
		testutil.LogisticsRow(2, "CANCELED", "", "4", "12/31/2020 08:00"),
	})
	path := testutil.WriteFile(t, "logistics.csv", body)

	res, err := NewLogisticsLoader(db, "utf-8").Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Loaded)
	assert.Contains(t, res.Columns, "days_for_shipping_real")
	assert.Contains(t, res.Columns, "order_date_dateorders")

	var rows []map[string]interface{}
	require.NoError(t, db.Table(models.BronzeLogisticsTable).Order("order_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "CANCELED", rows[1]["order_status"])
	assert.Nil(t, rows[1]["days_for_shipping_real"], "empty cells load as NULL")
}

func TestLogisticsLoader_DecodesLatin1(t *testing.T) {
	db := testutil.NewTestDB(t)
	// "Cañas" encoded as ISO-8859-1 (0xF1 for ñ)
	body := []byte("Order Id,Category Name\n1,Ca\xf1as\n")
	path := testutil.WriteFile(t, "latin1.csv", body)

	_, err := NewLogisticsLoader(db, "iso-8859-1").Load(path)
	require.NoError(t, err)

	var name string
	require.NoError(t, db.Table(models.BronzeLogisticsTable).Select("category_name").Row().Scan(&name))
	assert.Equal(t, "Cañas", name)
}

func TestLogisticsLoader_MissingFileLeavesTableUntouched(t *testing.T) {
	db := testutil.NewTestDB(t)
	path := testutil.WriteFile(t, "logistics.csv", testutil.LogisticsCSV([][]string{
		testutil.LogisticsRow(1, "COMPLETE", "3", "2", "1/5/2017"),
	}))
	loader := NewLogisticsLoader(db, "utf-8")
	_, err := loader.Load(path)
	require.NoError(t, err)

	_, err = loader.Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, ErrSourceNotFound)

	n, err := database.CountRows(db, models.BronzeLogisticsTable)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLogisticsLoader_UnknownEncoding(t *testing.T) {
	db := testutil.NewTestDB(t)
	_, err := NewLogisticsLoader(db, "klingon").Load("whatever.csv")
	require.Error(t, err)
}

func TestNormalizeNewsDate(t *testing.T) {
	for in, want := range map[string]string{
		"2022-09-23":           "2022-09-23",
		"2017-01-05T00:00:00Z": "2017-01-05",
		"2018-05-26 13:45:00":  "2018-05-26",
	} {
		got, err := NormalizeNewsDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := NormalizeNewsDate("26/05/2018")
	assert.Error(t, err)
}

func TestNewsLoader_FiltersAndSkips(t *testing.T) {
	db := testutil.NewTestDB(t)
	corpus := `{"headline":"Markets rally","category":"BUSINESS","date":"2017-01-05"}
{"headline":"Celebrity news","category":"ENTERTAINMENT","date":"2017-01-05"}
{"headline":"broken line"
{"headline":"Chip shortage","category":"TECH","date":"2017-01-06"}

{"headline":"War escalates","category":"WORLD NEWS","date":"not a date"}
{"headline":"Port strike","category":"WORLD NEWS","date":"2017-01-06"}
`
	path := testutil.WriteFile(t, "news.json", []byte(corpus))

	res, err := NewNewsLoader(db, []string{"BUSINESS", "WORLD NEWS", "TECH"}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Read)
	assert.Equal(t, 3, res.Loaded)
	assert.Equal(t, 2, res.Skipped)

	var articles []models.NewsArticle
	require.NoError(t, db.Order("date, headline").Find(&articles).Error)
	require.Len(t, articles, 3)
	assert.Equal(t, "Markets rally", articles[0].Headline)
	assert.Equal(t, "2017-01-05", articles[0].Date)
	for _, a := range articles {
		assert.NotEmpty(t, a.ID)
	}
}

func TestNewsLoader_StableIDsAcrossRuns(t *testing.T) {
	db := testutil.NewTestDB(t)
	corpus := `{"headline":"Same words","category":"BUSINESS","date":"2017-01-05"}
{"headline":"Same words","category":"BUSINESS","date":"2017-02-05"}
`
	path := testutil.WriteFile(t, "news.json", []byte(corpus))
	loader := NewNewsLoader(db, []string{"BUSINESS"})

	_, err := loader.Load(path)
	require.NoError(t, err)
	var first []models.NewsArticle
	require.NoError(t, db.Order("id").Find(&first).Error)

	_, err = loader.Load(path)
	require.NoError(t, err)
	var second []models.NewsArticle
	require.NoError(t, db.Order("id").Find(&second).Error)

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0].ID, first[1].ID, "repeated headlines keep distinct identifiers")
}

func TestNewsLoader_MissingFile(t *testing.T) {
	db := testutil.NewTestDB(t)
	_, err := NewNewsLoader(db, []string{"TECH"}).Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, ErrSourceNotFound)
	assert.False(t, db.Migrator().HasTable(models.BronzeNewsTable))
}
