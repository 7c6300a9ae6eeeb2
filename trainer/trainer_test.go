package trainer

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supply-chain-risk/config"
	"supply-chain-risk/models"
	"supply-chain-risk/testutil"
)

var (
	testCategories = []string{"Cleats", "Fishing", "Golf"}
	testSegments   = []string{"Consumer", "Corporate", "Home Office"}
	testRegions    = []string{"Western Europe", "Central America"}
	testModes      = []string{"Standard Class", "Second Class", "First Class", "Same Day"}
	testScheduled  = []int{4, 2, 1, 0}
)

// goldRows builds n deterministic gold rows whose delay depends on the
// shipping mode and the daily risk.
func goldRows(n int) []models.GoldRecord {
	rows := make([]models.GoldRecord, n)
	for i := range rows {
		mode := i % len(testModes)
		risk := float64(i%10) / 10
		delay := mode - 1
		if risk >= 0.7 {
			delay++
		}
		s := testutil.Shipment(int64(i+1), "1/5/2017 10:00", testScheduled[mode], testScheduled[mode]+delay)
		s.CategoryName = testCategories[i%len(testCategories)]
		s.CustomerSegment = testSegments[(i/3)%len(testSegments)]
		s.OrderRegion = testRegions[i%len(testRegions)]
		s.ShippingMode = testModes[mode]
		rows[i] = models.GoldRecord{SilverLogistics: s, DailyRiskScore: risk}
	}
	return rows
}

func testModelConfig(t *testing.T) config.Model {
	cfg := config.Default().Model
	cfg.Path = filepath.Join(t.TempDir(), "model.json")
	return cfg
}

func TestFitSchema_ColumnOrderAndReferenceLevel(t *testing.T) {
	rows := []models.GoldRecord{
		{SilverLogistics: models.SilverLogistics{CategoryName: "B", CustomerSegment: "Corporate", OrderRegion: "X", ShippingMode: "Standard Class"}},
		{SilverLogistics: models.SilverLogistics{CategoryName: "A", CustomerSegment: "Consumer", OrderRegion: "X", ShippingMode: "Second Class"}},
		{SilverLogistics: models.SilverLogistics{CategoryName: "B", CustomerSegment: "Consumer", OrderRegion: "X", ShippingMode: "Same Day"}},
	}

	s := FitSchema(rows)
	assert.Equal(t, []string{
		"scheduled_days",
		"daily_risk_score",
		"category_name_B",
		"customer_segment_Corporate",
		"shipping_mode_Second Class",
		"shipping_mode_Standard Class",
	}, s.Columns)
	assert.Equal(t, SchemaVersion, s.Version)
	require.NoError(t, s.Validate())

	again := FitSchema([]models.GoldRecord{rows[2], rows[0], rows[1]})
	assert.Equal(t, s.Fingerprint, again.Fingerprint)
}

func TestSchemaRow_AtMostOneIndicatorPerField(t *testing.T) {
	rows := goldRows(48)
	s := FitSchema(rows)

	check := func(row []float64, cat map[string]string) {
		for _, f := range CategoricalFields {
			set := 0
			for i, c := range s.Columns {
				if strings.HasPrefix(c, f+"_") && row[i] == 1 {
					set++
				}
			}
			assert.LessOrEqual(t, set, 1, "field %s", f)
			if s.Has(IndicatorColumn(f, cat[f])) {
				assert.Equal(t, 1, set, "field %s level %q", f, cat[f])
			} else {
				assert.Zero(t, set, "field %s level %q", f, cat[f])
			}
		}
	}

	for _, g := range rows {
		num, cat := Observation(g)
		row := s.Row(num, cat)
		require.Len(t, row, s.Width())
		assert.Equal(t, float64(g.ScheduledDays), row[0])
		assert.Equal(t, g.DailyRiskScore, row[1])
		check(row, cat)
	}

	unseen := map[string]string{
		FieldCategory:     "Other",
		FieldSegment:      "Consumer", // reference level
		FieldRegion:       "Antarctica",
		FieldShippingMode: "Teleport",
	}
	row := s.Row(map[string]float64{FieldScheduledDays: 3, FieldDailyRisk: 0.4}, unseen)
	check(row, unseen)
	var ones float64
	for _, v := range row[len(NumericFields):] {
		ones += v
	}
	assert.Zero(t, ones)
}

func TestSchemaValidate(t *testing.T) {
	s := NewSchema([]string{FieldScheduledDays, FieldDailyRisk, "category_name_Golf"})
	require.NoError(t, s.Validate())

	tampered := *s
	tampered.Columns = append([]string{}, s.Columns...)
	tampered.Columns[2] = "category_name_Fishing"
	assert.ErrorIs(t, tampered.Validate(), ErrSchemaMismatch)

	old := *s
	old.Version = SchemaVersion + 1
	assert.ErrorIs(t, old.Validate(), ErrSchemaMismatch)

	assert.ErrorIs(t, NewSchema([]string{"category_name_Golf"}).Validate(), ErrSchemaMismatch)
	assert.ErrorIs(t, NewSchema([]string{FieldScheduledDays, FieldDailyRisk, FieldDailyRisk}).Validate(), ErrSchemaMismatch)
}

func TestSplit(t *testing.T) {
	train, test := Split(100, 0.2, 42)
	assert.Len(t, test, 20)
	assert.Len(t, train, 80)

	train2, test2 := Split(100, 0.2, 42)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	all := append(append([]int{}, train...), test...)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(t, i, v)
	}

	_, test = Split(10, 0.25, 1)
	assert.Len(t, test, 3)

	_, other := Split(100, 0.2, 7)
	assert.NotEqual(t, test2, other)
}

type funcModel func(x []float64) float64

func (f funcModel) Predict(x []float64) float64 { return f(x) }
func (funcModel) Width() int                     { return 1 }
func (funcModel) Importances() []float64         { return []float64{1} }

func TestEvaluate(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{2, 4, 6, 8}

	perfect := Evaluate(funcModel(func(x []float64) float64 { return 2 * x[0] }), x, y)
	assert.InDelta(t, 0, perfect.MAE, 1e-12)
	assert.InDelta(t, 1, perfect.R2, 1e-12)

	off := Evaluate(funcModel(func(x []float64) float64 { return 2*x[0] + 1 }), x, y)
	assert.InDelta(t, 1, off.MAE, 1e-12)

	flat := Evaluate(funcModel(func([]float64) float64 { return 3 }), x, []float64{3, 3, 3, 3})
	assert.Zero(t, flat.MAE)
	assert.False(t, math.IsNaN(flat.R2))
	assert.Zero(t, flat.R2)

	assert.Equal(t, Metrics{}, Evaluate(funcModel(nil), nil, nil))
}

func TestFitLinear_RecoversCoefficients(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 60; i++ {
		a, b := float64(i%7), float64((i*3)%5)
		x = append(x, []float64{a, b})
		y = append(y, 1+2*a-3*b)
	}

	m, err := FitLinear(x, y, 1e-9)
	require.NoError(t, err)
	assert.InDelta(t, 1, m.Intercept, 1e-4)
	assert.InDelta(t, 2, m.Coef[0], 1e-4)
	assert.InDelta(t, -3, m.Coef[1], 1e-4)
	assert.InDelta(t, 1+2*3-3*4, m.Predict([]float64{3, 4}), 1e-4)
	assert.Equal(t, 2, m.Width())
	assert.Greater(t, m.Importances()[1], m.Importances()[0])
}

func TestFitLinear_RejectsRaggedInput(t *testing.T) {
	_, err := FitLinear([][]float64{{1, 2}, {3}}, []float64{1, 2}, 1)
	assert.Error(t, err)
	_, err = FitLinear(nil, nil, 1)
	assert.Error(t, err)
}

func TestDefaultGBTParams(t *testing.T) {
	assert.Equal(t, GBTParams{Trees: 100, LearningRate: 0.1, MaxDepth: 6, MinLeaf: 20, Bins: 64}, DefaultGBTParams())
}

func TestFitGBT_LearnsStepFunction(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 200; i++ {
		a, b := float64(i%2), float64(i%10)/10
		x = append(x, []float64{a, b})
		y = append(y, 5*a+b)
	}

	m, err := FitGBT(x, y, GBTParams{Trees: 50, LearningRate: 0.3, MaxDepth: 3, MinLeaf: 2, Bins: 16})
	require.NoError(t, err)
	require.Len(t, m.Trees, 50)
	assert.Equal(t, 2, m.Width())

	metrics := Evaluate(m, x, y)
	assert.Less(t, metrics.MAE, 0.1)
	assert.Greater(t, metrics.R2, 0.95)

	imp := m.Importances()
	assert.Greater(t, imp[0], imp[1])
}

func TestFitGBT_ConstantTargetIsSingleLeaf(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	y := []float64{7, 7, 7, 7, 7, 7}

	m, err := FitGBT(x, y, GBTParams{Trees: 3, LearningRate: 0.1, MaxDepth: 3, MinLeaf: 1, Bins: 8})
	require.NoError(t, err)
	for _, tree := range m.Trees {
		assert.Len(t, tree.Nodes, 1)
	}
	assert.InDelta(t, 7, m.Predict([]float64{100}), 1e-12)
}

func TestFit_InsufficientData(t *testing.T) {
	tr := New(nil, testModelConfig(t))
	_, err := tr.Fit(goldRows(5))
	require.ErrorIs(t, err, models.ErrInsufficientData)

	_, err = tr.Fit(nil)
	require.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestFit_BothEstimatorsEvaluated(t *testing.T) {
	for _, est := range []string{EstimatorGBT, EstimatorLinear} {
		t.Run(est, func(t *testing.T) {
			cfg := testModelConfig(t)
			cfg.Estimator = est
			tr := New(nil, cfg)
			tr.SetGBTParams(GBTParams{Trees: 20, LearningRate: 0.2, MaxDepth: 3, MinLeaf: 2, Bins: 16})

			a, err := tr.Fit(goldRows(120))
			require.NoError(t, err)
			require.NoError(t, a.Validate())

			assert.Equal(t, est, a.Estimator)
			assert.Contains(t, a.Metrics, EstimatorGBT)
			assert.Contains(t, a.Metrics, EstimatorLinear)
			assert.Equal(t, 96, a.TrainRows)
			assert.Equal(t, 24, a.TestRows)
			assert.NotEmpty(t, a.Version)
			assert.LessOrEqual(t, len(a.Importances), 10)
			for i := 1; i < len(a.Importances); i++ {
				assert.GreaterOrEqual(t, a.Importances[i-1].Score, a.Importances[i].Score)
			}

			if est == EstimatorGBT {
				assert.Nil(t, a.Linear)
				assert.NotNil(t, a.GBT)
			} else {
				assert.Nil(t, a.GBT)
				assert.NotNil(t, a.Linear)
			}
		})
	}
}

func TestArtifact_RoundTrip(t *testing.T) {
	cfg := testModelConfig(t)
	tr := New(nil, cfg)
	tr.SetGBTParams(GBTParams{Trees: 10, LearningRate: 0.2, MaxDepth: 3, MinLeaf: 2, Bins: 16})
	rows := goldRows(80)

	a, err := tr.Fit(rows)
	require.NoError(t, err)
	require.NoError(t, SaveArtifact(cfg.Path, a))

	loaded, err := LoadArtifact(cfg.Path)
	require.NoError(t, err)
	assert.Equal(t, a.Version, loaded.Version)
	assert.Equal(t, a.Schema.Columns, loaded.Schema.Columns)

	before, err := a.Model()
	require.NoError(t, err)
	after, err := loaded.Model()
	require.NoError(t, err)

	x, _ := loaded.Schema.Encode(rows)
	for i := range x {
		assert.InDelta(t, before.Predict(x[i]), after.Predict(x[i]), 1e-12)
	}

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.Path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLoadArtifact_NotFound(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestLoadArtifact_SchemaMismatch(t *testing.T) {
	cfg := testModelConfig(t)
	cfg.Estimator = EstimatorLinear
	a, err := New(nil, cfg).Fit(goldRows(40))
	require.NoError(t, err)

	t.Run("width", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json")
		wide := *a
		wide.Schema = NewSchema(append(append([]string{}, a.Schema.Columns...), "order_region_Atlantis"))
		require.NoError(t, SaveArtifact(path, &wide))

		_, err := LoadArtifact(path)
		require.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("edited columns", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json")
		require.NoError(t, SaveArtifact(path, a))

		var raw map[string]any
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &raw))
		schema := raw["schema"].(map[string]any)
		cols := schema["columns"].([]any)
		cols[len(cols)-1] = "shipping_mode_Teleport"
		data, err = json.Marshal(raw)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		_, err = LoadArtifact(path)
		require.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("garbage", func(t *testing.T) {
		path := testutil.WriteFile(t, "model.json", []byte("{not json"))
		_, err := LoadArtifact(path)
		require.ErrorIs(t, err, ErrSchemaMismatch)
	})
}

func TestRun_TrainsFromGoldTable(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTable(t, db, goldRows(60))

	cfg := testModelConfig(t)
	tr := New(db, cfg)
	tr.SetGBTParams(GBTParams{Trees: 5, LearningRate: 0.3, MaxDepth: 2, MinLeaf: 2, Bins: 8})

	a, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 48, a.TrainRows)
	assert.Equal(t, 12, a.TestRows)

	loaded, err := LoadArtifact(cfg.Path)
	require.NoError(t, err)
	assert.Equal(t, a.Version, loaded.Version)
}

func TestRun_EmptyGoldWritesNothing(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedTable(t, db, []models.GoldRecord{})

	cfg := testModelConfig(t)
	_, err := New(db, cfg).Run(context.Background())
	require.ErrorIs(t, err, models.ErrInsufficientData)
	_, statErr := os.Stat(cfg.Path)
	assert.True(t, os.IsNotExist(statErr))
}
