package trainer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"supply-chain-risk/models"
)

// Feature fields read from the gold table.
const (
	FieldCategory      = "category_name"
	FieldSegment       = "customer_segment"
	FieldRegion        = "order_region"
	FieldShippingMode  = "shipping_mode"
	FieldScheduledDays = "scheduled_days"
	FieldDailyRisk     = "daily_risk_score"
)

// SchemaVersion identifies the encoding rules below. Bump it whenever the
// column naming or ordering changes.
const SchemaVersion = 1

// NumericFields are copied into the feature row as-is, in this order.
var NumericFields = []string{FieldScheduledDays, FieldDailyRisk}

// CategoricalFields are one-hot encoded, in this order, after the numerics.
var CategoricalFields = []string{FieldCategory, FieldSegment, FieldRegion, FieldShippingMode}

// Schema is the ordered list of encoded feature columns a model expects.
// Indicator columns are named "{field}_{level}"; the lexically first level
// of each field is the dropped reference level and has no column.
type Schema struct {
	Version     int      `json:"version"`
	Columns     []string `json:"columns"`
	Fingerprint string   `json:"fingerprint"`

	index map[string]int
}

// NewSchema builds a schema over columns and stamps its fingerprint.
func NewSchema(columns []string) *Schema {
	s := &Schema{Version: SchemaVersion, Columns: columns, Fingerprint: fingerprint(columns)}
	s.buildIndex()
	return s
}

func fingerprint(columns []string) string {
	sum := sha256.Sum256([]byte(strings.Join(columns, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func (s *Schema) buildIndex() {
	s.index = make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		s.index[c] = i
	}
}

// Validate checks that the schema is one this build can encode for and that
// its column list has not been altered since it was stamped.
func (s *Schema) Validate() error {
	if s.Version != SchemaVersion {
		return fmt.Errorf("%w: schema version %d, expected %d", ErrSchemaMismatch, s.Version, SchemaVersion)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: schema has no columns", ErrSchemaMismatch)
	}
	if got := fingerprint(s.Columns); got != s.Fingerprint {
		return fmt.Errorf("%w: column fingerprint %s does not match %s", ErrSchemaMismatch, got, s.Fingerprint)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, c)
		}
		seen[c] = struct{}{}
	}
	for _, f := range NumericFields {
		if _, ok := seen[f]; !ok {
			return fmt.Errorf("%w: numeric column %q missing", ErrSchemaMismatch, f)
		}
	}
	s.buildIndex()
	return nil
}

// Width is the number of encoded columns.
func (s *Schema) Width() int { return len(s.Columns) }

// Has reports whether column is part of the schema.
func (s *Schema) Has(column string) bool {
	_, ok := s.lookup(column)
	return ok
}

// lookup never mutates s, so a validated schema can be shared by
// concurrent requests.
func (s *Schema) lookup(column string) (int, bool) {
	if s.index != nil {
		i, ok := s.index[column]
		return i, ok
	}
	for i, c := range s.Columns {
		if c == column {
			return i, true
		}
	}
	return 0, false
}

// IndicatorColumn names the one-hot column for a categorical level.
func IndicatorColumn(field, level string) string {
	return field + "_" + level
}

// Row encodes one observation. Every column starts at zero; numerics are
// set directly and, per categorical field, the indicator column for its
// value is set to 1 only if the schema has that column. Unseen levels and
// the reference level therefore leave all of the field's indicators at 0.
func (s *Schema) Row(numeric map[string]float64, categorical map[string]string) []float64 {
	row := make([]float64, len(s.Columns))
	for field, v := range numeric {
		if i, ok := s.lookup(field); ok {
			row[i] = v
		}
	}
	for field, level := range categorical {
		if i, ok := s.lookup(IndicatorColumn(field, level)); ok {
			row[i] = 1
		}
	}
	return row
}

// Observation returns the numeric and categorical inputs of a gold row.
func Observation(g models.GoldRecord) (map[string]float64, map[string]string) {
	return map[string]float64{
			FieldScheduledDays: float64(g.ScheduledDays),
			FieldDailyRisk:     g.DailyRiskScore,
		}, map[string]string{
			FieldCategory:     g.CategoryName,
			FieldSegment:      g.CustomerSegment,
			FieldRegion:       g.OrderRegion,
			FieldShippingMode: g.ShippingMode,
		}
}

// FitSchema derives the encoded columns from the training rows: numerics
// first, then for each categorical field its sorted levels minus the first.
func FitSchema(rows []models.GoldRecord) *Schema {
	levels := make(map[string]map[string]struct{}, len(CategoricalFields))
	for _, f := range CategoricalFields {
		levels[f] = make(map[string]struct{})
	}
	for _, g := range rows {
		_, cat := Observation(g)
		for f, v := range cat {
			levels[f][v] = struct{}{}
		}
	}

	columns := append([]string(nil), NumericFields...)
	for _, f := range CategoricalFields {
		sorted := make([]string, 0, len(levels[f]))
		for v := range levels[f] {
			sorted = append(sorted, v)
		}
		sort.Strings(sorted)
		for _, v := range sorted[min(1, len(sorted)):] {
			columns = append(columns, IndicatorColumn(f, v))
		}
	}
	return NewSchema(columns)
}

// Encode turns gold rows into a feature matrix and target vector.
func (s *Schema) Encode(rows []models.GoldRecord) ([][]float64, []float64) {
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, g := range rows {
		num, cat := Observation(g)
		x[i] = s.Row(num, cat)
		y[i] = float64(g.DelayDays)
	}
	return x, y
}
