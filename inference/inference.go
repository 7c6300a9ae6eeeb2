// Package inference serves delay predictions from a trained artifact.
//
// A Context is built once when the service starts and is never mutated
// afterwards, so a single value can back any number of concurrent requests.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"gorm.io/gorm"

	"supply-chain-risk/metrics"
	"supply-chain-risk/models"
	"supply-chain-risk/trainer"
)

var (
	// ErrModelNotFound means the service started without a trained model.
	ErrModelNotFound = errors.New("model not found")
	// ErrInvalidInput means the request is outside the accepted ranges.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPrediction means the model failed while evaluating a valid row.
	ErrPrediction = errors.New("prediction failed")
)

const (
	// HighRiskThreshold is the predicted delay, in days, above which a
	// shipment is flagged.
	HighRiskThreshold = 1.0
	// OtherCategory stands for every category outside the top-N list and
	// never sets an indicator column.
	OtherCategory = "Other"

	LabelHighRisk = "High risk of delay"
	LabelOnTrack  = "On track"

	MinScheduledDays = 0
	MaxScheduledDays = 6
)

// ShippingModes are the modes offered by the prediction form.
var ShippingModes = []string{"Standard Class", "Second Class", "First Class", "Same Day"}

// Input is one prediction request.
type Input struct {
	ShippingMode  string  `json:"shipping_mode" form:"shipping_mode"`
	Region        string  `json:"region" form:"region"`
	Category      string  `json:"category" form:"category"`
	Segment       string  `json:"customer_segment" form:"customer_segment"`
	ScheduledDays int     `json:"scheduled_days" form:"scheduled_days"`
	RiskScore     float64 `json:"risk_score" form:"risk_score"`
}

// Validate checks the numeric ranges and that the required selections are
// present. Unknown categorical values are not an error.
func (in Input) Validate() error {
	switch {
	case in.ShippingMode == "":
		return fmt.Errorf("%w: shipping_mode is required", ErrInvalidInput)
	case in.Region == "":
		return fmt.Errorf("%w: region is required", ErrInvalidInput)
	case in.Category == "":
		return fmt.Errorf("%w: category is required", ErrInvalidInput)
	case in.ScheduledDays < MinScheduledDays || in.ScheduledDays > MaxScheduledDays:
		return fmt.Errorf("%w: scheduled_days must be between %d and %d, got %d",
			ErrInvalidInput, MinScheduledDays, MaxScheduledDays, in.ScheduledDays)
	case math.IsNaN(in.RiskScore) || in.RiskScore < 0 || in.RiskScore > 1:
		return fmt.Errorf("%w: risk_score must be between 0 and 1, got %v", ErrInvalidInput, in.RiskScore)
	}
	return nil
}

// Prediction is the result shown to the user.
type Prediction struct {
	DelayDays  float64 `json:"delay_days"`
	RiskImpact float64 `json:"risk_impact"`
	HighRisk   bool    `json:"high_risk"`
	Label      string  `json:"label"`
}

// RiskImpact is the display-only shift attributed to news risk relative to
// the neutral score. It is never fed to the model.
func RiskImpact(risk float64) float64 {
	return (risk - 0.5) * 1.5
}

// Classify flags a predicted delay.
func Classify(delayDays float64) (bool, string) {
	if delayDays > HighRiskThreshold {
		return true, LabelHighRisk
	}
	return false, LabelOnTrack
}

// ModelInfo describes the loaded artifact.
type ModelInfo struct {
	Version     string                     `json:"version"`
	Estimator   string                     `json:"estimator"`
	CreatedAt   time.Time                  `json:"created_at"`
	Features    int                        `json:"features"`
	Metrics     map[string]trainer.Metrics `json:"metrics"`
	Importances []trainer.Importance       `json:"importances"`
}

// Options are the selections offered by the prediction form.
type Options struct {
	ShippingModes    []string `json:"shipping_modes"`
	Regions          []string `json:"regions"`
	Categories       []string `json:"categories"`
	MinScheduledDays int      `json:"min_scheduled_days"`
	MaxScheduledDays int      `json:"max_scheduled_days"`
}

// Stats is the historical context shown next to predictions.
type Stats struct {
	GoldRows   int64      `json:"gold_rows"`
	OrderDates *DateRange `json:"order_dates,omitempty"`
	Model      *ModelInfo `json:"model,omitempty"`
	LoadedAt   time.Time  `json:"loaded_at"`
}

// Context holds everything a prediction needs. The zero-valued model case
// is the degraded mode: options and stats are served, predictions fail
// with ErrModelNotFound.
type Context struct {
	model      trainer.Model
	schema     *trainer.Schema
	info       *ModelInfo
	regions    []string
	categories []string
	goldRows   int64
	dates      *DateRange
	loadedAt   time.Time
}

// Load builds a Context from the artifact at modelPath and the gold and
// silver tables. A missing artifact yields a degraded Context; a schema
// mismatch is returned as an error so the service refuses to start.
func Load(ctx context.Context, db *gorm.DB, modelPath string, topCategories int, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Context{loadedAt: time.Now().UTC()}

	a, err := trainer.LoadArtifact(modelPath)
	switch {
	case errors.Is(err, trainer.ErrArtifactNotFound):
		logger.Warn("no trained model; predictions disabled", "path", modelPath)
	case err != nil:
		return nil, fmt.Errorf("loading model: %w", err)
	default:
		m, err := a.Model()
		if err != nil {
			return nil, fmt.Errorf("loading model: %w", err)
		}
		c.model, c.schema = m, a.Schema
		c.info = &ModelInfo{
			Version:     a.Version,
			Estimator:   a.Estimator,
			CreatedAt:   a.CreatedAt,
			Features:    a.Schema.Width(),
			Metrics:     a.Metrics,
			Importances: a.Importances,
		}
	}

	if err := c.loadReference(ctx, db, topCategories); err != nil {
		return nil, err
	}

	dates, err := OrderDateRange(ctx, db)
	switch {
	case err == nil:
		c.dates = dates
	case errors.Is(err, models.ErrInsufficientData):
	default:
		return nil, err
	}

	logger.Info("inference context loaded", "model", c.Ready(), "regions", len(c.regions),
		"categories", len(c.categories), "gold_rows", c.goldRows)
	return c, nil
}

func (c *Context) loadReference(ctx context.Context, db *gorm.DB, topN int) error {
	db = db.WithContext(ctx)
	if !db.Migrator().HasTable(models.GoldTable) {
		c.categories = []string{OtherCategory}
		return nil
	}

	if err := db.Table(models.GoldTable).Count(&c.goldRows).Error; err != nil {
		return fmt.Errorf("counting gold rows: %w", err)
	}
	if err := db.Table(models.GoldTable).Distinct("order_region").Order("order_region").
		Pluck("order_region", &c.regions).Error; err != nil {
		return fmt.Errorf("loading regions: %w", err)
	}

	var top []string
	err := db.Table(models.GoldTable).
		Select("category_name").
		Group("category_name").
		Order("COUNT(*) DESC, category_name").
		Limit(topN).
		Pluck("category_name", &top).Error
	if err != nil {
		return fmt.Errorf("loading top categories: %w", err)
	}
	c.categories = append(top, OtherCategory)
	sort.Strings(c.categories)
	return nil
}

// NewContext builds a Context directly from a fitted model and its schema.
func NewContext(model trainer.Model, schema *trainer.Schema, regions, categories []string) *Context {
	cats := append(append([]string(nil), categories...), OtherCategory)
	sort.Strings(cats)
	return &Context{
		model:      model,
		schema:     schema,
		regions:    append([]string(nil), regions...),
		categories: cats,
		loadedAt:   time.Now().UTC(),
	}
}

// Ready reports whether a model is loaded.
func (c *Context) Ready() bool { return c.model != nil }

// Options returns copies of the form selections.
func (c *Context) Options() Options {
	return Options{
		ShippingModes:    append([]string(nil), ShippingModes...),
		Regions:          append([]string(nil), c.regions...),
		Categories:       append([]string(nil), c.categories...),
		MinScheduledDays: MinScheduledDays,
		MaxScheduledDays: MaxScheduledDays,
	}
}

// Stats returns the historical context.
func (c *Context) Stats() Stats {
	return Stats{GoldRows: c.goldRows, OrderDates: c.dates, Model: c.info, LoadedAt: c.loadedAt}
}

// Features encodes in against the loaded schema. A category outside the
// known list is treated as Other and sets no indicator.
func (c *Context) Features(in Input) ([]float64, error) {
	if c.schema == nil {
		return nil, ErrModelNotFound
	}
	categorical := map[string]string{
		trainer.FieldShippingMode: in.ShippingMode,
		trainer.FieldRegion:       in.Region,
	}
	if in.Category != OtherCategory && slices.Contains(c.categories, in.Category) {
		categorical[trainer.FieldCategory] = in.Category
	}
	if in.Segment != "" {
		categorical[trainer.FieldSegment] = in.Segment
	}
	numeric := map[string]float64{
		trainer.FieldScheduledDays: float64(in.ScheduledDays),
		trainer.FieldDailyRisk:     in.RiskScore,
	}
	return c.schema.Row(numeric, categorical), nil
}

// Predict evaluates the model for one shipment.
func (c *Context) Predict(in Input) (p *Prediction, err error) {
	defer func() {
		if err != nil {
			metrics.PredictionErrors.WithLabelValues(errorKind(err)).Inc()
		}
	}()

	if !c.Ready() {
		return nil, ErrModelNotFound
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	row, err := c.Features(in)
	if err != nil {
		return nil, err
	}
	delay, err := c.evaluate(row)
	metrics.PredictionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	high, label := Classify(delay)
	flag := "on_track"
	if high {
		flag = "high_risk"
	}
	metrics.Predictions.WithLabelValues(flag).Inc()

	return &Prediction{
		DelayDays:  delay,
		RiskImpact: RiskImpact(in.RiskScore),
		HighRisk:   high,
		Label:      label,
	}, nil
}

func (c *Context) evaluate(row []float64) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPrediction, r)
		}
	}()
	v = c.model.Predict(row)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: model returned %v", ErrPrediction, v)
	}
	return v, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrModelNotFound):
		return "model_not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "prediction"
	}
}
