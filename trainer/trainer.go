// Package trainer fits the delay regression on the gold layer and persists
// it together with its feature schema.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"supply-chain-risk/config"
	"supply-chain-risk/models"
)

const (
	ridgeLambda    = 1.0
	topImportances = 10
)

// Trainer reads gold_supply_chain and writes a model artifact.
type Trainer struct {
	db     *gorm.DB
	cfg    config.Model
	gbt    GBTParams
	logger *slog.Logger
}

// New creates a trainer using the model settings in cfg.
func New(db *gorm.DB, cfg config.Model) *Trainer {
	return &Trainer{db: db, cfg: cfg, gbt: DefaultGBTParams(), logger: slog.Default()}
}

// SetLogger overrides the default logger.
func (t *Trainer) SetLogger(l *slog.Logger) {
	if l != nil {
		t.logger = l
	}
}

// SetGBTParams overrides the boosting parameters.
func (t *Trainer) SetGBTParams(p GBTParams) { t.gbt = p }

// Fit trains both estimators on rows and returns an artifact holding the
// configured one. Both are evaluated on the same hold-out split.
func (t *Trainer) Fit(rows []models.GoldRecord) (*Artifact, error) {
	minRows := max(t.cfg.MinRows, 2)
	if len(rows) < minRows {
		return nil, fmt.Errorf("%w: %d gold rows, need at least %d", models.ErrInsufficientData, len(rows), minRows)
	}

	schema := FitSchema(rows)
	x, y := schema.Encode(rows)
	trainIdx, testIdx := Split(len(rows), t.cfg.TestFraction, t.cfg.Seed)
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, fmt.Errorf("%w: split of %d rows left an empty partition", models.ErrInsufficientData, len(rows))
	}
	xTrain, yTrain := take(x, y, trainIdx)
	xTest, yTest := take(x, y, testIdx)

	linear, err := FitLinear(xTrain, yTrain, ridgeLambda)
	if err != nil {
		return nil, fmt.Errorf("fitting linear model: %w", err)
	}
	gbt, err := FitGBT(xTrain, yTrain, t.gbt)
	if err != nil {
		return nil, fmt.Errorf("fitting boosted trees: %w", err)
	}

	a := &Artifact{
		Version:   ulid.Make().String(),
		CreatedAt: time.Now().UTC(),
		Estimator: t.cfg.Estimator,
		Schema:    schema,
		Metrics: map[string]Metrics{
			EstimatorLinear: Evaluate(linear, xTest, yTest),
			EstimatorGBT:    Evaluate(gbt, xTest, yTest),
		},
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
	}
	switch t.cfg.Estimator {
	case EstimatorLinear:
		a.Linear = linear
	default:
		a.Estimator = EstimatorGBT
		a.GBT = gbt
	}

	m, err := a.Model()
	if err != nil {
		return nil, err
	}
	a.Importances = TopImportances(m, schema, topImportances)
	return a, nil
}

// Run loads the gold table, fits, and saves the artifact to the configured
// path. Nothing is written when training fails.
func (t *Trainer) Run(ctx context.Context) (*Artifact, error) {
	var rows []models.GoldRecord
	if err := t.db.WithContext(ctx).Order("order_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading %s: %w", models.GoldTable, err)
	}

	a, err := t.Fit(rows)
	if err != nil {
		return nil, err
	}
	for name, m := range a.Metrics {
		t.logger.Info("model evaluated", "estimator", name, "mae", m.MAE, "r2", m.R2)
	}

	if err := SaveArtifact(t.cfg.Path, a); err != nil {
		return nil, err
	}
	t.logger.Info("model saved", "path", t.cfg.Path, "version", a.Version, "estimator", a.Estimator,
		"features", a.Schema.Width(), "train_rows", a.TrainRows, "test_rows", a.TestRows)
	return a, nil
}
