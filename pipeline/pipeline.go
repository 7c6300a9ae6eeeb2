// Package pipeline runs the batch stages in order and records each run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"supply-chain-risk/metrics"
	"supply-chain-risk/models"
)

const tracerName = "supply-chain-risk/pipeline"

// Counts are the row totals a stage reports.
type Counts struct {
	In      int
	Out     int
	Skipped int
}

// Stage is one named unit of batch work.
type Stage struct {
	Name string
	Run  func(ctx context.Context) (Counts, error)
}

// Runner executes stages and appends one pipeline_runs row per execution.
type Runner struct {
	db     *gorm.DB
	tracer trace.Tracer
	logger *slog.Logger
}

// NewRunner creates a runner that records runs in db.
func NewRunner(db *gorm.DB) *Runner {
	return &Runner{db: db, tracer: otel.Tracer(tracerName), logger: slog.Default()}
}

// SetLogger overrides the default logger.
func (r *Runner) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// RunStage executes s inside a trace span. The run is recorded whether or
// not the stage succeeds; the stage's own error is returned.
func (r *Runner) RunStage(ctx context.Context, s Stage) (*models.StageRun, error) {
	ctx, span := r.tracer.Start(ctx, s.Name, trace.WithAttributes(attribute.String("stage", s.Name)))
	defer span.End()

	run := &models.StageRun{
		ID:        ulid.Make().String(),
		Stage:     s.Name,
		StartedAt: time.Now().UTC(),
	}
	r.logger.Info("stage started", "stage", s.Name, "run_id", run.ID)

	counts, err := s.Run(ctx)
	run.FinishedAt = time.Now().UTC()
	run.RowsIn, run.RowsOut, run.RowsSkip = counts.In, counts.Out, counts.Skipped

	span.SetAttributes(
		attribute.Int("rows.in", counts.In),
		attribute.Int("rows.out", counts.Out),
		attribute.Int("rows.skipped", counts.Skipped),
	)

	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("stage failed", "stage", s.Name, "run_id", run.ID, "error", err)
	} else {
		run.Status = models.RunSucceeded
		metrics.StageRows.WithLabelValues(s.Name, "in").Set(float64(counts.In))
		metrics.StageRows.WithLabelValues(s.Name, "out").Set(float64(counts.Out))
		metrics.StageRows.WithLabelValues(s.Name, "skipped").Set(float64(counts.Skipped))
		r.logger.Info("stage finished", "stage", s.Name, "run_id", run.ID,
			"rows_in", counts.In, "rows_out", counts.Out, "rows_skipped", counts.Skipped,
			"duration", run.FinishedAt.Sub(run.StartedAt).String())
	}

	if rerr := r.db.WithContext(context.WithoutCancel(ctx)).Create(run).Error; rerr != nil {
		r.logger.Warn("recording stage run", "stage", s.Name, "error", rerr)
	}
	if err != nil {
		return run, fmt.Errorf("stage %s: %w", s.Name, err)
	}
	return run, nil
}

// RunAll executes stages in order and stops at the first failure, leaving
// the tables of every earlier stage in place.
func (r *Runner) RunAll(ctx context.Context, stages []Stage) ([]*models.StageRun, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline")
	defer span.End()

	runs := make([]*models.StageRun, 0, len(stages))
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		run, err := r.RunStage(ctx, s)
		runs = append(runs, run)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return runs, err
		}
	}
	return runs, nil
}

// History returns the most recent runs, newest first.
func History(ctx context.Context, db *gorm.DB, limit int) ([]models.StageRun, error) {
	var runs []models.StageRun
	err := db.WithContext(ctx).Order("started_at DESC").Order("id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", models.RunsTable, err)
	}
	return runs, nil
}
