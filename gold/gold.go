// Package gold enriches validated shipments with the daily news risk score.
package gold

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"supply-chain-risk/database"
	"supply-chain-risk/models"
)

// NeutralRisk is the score given to days without matched news.
const NeutralRisk = 0.5

const orderDateLayout = "1/2/2006"

// ParseOrderDate converts a logistics order date ("M/D/YYYY", optionally
// followed by a time of day) into the calendar-date form used for news
// dates ("YYYY-MM-DD").
func ParseOrderDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	t, err := time.Parse(orderDateLayout, s)
	if err != nil {
		return "", fmt.Errorf("parsing order date %q: %w", s, err)
	}
	return t.Format(time.DateOnly), nil
}

// DailyRisk is the mean headline risk for one calendar date.
type DailyRisk struct {
	NewsDate       string
	DailyRiskScore float64
	Headlines      int
}

// Result summarizes one gold run.
type Result struct {
	Rows          int
	MatchedRows   int
	DefaultedRows int
	BadDates      int
	RiskDays      int
}

// Builder joins silver logistics with daily sentiment into the gold table.
type Builder struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewBuilder creates a gold builder over db.
func NewBuilder(db *gorm.DB) *Builder {
	return &Builder{db: db, logger: slog.Default()}
}

// SetLogger overrides the default logger.
func (b *Builder) SetLogger(l *slog.Logger) {
	if l != nil {
		b.logger = l
	}
}

// AggregateDailyRisk averages sentiment scores per headline publication
// date. Scores are matched to their headline through the stable news
// identifier, so identical headlines on different dates stay separate.
func (b *Builder) AggregateDailyRisk(ctx context.Context) (map[string]DailyRisk, error) {
	var rows []DailyRisk
	err := b.db.WithContext(ctx).
		Table(models.BronzeNewsTable+" AS n").
		Select("n.date AS news_date, AVG(s.sentiment_score) AS daily_risk_score, COUNT(*) AS headlines").
		Joins("JOIN "+models.SentimentTable+" AS s ON s.news_id = n.id").
		Group("n.date").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregating daily risk: %w", err)
	}

	out := make(map[string]DailyRisk, len(rows))
	for _, r := range rows {
		out[r.NewsDate] = r
	}
	return out, nil
}

// Join left-joins shipments onto daily risk. Every shipment is kept; those
// whose order date has no aggregate, or cannot be parsed, get NeutralRisk.
func Join(silver []models.SilverLogistics, daily map[string]DailyRisk) ([]models.GoldRecord, *Result) {
	res := &Result{Rows: len(silver), RiskDays: len(daily)}
	out := make([]models.GoldRecord, len(silver))
	for i, s := range silver {
		score := NeutralRisk
		day, err := ParseOrderDate(s.OrderDate)
		d, matched := daily[day]
		switch {
		case err != nil:
			res.BadDates++
			res.DefaultedRows++
		case matched:
			score = d.DailyRiskScore
			res.MatchedRows++
		default:
			res.DefaultedRows++
		}
		out[i] = models.GoldRecord{SilverLogistics: s, DailyRiskScore: score}
	}
	return out, res
}

// Run rebuilds gold_supply_chain from the silver and sentiment layers. An
// empty silver table fails with models.ErrInsufficientData.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	daily, err := b.AggregateDailyRisk(ctx)
	if err != nil {
		return nil, err
	}

	var silver []models.SilverLogistics
	if err := b.db.WithContext(ctx).Find(&silver).Error; err != nil {
		return nil, fmt.Errorf("reading %s: %w", models.SilverLogisticsTable, err)
	}
	if len(silver) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", models.ErrInsufficientData, models.SilverLogisticsTable)
	}

	gold, res := Join(silver, daily)
	if res.BadDates > 0 {
		b.logger.Warn("order dates could not be parsed; neutral risk applied", "rows", res.BadDates)
	}

	err = database.ReplaceTable(b.db, models.GoldTable, func(db *gorm.DB, staging string) error {
		if err := db.Table(staging).AutoMigrate(&models.GoldRecord{}); err != nil {
			return err
		}
		return db.Table(staging).CreateInBatches(gold, 200).Error
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("gold layer written", "table", models.GoldTable, "rows", res.Rows,
		"matched", res.MatchedRows, "defaulted", res.DefaultedRows, "risk_days", res.RiskDays)
	return res, nil
}
