package inference

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"supply-chain-risk/gold"
	"supply-chain-risk/models"
)

// DateRange is the span of order dates present in silver_logistics.
type DateRange struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Days        int    `json:"days"`
	Unparseable int    `json:"unparseable"`
}

// OrderDateRange returns the earliest and latest order date in the silver
// table as YYYY-MM-DD. Dates are compared after reparsing, since the stored
// M/D/YYYY text does not sort chronologically.
func OrderDateRange(ctx context.Context, db *gorm.DB) (*DateRange, error) {
	db = db.WithContext(ctx)
	if !db.Migrator().HasTable(models.SilverLogisticsTable) {
		return nil, fmt.Errorf("%w: %s does not exist", models.ErrInsufficientData, models.SilverLogisticsTable)
	}

	var raw []string
	if err := db.Table(models.SilverLogisticsTable).Distinct("order_date").Pluck("order_date", &raw).Error; err != nil {
		return nil, fmt.Errorf("reading order dates: %w", err)
	}

	r := &DateRange{}
	days := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		d, err := gold.ParseOrderDate(s)
		if err != nil {
			r.Unparseable++
			continue
		}
		days[d] = struct{}{}
		if r.Start == "" || d < r.Start {
			r.Start = d
		}
		if d > r.End {
			r.End = d
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: no parseable order dates in %s", models.ErrInsufficientData, models.SilverLogisticsTable)
	}
	r.Days = len(days)
	return r, nil
}
