// Package firewall turns the untyped bronze logistics table into the
// validated silver layer.
package firewall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"gorm.io/gorm"

	"supply-chain-risk/database"
	"supply-chain-risk/models"
)

// ErrMalformedColumn is returned when a value cannot be read as the type its
// column requires. The firewall never coerces such values silently.
var ErrMalformedColumn = errors.New("malformed column value")

// Bronze column names read by the firewall.
const (
	ColOrderID       = "order_id"
	ColCategory      = "category_name"
	ColSegment       = "customer_segment"
	ColRegion        = "order_region"
	ColShippingMode  = "shipping_mode"
	ColOrderStatus   = "order_status"
	ColActualDays    = "days_for_shipping_real"
	ColScheduledDays = "days_for_shipment_scheduled"
	ColOrderDate     = "order_date_dateorders"
	ColShippingDate  = "shipping_date_dateorders"
)

// StatusCanceled marks orders that never shipped.
const StatusCanceled = "CANCELED"

var bronzeColumns = []string{
	ColOrderID, ColCategory, ColSegment, ColRegion, ColShippingMode, ColOrderStatus,
	ColActualDays, ColScheduledDays, ColOrderDate, ColShippingDate,
}

// Row is one untyped bronze record keyed by column name. Missing values are nil.
type Row map[string]interface{}

// Int reads col as an integer. ok is false when the value is NULL.
// Text must be a plain decimal integer: "010" is 10, "0x1F" is malformed.
func (r Row) Int(col string) (v int64, ok bool, err error) {
	raw := r[col]
	if raw == nil {
		return 0, false, nil
	}
	if s, isText := raw.(string); isText {
		v, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	} else {
		v, err = cast.ToInt64E(raw)
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%v", ErrMalformedColumn, col, raw)
	}
	return v, true, nil
}

// String reads col as text; NULL reads as "".
func (r Row) String(col string) string {
	if r[col] == nil {
		return ""
	}
	return cast.ToString(r[col])
}

// Predicate is one rule a row must satisfy to be retained.
type Predicate struct {
	Name string
	Keep func(Row) (bool, error)
}

// Rules is the quality firewall: a row is retained iff the shipping time is
// present and non-negative and the order status is known and not canceled.
// A NULL status fails like the SQL comparison status <> 'CANCELED' would.
var Rules = []Predicate{
	{
		Name: "actual_days_present",
		Keep: func(r Row) (bool, error) {
			_, ok, err := r.Int(ColActualDays)
			return ok, err
		},
	},
	{
		Name: "actual_days_non_negative",
		Keep: func(r Row) (bool, error) {
			v, ok, err := r.Int(ColActualDays)
			return ok && v >= 0, err
		},
	},
	{
		Name: "not_canceled",
		Keep: func(r Row) (bool, error) {
			if r[ColOrderStatus] == nil {
				return false, nil
			}
			return r.String(ColOrderStatus) != StatusCanceled, nil
		},
	},
}

// Filter returns the rows satisfying every predicate and the number of rows
// dropped per predicate, attributed to the first rule each row failed.
func Filter(rows []Row, preds []Predicate) ([]Row, map[string]int, error) {
	kept := make([]Row, 0, len(rows))
	dropped := make(map[string]int)
rows:
	for _, r := range rows {
		for _, p := range preds {
			ok, err := p.Keep(r)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %s: %w", p.Name, err)
			}
			if !ok {
				dropped[p.Name]++
				continue rows
			}
		}
		kept = append(kept, r)
	}
	return kept, dropped, nil
}

// Project converts a retained row into its silver shape and derives the delay.
func Project(r Row) (models.SilverLogistics, error) {
	orderID, ok, err := r.Int(ColOrderID)
	if err != nil {
		return models.SilverLogistics{}, err
	}
	if !ok {
		return models.SilverLogistics{}, fmt.Errorf("%w: %s is NULL", ErrMalformedColumn, ColOrderID)
	}
	actual, _, err := r.Int(ColActualDays)
	if err != nil {
		return models.SilverLogistics{}, err
	}
	scheduled, ok, err := r.Int(ColScheduledDays)
	if err != nil {
		return models.SilverLogistics{}, err
	}
	if !ok {
		return models.SilverLogistics{}, fmt.Errorf("%w: %s is NULL for order %d", ErrMalformedColumn, ColScheduledDays, orderID)
	}

	return models.SilverLogistics{
		OrderID:         orderID,
		CategoryName:    r.String(ColCategory),
		CustomerSegment: r.String(ColSegment),
		OrderRegion:     r.String(ColRegion),
		ShippingMode:    r.String(ColShippingMode),
		OrderStatus:     r.String(ColOrderStatus),
		ActualDays:      int(actual),
		ScheduledDays:   int(scheduled),
		DelayDays:       int(actual - scheduled),
		OrderDate:       r.String(ColOrderDate),
		ShippingDate:    r.String(ColShippingDate),
	}, nil
}

// Result summarizes one firewall run.
type Result struct {
	Read     int
	Retained int
	Dropped  int
	ByRule   map[string]int
}

// Firewall builds silver_logistics from bronze_logistics.
type Firewall struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a firewall over db.
func New(db *gorm.DB) *Firewall {
	return &Firewall{db: db, logger: slog.Default()}
}

// SetLogger overrides the default logger.
func (f *Firewall) SetLogger(l *slog.Logger) {
	if l != nil {
		f.logger = l
	}
}

// Run filters and projects the bronze table and fully replaces the silver
// table. A run that retains no rows fails with models.ErrInsufficientData
// and leaves the previous silver table in place.
func (f *Firewall) Run(ctx context.Context) (*Result, error) {
	rows, err := f.readBronze(ctx)
	if err != nil {
		return nil, err
	}

	kept, byRule, err := Filter(rows, Rules)
	if err != nil {
		return nil, err
	}
	res := &Result{Read: len(rows), Retained: len(kept), Dropped: len(rows) - len(kept), ByRule: byRule}
	if len(kept) == 0 {
		return res, fmt.Errorf("%w: no rows of %d passed the quality firewall", models.ErrInsufficientData, len(rows))
	}

	silver := make([]models.SilverLogistics, len(kept))
	for i, r := range kept {
		if silver[i], err = Project(r); err != nil {
			return nil, err
		}
	}

	err = database.ReplaceTable(f.db, models.SilverLogisticsTable, func(db *gorm.DB, staging string) error {
		if err := db.Table(staging).AutoMigrate(&models.SilverLogistics{}); err != nil {
			return err
		}
		return db.Table(staging).CreateInBatches(silver, 200).Error
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info("silver layer written",
		"table", models.SilverLogisticsTable, "validated", res.Retained, "filtered_out", res.Dropped, "by_rule", byRule)
	return res, nil
}

func (f *Firewall) readBronze(ctx context.Context) ([]Row, error) {
	cursor, err := f.db.WithContext(ctx).Table(models.BronzeLogisticsTable).Select(bronzeColumns).Rows()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", models.BronzeLogisticsTable, err)
	}
	defer cursor.Close()

	var out []Row
	for cursor.Next() {
		vals := make([]interface{}, len(bronzeColumns))
		ptrs := make([]interface{}, len(bronzeColumns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := cursor.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", models.BronzeLogisticsTable, err)
		}
		row := make(Row, len(bronzeColumns))
		for i, c := range bronzeColumns {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, cursor.Err()
}
