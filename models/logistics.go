package models

// SilverLogistics is one shipment that passed the quality firewall.
type SilverLogistics struct {
	OrderID         int64  `json:"order_id"`
	CategoryName    string `json:"category_name"`
	CustomerSegment string `json:"customer_segment"`
	OrderRegion     string `json:"order_region"`
	ShippingMode    string `json:"shipping_mode"`
	OrderStatus     string `json:"order_status"`
	ActualDays      int    `json:"actual_days"`
	ScheduledDays   int    `json:"scheduled_days"`
	DelayDays       int    `json:"delay_days"`
	OrderDate       string `json:"order_date"` // M/D/YYYY as delivered by the source
	ShippingDate    string `json:"shipping_date"`
}

func (SilverLogistics) TableName() string { return SilverLogisticsTable }

// GoldRecord is a silver shipment enriched with the daily news risk score.
type GoldRecord struct {
	SilverLogistics `gorm:"embedded"`
	DailyRiskScore  float64 `json:"daily_risk_score"`
}

func (GoldRecord) TableName() string { return GoldTable }
