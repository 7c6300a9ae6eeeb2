package models

// Table names owned by each layer.
const (
	BronzeLogisticsTable = "bronze_logistics"
	BronzeNewsTable      = "bronze_news"
	SentimentTable       = "silver_news_sentiment"
	SilverLogisticsTable = "silver_logistics"
	GoldTable            = "gold_supply_chain"
	RunsTable            = "pipeline_runs"
)

// NewsArticle is one bronze news headline. ID is derived from the source
// line so re-ingesting the same file yields the same identifiers.
type NewsArticle struct {
	ID               string `json:"id" gorm:"primaryKey"`
	Headline         string `json:"headline"`
	Category         string `json:"category"`
	ShortDescription string `json:"short_description"`
	Authors          string `json:"authors"`
	Link             string `json:"link"`
	Date             string `json:"date"` // YYYY-MM-DD
}

func (NewsArticle) TableName() string { return BronzeNewsTable }

// HeadlineSentiment is one scored headline in the silver layer.
type HeadlineSentiment struct {
	NewsID         string  `json:"news_id" gorm:"primaryKey"`
	Headline       string  `json:"headline"`
	Label          string  `json:"label"`
	Confidence     float64 `json:"confidence"`
	SentimentScore float64 `json:"sentiment_score"`
}

func (HeadlineSentiment) TableName() string { return SentimentTable }
