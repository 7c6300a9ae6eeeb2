package sentiment

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"supply-chain-risk/database"
	"supply-chain-risk/models"
)

// Headline is one text to score, keyed by its stable news identifier.
type Headline struct {
	NewsID string
	Text   string
}

// Result summarizes one scoring run.
type Result struct {
	Scored    int
	MeanScore float64
}

// Scorer applies a Classifier to every bronze headline.
type Scorer struct {
	db         *gorm.DB
	classifier Classifier
	maxChars   int
	workers    int
	logger     *slog.Logger
}

// NewScorer creates a scorer dispatching up to workers classifications at once.
func NewScorer(db *gorm.DB, classifier Classifier, maxChars, workers int) *Scorer {
	if workers <= 0 {
		workers = 1
	}
	return &Scorer{
		db:         db,
		classifier: classifier,
		maxChars:   maxChars,
		workers:    workers,
		logger:     slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (s *Scorer) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// ScoreHeadlines classifies every headline and maps it to a risk score. The
// output is index-aligned with the input regardless of dispatch order. The
// first classifier error cancels the remaining work.
func (s *Scorer) ScoreHeadlines(ctx context.Context, headlines []Headline) ([]models.HeadlineSentiment, error) {
	out := make([]models.HeadlineSentiment, len(headlines))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, h := range headlines {
		g.Go(func() error {
			pred, err := s.classifier.Classify(ctx, Truncate(h.Text, s.maxChars))
			if err != nil {
				return fmt.Errorf("classifying headline %s: %w", h.NewsID, err)
			}
			out[i] = models.HeadlineSentiment{
				NewsID:         h.NewsID,
				Headline:       h.Text,
				Label:          pred.Label,
				Confidence:     pred.Confidence,
				SentimentScore: RiskScore(pred),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Run scores the bronze news table and fully replaces silver_news_sentiment.
func (s *Scorer) Run(ctx context.Context) (*Result, error) {
	var headlines []Headline
	err := s.db.WithContext(ctx).Table(models.BronzeNewsTable).
		Select("id AS news_id, headline AS text").
		Order("id").
		Scan(&headlines).Error
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", models.BronzeNewsTable, err)
	}

	s.logger.Info("scoring headlines", "count", len(headlines), "classifier", s.classifier.Name(), "workers", s.workers)
	scored, err := s.ScoreHeadlines(ctx, headlines)
	if err != nil {
		return nil, err
	}

	err = database.ReplaceTable(s.db, models.SentimentTable, func(db *gorm.DB, staging string) error {
		if err := db.Table(staging).AutoMigrate(&models.HeadlineSentiment{}); err != nil {
			return err
		}
		if len(scored) == 0 {
			return nil
		}
		return db.Table(staging).CreateInBatches(scored, 200).Error
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Scored: len(scored)}
	if len(scored) > 0 {
		var sum float64
		for _, r := range scored {
			sum += r.SentimentScore
		}
		res.MeanScore = sum / float64(len(scored))
	}
	s.logger.Info("sentiment layer written", "table", models.SentimentTable, "rows", res.Scored, "mean_score", res.MeanScore)
	return res, nil
}
