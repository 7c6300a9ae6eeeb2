package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"supply-chain-risk/config"
	"supply-chain-risk/firewall"
	"supply-chain-risk/gold"
	"supply-chain-risk/ingest"
	"supply-chain-risk/sentiment"
	"supply-chain-risk/trainer"
)

// Stage names, in execution order.
const (
	StageIngestLogistics = "ingest-logistics"
	StageIngestNews      = "ingest-news"
	StageSentiment       = "sentiment"
	StageSilver          = "silver"
	StageGold            = "gold"
	StageTrain           = "train"
)

// Order is the full pipeline.
var Order = []string{StageIngestLogistics, StageIngestNews, StageSentiment, StageSilver, StageGold, StageTrain}

// NewClassifier builds the configured headline classifier.
func NewClassifier(cfg config.Sentiment) (sentiment.Classifier, error) {
	switch cfg.Provider {
	case "http":
		return sentiment.NewHTTPClassifier(cfg.Endpoint, cfg.Token, cfg.Timeout), nil
	case "lexicon":
		return sentiment.NewLexiconClassifier(), nil
	default:
		return nil, fmt.Errorf("unknown sentiment provider %q", cfg.Provider)
	}
}

// Build returns the named stage wired to db and cfg.
func Build(name string, db *gorm.DB, cfg *config.Config, logger *slog.Logger) (Stage, error) {
	switch name {
	case StageIngestLogistics:
		return Stage{Name: name, Run: func(context.Context) (Counts, error) {
			l := ingest.NewLogisticsLoader(db, cfg.Sources.LogisticsEncoding)
			l.SetLogger(logger)
			res, err := l.Load(cfg.Sources.Logistics)
			if err != nil {
				return Counts{}, err
			}
			return Counts{In: res.Read, Out: res.Loaded, Skipped: res.Skipped}, nil
		}}, nil

	case StageIngestNews:
		return Stage{Name: name, Run: func(context.Context) (Counts, error) {
			l := ingest.NewNewsLoader(db, cfg.Sources.NewsCategories)
			l.SetLogger(logger)
			res, err := l.Load(cfg.Sources.News)
			if err != nil {
				return Counts{}, err
			}
			return Counts{In: res.Read, Out: res.Loaded, Skipped: res.Skipped}, nil
		}}, nil

	case StageSentiment:
		classifier, err := NewClassifier(cfg.Sentiment)
		if err != nil {
			return Stage{}, err
		}
		return Stage{Name: name, Run: func(ctx context.Context) (Counts, error) {
			s := sentiment.NewScorer(db, classifier, cfg.Sentiment.MaxChars, cfg.Sentiment.Workers)
			s.SetLogger(logger)
			res, err := s.Run(ctx)
			if err != nil {
				return Counts{}, err
			}
			return Counts{In: res.Scored, Out: res.Scored}, nil
		}}, nil

	case StageSilver:
		return Stage{Name: name, Run: func(ctx context.Context) (Counts, error) {
			f := firewall.New(db)
			f.SetLogger(logger)
			res, err := f.Run(ctx)
			if res == nil {
				return Counts{}, err
			}
			return Counts{In: res.Read, Out: res.Retained, Skipped: res.Dropped}, err
		}}, nil

	case StageGold:
		return Stage{Name: name, Run: func(ctx context.Context) (Counts, error) {
			b := gold.NewBuilder(db)
			b.SetLogger(logger)
			res, err := b.Run(ctx)
			if err != nil {
				return Counts{}, err
			}
			return Counts{In: res.Rows, Out: res.Rows, Skipped: res.BadDates}, nil
		}}, nil

	case StageTrain:
		return Stage{Name: name, Run: func(ctx context.Context) (Counts, error) {
			t := trainer.New(db, cfg.Model)
			t.SetLogger(logger)
			a, err := t.Run(ctx)
			if err != nil {
				return Counts{}, err
			}
			return Counts{In: a.TrainRows + a.TestRows, Out: a.TrainRows}, nil
		}}, nil
	}
	return Stage{}, fmt.Errorf("unknown stage %q", name)
}

// BuildAll returns every stage in Order.
func BuildAll(db *gorm.DB, cfg *config.Config, logger *slog.Logger) ([]Stage, error) {
	stages := make([]Stage, 0, len(Order))
	for _, name := range Order {
		s, err := Build(name, db, cfg, logger)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, nil
}
