package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"supply-chain-risk/database"
	"supply-chain-risk/models"
)

// newsNamespace scopes the name-based UUIDs given to news lines.
var newsNamespace = uuid.MustParse("6f1c2a8e-4b7d-4c59-9a53-2f0e8d6b1c47")

const maxSkipLogs = 5

var newsDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

type newsLine struct {
	Link             string `json:"link"`
	Headline         string `json:"headline"`
	Category         string `json:"category"`
	ShortDescription string `json:"short_description"`
	Authors          string `json:"authors"`
	Date             string `json:"date"`
}

// NormalizeNewsDate parses a publication date and returns it as YYYY-MM-DD.
func NormalizeNewsDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range newsDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), nil
		}
	}
	return "", fmt.Errorf("unrecognized news date %q", s)
}

// NewsID derives the stable identifier of a corpus line from its position
// and raw content.
func NewsID(lineNo int, raw []byte) string {
	name := append([]byte(strconv.Itoa(lineNo)+":"), raw...)
	return uuid.NewSHA1(newsNamespace, name).String()
}

// NewsLoader loads the line-delimited news corpus into bronze_news.
type NewsLoader struct {
	db         *gorm.DB
	categories map[string]struct{}
	logger     *slog.Logger
}

// NewNewsLoader creates a loader keeping only the given topic categories.
func NewNewsLoader(db *gorm.DB, categories []string) *NewsLoader {
	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		allowed[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &NewsLoader{db: db, categories: allowed, logger: slog.Default()}
}

// SetLogger overrides the default logger.
func (l *NewsLoader) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Load reads the corpus at path and fully replaces bronze_news. Lines that
// are not valid JSON or carry an unparseable date are skipped and counted;
// lines outside the category allow-list are filtered without counting.
func (l *NewsLoader) Load(path string) (*Result, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		articles []models.NewsArticle
		read     int
		skipped  int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		raw := sc.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		read++

		var line newsLine
		if err := json.Unmarshal(raw, &line); err != nil {
			skipped++
			l.logSkip(skipped, lineNo, err)
			continue
		}
		if _, ok := l.categories[strings.ToUpper(line.Category)]; !ok {
			continue
		}
		date, err := NormalizeNewsDate(line.Date)
		if err != nil {
			skipped++
			l.logSkip(skipped, lineNo, err)
			continue
		}

		articles = append(articles, models.NewsArticle{
			ID:               NewsID(lineNo, raw),
			Headline:         line.Headline,
			Category:         line.Category,
			ShortDescription: line.ShortDescription,
			Authors:          line.Authors,
			Link:             line.Link,
			Date:             date,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	err = database.ReplaceTable(l.db, models.BronzeNewsTable, func(db *gorm.DB, staging string) error {
		if err := db.Table(staging).AutoMigrate(&models.NewsArticle{}); err != nil {
			return err
		}
		if len(articles) == 0 {
			return nil
		}
		return db.Table(staging).CreateInBatches(articles, insertBatchSize).Error
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("bronze news loaded",
		"table", models.BronzeNewsTable, "read", read, "loaded", len(articles), "skipped", skipped)
	return &Result{
		Table:   models.BronzeNewsTable,
		Read:    read,
		Loaded:  len(articles),
		Skipped: skipped,
	}, nil
}

func (l *NewsLoader) logSkip(n, lineNo int, err error) {
	if n > maxSkipLogs {
		return
	}
	l.logger.Warn("skipping malformed news line", "line", lineNo, "error", err)
}
