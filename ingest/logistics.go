// Package ingest loads the raw logistics and news files into the bronze layer.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gorm.io/gorm"

	"supply-chain-risk/database"
	"supply-chain-risk/models"
)

// ErrSourceNotFound is returned when a raw input file does not exist.
var ErrSourceNotFound = errors.New("source file not found")

const insertBatchSize = 200

// Result summarizes one ingestion run.
type Result struct {
	Table   string
	Read    int
	Loaded  int
	Skipped int
	Columns []string
}

var columnReplacer = strings.NewReplacer(" ", "_", "(", "", ")", "", ".", "")

// NormalizeColumn rewrites a raw header into the canonical lowercase,
// underscore-separated form used by downstream queries.
func NormalizeColumn(name string) string {
	return strings.ToLower(columnReplacer.Replace(strings.TrimSpace(name)))
}

// normalizeHeader normalizes every header and disambiguates collisions by
// suffixing the second and later occurrences with _2, _3, ...
func normalizeHeader(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := NormalizeColumn(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", name, err)
	}
	return enc, nil
}

func openSource(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// LogisticsLoader loads the delimited shipment file into bronze_logistics.
type LogisticsLoader struct {
	db       *gorm.DB
	encoding string
	logger   *slog.Logger
}

// NewLogisticsLoader creates a loader decoding the file with the named
// encoding (an IANA/WHATWG label such as "iso-8859-1" or "utf-8").
func NewLogisticsLoader(db *gorm.DB, encodingName string) *LogisticsLoader {
	return &LogisticsLoader{db: db, encoding: encodingName, logger: slog.Default()}
}

// SetLogger overrides the default logger.
func (l *LogisticsLoader) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Load parses the file at path and fully replaces bronze_logistics. Every
// column is stored as nullable text; empty cells become NULL. Nothing is
// written if the file is missing or cannot be parsed.
func (l *LogisticsLoader) Load(path string) (*Result, error) {
	enc, err := lookupEncoding(l.encoding)
	if err != nil {
		return nil, err
	}

	f, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, enc.NewDecoder()))

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s has no header row", path)
		}
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	columns := normalizeHeader(header)

	var rows []map[string]interface{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, c := range columns {
			var v interface{}
			if i < len(record) && record[i] != "" {
				v = record[i]
			}
			row[c] = v
		}
		rows = append(rows, row)
	}

	err = database.ReplaceTable(l.db, models.BronzeLogisticsTable, func(db *gorm.DB, staging string) error {
		if err := database.CreateTextTable(db, staging, columns); err != nil {
			return err
		}
		for start := 0; start < len(rows); start += insertBatchSize {
			end := min(start+insertBatchSize, len(rows))
			batch := rows[start:end]
			if err := db.Table(staging).Create(&batch).Error; err != nil {
				return fmt.Errorf("inserting rows %d-%d: %w", start, end, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("bronze logistics loaded", "table", models.BronzeLogisticsTable, "rows", len(rows), "columns", len(columns))
	return &Result{
		Table:   models.BronzeLogisticsTable,
		Read:    len(rows),
		Loaded:  len(rows),
		Columns: columns,
	}, nil
}
