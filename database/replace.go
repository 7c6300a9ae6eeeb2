package database

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const stagingSuffix = "__staging"

// StagingName returns the table a replacement of table is built under.
func StagingName(table string) string {
	return table + stagingSuffix
}

// ReplaceTable builds a new version of table under a staging name and swaps
// it in with a single transaction once build returns without error. Readers
// see either the previous table or the complete new one. On failure the
// staging table is dropped and the previous table is left untouched.
//
// Renaming a table keeps the names of its indexes. Postgres names a primary
// key <table>_pkey, so the swap renames the staging key along with the table.
// Other named indexes are not carried over and would collide on the next
// run, so models built this way must not declare them.
func ReplaceTable(db *gorm.DB, table string, build func(db *gorm.DB, staging string) error) error {
	staging := StagingName(table)
	if err := db.Migrator().DropTable(staging); err != nil {
		return fmt.Errorf("clearing %s: %w", staging, err)
	}

	if err := build(db, staging); err != nil {
		if dropErr := db.Migrator().DropTable(staging); dropErr != nil {
			return fmt.Errorf("building %s: %w (cleanup: %v)", table, err, dropErr)
		}
		return fmt.Errorf("building %s: %w", table, err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DROP TABLE IF EXISTS ?", clause.Table{Name: table}).Error; err != nil {
			return err
		}
		if err := tx.Exec("ALTER TABLE ? RENAME TO ?", clause.Table{Name: staging}, clause.Table{Name: table}).Error; err != nil {
			return err
		}
		for _, r := range indexRenames(tx.Dialector.Name(), table, staging) {
			if err := tx.Exec("ALTER INDEX IF EXISTS ? RENAME TO ?", clause.Table{Name: r.from}, clause.Table{Name: r.to}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("swapping %s into place: %w", table, err)
	}
	return nil
}

type indexRename struct {
	from, to string
}

// indexRenames lists the indexes that keep their staging names after the
// table rename on the given dialect.
func indexRenames(dialect, table, staging string) []indexRename {
	if dialect != "postgres" {
		return nil
	}
	return []indexRename{{from: staging + "_pkey", to: table + "_pkey"}}
}

// CreateTextTable creates table with one nullable TEXT column per name.
func CreateTextTable(db *gorm.DB, table string, columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("table %s needs at least one column", table)
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = db.Statement.Quote(c) + " TEXT"
	}
	sql := fmt.Sprintf("CREATE TABLE %s (%s)", db.Statement.Quote(table), strings.Join(defs, ", "))
	return db.Exec(sql).Error
}

// CountRows returns the number of rows in table.
func CountRows(db *gorm.DB, table string) (int64, error) {
	var n int64
	if err := db.Table(table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}
