// Package migrations applies numbered SQL migrations to a database exactly once.
package migrations

import (
	"database/sql"
	"fmt"
	"slices"
)

type Migration struct {
	SequenceId int
	Sql        string
}

// Logger receives progress messages. Printf-style loggers like *log.Logger and the sugared zap
// logger both fit.
type Logger interface {
	Infof(template string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{}) {}

// MigrateSchema runs every migration whose sequence id is not recorded in the migrations table,
// in the order given.
func MigrateSchema(db *sql.DB, migrations []Migration, log Logger) error {
	if log == nil {
		log = nopLogger{}
	}
	if err := initMigrationTable(db); err != nil {
		return err
	}
	applied, err := getAppliedMigrations(db)
	if err != nil {
		return err
	}
	for _, migration := range migrations {
		if slices.Contains(applied, migration.SequenceId) {
			continue
		}
		log.Infof("Executing migration %d", migration.SequenceId)
		if _, err := db.Exec(migration.Sql); err != nil {
			return fmt.Errorf("migration %d: %w", migration.SequenceId, err)
		}
		if _, err := db.Exec("INSERT INTO migrations (sequence_id) VALUES (?)", migration.SequenceId); err != nil {
			return err
		}
	}
	return nil
}

func initMigrationTable(db *sql.DB) error {
	_, err := db.Exec("CREATE TABLE IF NOT EXISTS migrations (sequence_id INTEGER NOT NULL PRIMARY KEY)")
	return err
}

func getAppliedMigrations(db *sql.DB) ([]int, error) {
	rows, err := db.Query("SELECT sequence_id FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var migrations []int
	for rows.Next() {
		var sequenceId int
		if err = rows.Scan(&sequenceId); err != nil {
			return nil, err
		}
		migrations = append(migrations, sequenceId)
	}
	return migrations, rows.Err()
}
