package upgrades

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type Dialect int

const (
	SQLite Dialect = iota
	MySQL
	Postgres
)

func (dialect Dialect) String() string {
	switch dialect {
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	default:
		return ""
	}
}

// Latest is the schema version every upgrade path converges on.
const Latest = 5

type upgradeFunc func(context.Context, *sql.Tx, Context) error

// Context is passed to each upgrade step.
type Context struct {
	Dialect Dialect
	DB      *sql.DB
	Log     zerolog.Logger
}

type upgrade struct {
	message string
	fn      upgradeFunc
}

var upgrades [Latest]upgrade

var ErrUnsupportedVersion = errors.New("unsupported database version")

// GetVersion reads the stored schema version. ok is false when the version
// table has no row yet, which only happens on a fresh database.
func GetVersion(ctx context.Context, db *sql.DB) (version int, ok bool, err error) {
	err = db.QueryRowContext(ctx, `SELECT "dbVersion" FROM "dbVersion" LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	return version, true, nil
}

// SetVersion replaces the singleton version row.
func SetVersion(ctx context.Context, db *sql.DB, version int) error {
	_, err := db.ExecContext(ctx, `DELETE FROM "dbVersion"`)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO "dbVersion" ("dbVersion") VALUES (%d)`, version))
	return err
}

// Run walks the upgrade steps from the stored version to Latest, each step
// in its own transaction. The stored version is only replaced after every
// step has succeeded, so a failed run leaves the database at its
// pre-migration version and the next connect retries from there.
func Run(ctx context.Context, log zerolog.Logger, dialect Dialect, db *sql.DB, from int) error {
	if from > Latest {
		return fmt.Errorf("%w: v%d is newer than v%d", ErrUnsupportedVersion, from, Latest)
	} else if from < 0 {
		return fmt.Errorf("%w: v%d", ErrUnsupportedVersion, from)
	}
	log.Info().Int("from", from).Int("latest", Latest).Msg("Upgrading database schema")
	for i, step := range upgrades[from:] {
		version := from + i + 1
		log.Info().Int("version", version).Str("description", step.message).Msg("Applying schema upgrade")
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err = step.fn(ctx, tx, Context{dialect, db, log}); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upgrade to v%d: %w", version, err)
		}
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("upgrade to v%d: %w", version, err)
		}
	}
	return SetVersion(ctx, db, Latest)
}

// addColumn tolerates the column already existing, so a rerun after a
// partially failed migration doesn't trip over its own earlier progress.
func addColumn(ctx context.Context, tx *sql.Tx, table, definition string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %s`, table, definition))
	if err != nil && isDuplicateColumn(err) {
		return nil
	}
	return err
}

func isDuplicateColumn(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "duplicate column") || strings.Contains(message, "already exists")
}

// listMsgTables enumerates the provisioned per-conversation message tables
// through the registry, so upgrades never have to scan the database catalog.
func listMsgTables(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT "tableName" FROM "msgTableName"`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var table string
		if err = rows.Scan(&table); err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, rows.Err()
}

func placeholder(dialect Dialect, n int) string {
	if dialect == MySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}
