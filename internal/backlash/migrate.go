package backlash

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/*.sql
var migrationsFS embed.FS

// latestSchemaVersion is the version schemaSQL corresponds to. Bump it
// by hand alongside adding a new migrations/NNNN_*.sql file.
const latestSchemaVersion = 1

func migrationsSubFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}

// applyPragmas sets the WAL/concurrency pragmas every connection to the
// backlash log database should run with, mirroring the rest of this
// codebase's sqlite setup.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("backlash: %q: %w", p, err)
		}
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[backlash migrate] "+format, v...)
}
func (migrateLogger) Verbose() bool { return false }

// newMigrate builds a migrate.Migrate bound to db's embedded migration
// source. The caller owns db's lifecycle; m must not be Closed (the
// sqlite driver's Close would close the shared *sql.DB).
func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	subFS, err := migrationsSubFS()
	if err != nil {
		return nil, fmt.Errorf("backlash: migrations sub-fs: %w", err)
	}
	sourceDriver, err := iofs.New(subFS, ".")
	if err != nil {
		return nil, fmt.Errorf("backlash: iofs source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("backlash: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("backlash: migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateToLatest brings db to the latest schema. A brand-new database
// is bootstrapped directly from the embedded schemaSQL and baselined
// at the latest migration version, the fast path the teacher's db.go
// takes for fresh databases; an existing one runs the normal migration
// chain. Unlike db.go this skips schema-drift similarity scoring
// against schema.sql — overkill for a single-migration log table, see
// DESIGN.md.
func migrateToLatest(db *sql.DB) error {
	fresh, err := isFreshDatabase(db)
	if err != nil {
		return err
	}

	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	if fresh {
		if _, err := db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("backlash: bootstrap schema: %w", err)
		}
		if err := m.Force(latestSchemaVersion); err != nil {
			return fmt.Errorf("backlash: baseline at v%d: %w", latestSchemaVersion, err)
		}
		return nil
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("backlash: migrate up: %w", err)
	}
	return nil
}

func isFreshDatabase(db *sql.DB) (bool, error) {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='moves'`).Scan(&name)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("backlash: checking for existing schema: %w", err)
	}
	return false, nil
}
