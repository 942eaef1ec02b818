package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFiles embed.FS

type Migration struct {
	Version uint
	Name    string
}

// Status is the schema state of one database.
type Status struct {
	Current    uint
	Dirty      bool
	Migrations []Migration
}

// Applied reports whether m is at or below the current version.
func (s Status) Applied(m Migration) bool {
	return m.Version <= s.Current
}

// Migrate applies pending migrations and returns how many ran.
func (db *DB) Migrate() (int, error) {
	migrations, err := loadMigrations(db.dbType)
	if err != nil {
		return 0, err
	}
	m, release, err := db.newMigrate()
	if err != nil {
		return 0, err
	}
	defer release()

	before, _, err := version(m)
	if err != nil {
		return 0, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to migrate database: %w", err)
	}
	after, _, err := version(m)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, mig := range migrations {
		if mig.Version > before && mig.Version <= after {
			n++
		}
	}
	return n, nil
}

// MigrationStatus reports the current version and every known migration.
func (db *DB) MigrationStatus() (Status, error) {
	migrations, err := loadMigrations(db.dbType)
	if err != nil {
		return Status{}, err
	}
	m, release, err := db.newMigrate()
	if err != nil {
		return Status{}, err
	}
	defer release()

	current, dirty, err := version(m)
	if err != nil {
		return Status{}, err
	}
	return Status{Current: current, Dirty: dirty, Migrations: migrations}, nil
}

func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, dirty, nil
}

// newMigrate builds a migrate instance over the shared connection. release
// frees what the instance holds without closing db.
func (db *DB) newMigrate() (*migrate.Migrate, func(), error) {
	source, err := iofs.New(migrationFiles, path.Join("migrations", db.dbType))
	if err != nil {
		return nil, nil, fmt.Errorf("no migrations for %s: %w", db.dbType, err)
	}

	var driver migratedb.Driver
	switch db.dbType {
	case "sqlite":
		driver, err = sqlite.WithInstance(db.conn, &sqlite.Config{})
	case "postgres":
		driver, err = pgxmigrate.WithInstance(db.conn, &pgxmigrate.Config{})
	default:
		err = fmt.Errorf("unsupported database type: %s", db.dbType)
	}
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("failed to create %s migration driver: %w", db.dbType, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, db.dbType, driver)
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{logger: slog.Default().With("component", "migrate")}

	release := func() {
		// The sqlite driver's Close closes db itself; the pgx driver only
		// returns its dedicated connection.
		if db.dbType == "postgres" {
			m.Close()
			return
		}
		source.Close()
	}
	return m, release, nil
}

// loadMigrations lists a dialect's up migrations, ordered by version. Files
// are named NNNNNN_description.up.sql.
func loadMigrations(dbType string) ([]Migration, error) {
	dir := path.Join("migrations", dbType)
	entries, err := fs.ReadDir(migrationFiles, dir)
	if err != nil {
		return nil, fmt.Errorf("no migrations for %s: %w", dbType, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if entry.IsDir() || !ok {
			continue
		}
		raw, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("invalid migration filename: %s", entry.Name())
		}
		version, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version in %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{Version: uint(version), Name: entry.Name()})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return false
}
