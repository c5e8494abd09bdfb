package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Migration is one NNN_name.sql schema file
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Migrator applies schema files in version order and records each one in
// schema_migrations together with a checksum of its contents.
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// Applied returns the recorded checksum per applied version
func (m *Migrator) Applied(ctx context.Context) (map[int]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version  int
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

// RunMigrations applies every pending migration found in fsys. Pass
// migrations.FS for the embedded schema or os.DirFS for a directory. An
// applied file whose contents changed since is reported, not re-run.
func (m *Migrator) RunMigrations(ctx context.Context, fsys fs.FS) error {
	if err := m.ensureTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	var ran int
	for _, mig := range migrations {
		if sum, ok := applied[mig.Version]; ok {
			if sum != "" && sum != mig.Checksum {
				m.logger.Warn("Applied migration changed on disk",
					zap.Int("version", mig.Version),
					zap.String("name", mig.Name))
			}
			continue
		}

		m.logger.Info("Applying migration",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name))

		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
		}
		ran++
	}

	m.logger.Info("Database schema up to date",
		zap.Int("available", len(migrations)),
		zap.Int("applied", ran))
	return nil
}

// LoadMigrations reads and orders the .sql files in fsys. Two files with the
// same version number are an error.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	var migrations []Migration
	seen := make(map[int]string)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}

		mig, err := parseMigration(path.Base(p))
		if err != nil {
			return err
		}
		if prev, dup := seen[mig.Version]; dup {
			return fmt.Errorf("migration version %d used by both %s and %s", mig.Version, prev, path.Base(p))
		}
		seen[mig.Version] = path.Base(p)

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", p, err)
		}
		sum := sha256.Sum256(content)
		mig.SQL = string(content)
		mig.Checksum = hex.EncodeToString(sum[:])

		migrations = append(migrations, mig)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigration splits "001_initial_schema.sql" into version 1 and name
// "initial_schema".
func parseMigration(filename string) (Migration, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d", &version); err != nil || version <= 0 {
		return Migration{}, fmt.Errorf("invalid migration filename format: %s", filename)
	}

	var name string
	if parts := strings.SplitN(filename, "_", 2); len(parts) == 2 {
		name = strings.TrimSuffix(parts[1], ".sql")
	}
	return Migration{Version: version, Name: name}, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	return m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
			mig.Version, mig.Name, mig.Checksum)
		if err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}
