package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Migration is one versioned schema change.
type Migration struct {
	// Version is the YYYYMMDD_HHMMSS filename prefix.
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   string
	AppliedAt time.Time
}

// Migrate applies every migration in fsys not yet recorded in
// schema_migrations, oldest first, one transaction each. A failing
// migration is rolled back and stops the run; earlier ones stay applied.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	pending, err := db.pending(ctx, fsys)
	if err != nil {
		return err
	}
	for _, m := range pending {
		err := db.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.Version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the most recently applied migration.
func (db *DB) MigrateDown(ctx context.Context, fsys fs.FS) error {
	applied, err := db.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	latest := applied[len(applied)-1].Version

	all, err := LoadMigrations(fsys)
	if err != nil {
		return err
	}
	idx := sort.Search(len(all), func(i int) bool { return all[i].Version >= latest })
	if idx == len(all) || all[idx].Version != latest {
		return fmt.Errorf("migration %s not found", latest)
	}
	m := all[idx]
	if m.DownSQL == "" {
		return fmt.Errorf("migration %s has no down SQL", latest)
	}

	return db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			return fmt.Errorf("reverting %s: %w", latest, err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", latest)
		return err
	})
}

// Applied lists recorded migrations in version order.
func (db *DB) Applied(ctx context.Context) ([]AppliedMigration, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var (
			rec AppliedMigration
			at  string
		)
		if err := rows.Scan(&rec.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		rec.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (db *DB) pending(ctx context.Context, fsys fs.FS) ([]Migration, error) {
	applied, err := db.Applied(ctx)
	if err != nil {
		return nil, err
	}
	all, err := LoadMigrations(fsys)
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}
	var pending []Migration
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// LoadMigrations reads the *.sql files at the root of fsys. A nil fsys
// has no migrations. Down files without a matching up file are ignored.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string]*Migration)
	downs := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationFilename(e.Name())
		if !ok {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Clean(e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		if !up {
			downs[version] = string(data)
			continue
		}
		byVersion[version] = &Migration{Version: version, Name: name, UpSQL: string(data)}
	}

	out := make([]Migration, 0, len(byVersion))
	for v, m := range byVersion {
		m.DownSQL = downs[v]
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationFilename splits "20261017_120000_state_history.up.sql"
// into its version, description and direction.
func parseMigrationFilename(file string) (version, name string, up, ok bool) {
	base, found := strings.CutSuffix(file, ".sql")
	if !found {
		return "", "", false, false
	}
	if b, isUp := strings.CutSuffix(base, ".up"); isUp {
		base, up = b, true
	} else if b, isDown := strings.CutSuffix(base, ".down"); isDown {
		base = b
	} else {
		return "", "", false, false
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false, false
	}
	version = parts[0] + "_" + parts[1]
	name = version
	if len(parts) == 3 {
		name = parts[2]
	}
	return version, name, up, true
}
