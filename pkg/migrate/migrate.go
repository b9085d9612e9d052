// Package migrate applies the goose SQL migrations shipped with the binaries.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

// DefaultDir is where new migrations are written, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the compiled-in migrations, or dir on disk when it is set.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations dir: %w", err)
	}
	return os.DirFS(dir), nil
}

// Migrator runs migrations from one source against a postgres database.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewMigrator(db *sql.DB, source fs.FS, logg *logger.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

// Apply runs one of up, down, redo or status.
func (m *Migrator) Apply(ctx context.Context, command string) error {
	switch command {
	case "up":
		results, err := m.provider.Up(ctx)
		m.report(ctx, results...)
		return wrap("up", err)
	case "down":
		result, err := m.provider.Down(ctx)
		m.report(ctx, result)
		return wrap("down", err)
	case "redo":
		result, err := m.provider.Down(ctx)
		m.report(ctx, result)
		if err != nil {
			return wrap("redo", err)
		}
		result, err = m.provider.UpByOne(ctx)
		m.report(ctx, result)
		return wrap("redo", err)
	case "status":
		return m.status(ctx)
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

// To moves the schema up or down until target (YYYYMMDDHHMMSS) is current.
func (m *Migrator) To(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == version:
		return nil
	case current < version:
		results, err := m.provider.UpTo(ctx, version)
		m.report(ctx, results...)
		return wrap("up-to", err)
	default:
		results, err := m.provider.DownTo(ctx, version)
		m.report(ctx, results...)
		return wrap("down-to", err)
	}
}

func (m *Migrator) status(ctx context.Context) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return wrap("status", err)
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"path":    st.Source.Path,
			"state":   string(st.State),
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		m.logg.Info(m.logg.WithFields(ctx, fields), "migration.status")
	}
	return nil
}

func (m *Migrator) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		m.logg.Info(m.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"path":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration.applied")
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
