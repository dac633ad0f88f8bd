package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const schemaPlaceholder = "{{schema}}"

// Migration is one embedded SQL file. Version is the file name without extension.
type Migration struct {
	Version    string
	Statements []string
}

type migrationConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LoadMigrations returns the embedded migrations for schema, ordered by version.
func LoadMigrations(schema string) ([]Migration, error) {
	if schema == "" {
		schema = defaultSchema
	}
	quoted := pgx.Identifier{schema}.Sanitize()

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		raw, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		body := strings.ReplaceAll(string(raw), schemaPlaceholder, quoted)
		migrations = append(migrations, Migration{
			Version:    strings.TrimSuffix(path.Base(name), ".sql"),
			Statements: splitStatements(body),
		})
	}
	return migrations, nil
}

// Migrate applies every embedded migration not yet recorded in schema_migrations.
// Each migration runs in its own transaction together with its bookkeeping row.
func Migrate(ctx context.Context, conn migrationConn, schema string, log *zap.Logger) (int, error) {
	migrations, err := LoadMigrations(schema)
	if err != nil {
		return 0, err
	}
	if schema == "" {
		schema = defaultSchema
	}
	quoted := pgx.Identifier{schema}.Sanitize()
	ledger := quoted + ".schema_migrations"

	if _, err := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoted); err != nil {
		return 0, fmt.Errorf("create schema: %w", err)
	}
	if _, err := conn.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+ledger+
		" (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())"); err != nil {
		return 0, fmt.Errorf("create migration ledger: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var done bool
		if err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+ledger+" WHERE version = $1)", m.Version).Scan(&done); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", m.Version, err)
		}
		if done {
			continue
		}

		if err := applyMigration(ctx, conn, ledger, m); err != nil {
			return applied, err
		}
		applied++
		log.Info("applied migration", zap.String("version", m.Version), zap.String("schema", schema))
	}
	return applied, nil
}

func applyMigration(ctx context.Context, conn migrationConn, ledger string, m Migration) (err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, stmt := range m.Statements {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s: %w", m.Version, err)
		}
	}
	if _, err = tx.Exec(ctx, "INSERT INTO "+ledger+" (version) VALUES ($1)", m.Version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Version, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Version, err)
	}
	return nil
}

// splitStatements breaks a migration file on semicolons. Migrations must not
// contain semicolons inside literals or function bodies.
func splitStatements(body string) []string {
	parts := strings.Split(body, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if stmt := strings.TrimSpace(p); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
