package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/artdr/internal/params"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial layout (no params_hash, 2-D points only)
// 1 - Added configs.params_hash (backfilled) and projection_points.z
const currentSchemaVersion = 1

// createdAtLayout is the UTC timestamp format of configs.created_at.
const createdAtLayout = "2006-01-02 15:04:05"

// Store provides durable storage for experiment runs.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// dsn enables foreign keys per connection. A path that already carries
// query parameters is left alone.
func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on"
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx runs fn in a transaction. The transaction is rolled back on any
// error, so fn never leaves partial writes behind.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *Store) createdAt() string {
	return s.now().UTC().Format(createdAtLayout)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 upgrades databases created before params hashing and 3-D
// points. New databases get both columns from schema.sql; older ones need
// them added and every existing row's params re-encoded canonically.
func migrateToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v1: begin tx: %w", err)
	}
	defer tx.Rollback()

	hasHash, err := hasColumn(tx, "configs", "params_hash")
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if !hasHash {
		if _, err := tx.Exec(`ALTER TABLE configs ADD COLUMN params_hash TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("migrate to v1: add params_hash: %w", err)
		}
	}

	hasZ, err := hasColumn(tx, "projection_points", "z")
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if !hasZ {
		if _, err := tx.Exec(`ALTER TABLE projection_points ADD COLUMN z REAL`); err != nil {
			return fmt.Errorf("migrate to v1: add z: %w", err)
		}
	}

	if err := backfillParamsHash(tx); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}

	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_configs_params_hash ON configs(params_hash)`); err != nil {
		return fmt.Errorf("migrate to v1: index params_hash: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate to v1: commit: %w", err)
	}
	return nil
}

// backfillParamsHash canonicalizes params_json and sets params_hash for
// rows that lack a hash. Rows whose params cannot be decoded are left as
// they are.
func backfillParamsHash(tx *sql.Tx) error {
	rows, err := tx.Query(`SELECT config_id, params_json FROM configs WHERE params_hash = ''`)
	if err != nil {
		return fmt.Errorf("scan params: %w", err)
	}

	type fix struct {
		id        int64
		canonical string
		hash      string
	}
	var fixes []fix
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("scan params: %w", err)
		}
		p, err := params.Decode(raw)
		if err != nil {
			continue
		}
		enc, err := params.Encode(p)
		if err != nil {
			continue
		}
		hash, err := params.Hash(p)
		if err != nil {
			continue
		}
		fixes = append(fixes, fix{id: id, canonical: enc, hash: hash})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate params: %w", err)
	}
	rows.Close()

	for _, f := range fixes {
		if _, err := tx.Exec(`UPDATE configs SET params_json = ?, params_hash = ? WHERE config_id = ?`,
			f.canonical, f.hash, f.id); err != nil {
			return fmt.Errorf("backfill config %d: %w", f.id, err)
		}
	}
	return nil
}

func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("table info %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
