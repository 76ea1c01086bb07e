package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/params"
)

// MaxSubsetSize bounds configs.subset_size.
const MaxSubsetSize = 500

// ConfigInput is everything a caller supplies for a config row.
type ConfigInput struct {
	Method         string
	SubsetStrategy string
	SubsetSize     int
	Params         params.Params
	Runtime        time.Duration
}

// Config is a stored experiment configuration.
type Config struct {
	ID             int64
	Method         string
	SubsetStrategy string
	SubsetSize     int
	Params         params.Params
	ParamsHash     string
	Runtime        time.Duration

	// CreatedAt is UTC, formatted "YYYY-MM-DD HH:MM:SS".
	CreatedAt string
}

// ConfigSummary is a Config plus its stored point count.
type ConfigSummary struct {
	Config
	Points int
}

// ListFilter narrows ListConfigs. Zero fields match everything.
type ListFilter struct {
	Method     string
	ParamsHash string
}

// validate checks a ConfigInput and returns its canonical params encoding
// and hash.
func (in ConfigInput) validate() (canonical, hash string, err error) {
	if in.Method == "" {
		return "", "", errdefs.Validation("method", "must not be empty")
	}
	if in.SubsetStrategy == "" {
		return "", "", errdefs.Validation("subset_strategy", "must not be empty")
	}
	if in.SubsetSize < 1 || in.SubsetSize > MaxSubsetSize {
		return "", "", errdefs.Validation("subset_size", "must be in [1,%d], got %d", MaxSubsetSize, in.SubsetSize)
	}
	if in.Runtime < 0 {
		return "", "", errdefs.Validation("runtime", "must not be negative")
	}

	p := in.Params
	if p == nil {
		p = params.Params{}
	}
	canonical, err = params.Encode(p)
	if err != nil {
		return "", "", errdefs.Validation("params", "%v", err)
	}
	hash, err = params.Hash(p)
	if err != nil {
		return "", "", errdefs.Validation("params", "%v", err)
	}
	return canonical, hash, nil
}

// CreateConfig inserts a new config and returns its storage-assigned id.
func (s *Store) CreateConfig(ctx context.Context, in ConfigInput) (int64, error) {
	canonical, hash, err := in.validate()
	if err != nil {
		return 0, fmt.Errorf("create config: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO configs
		(method, subset_strategy, subset_size, params_json, params_hash, runtime, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		in.Method,
		in.SubsetStrategy,
		in.SubsetSize,
		canonical,
		hash,
		in.Runtime.Seconds(),
		s.createdAt(),
	)
	if err != nil {
		return 0, fmt.Errorf("create config: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create config: last insert id: %w", err)
	}
	return id, nil
}

// UpsertConfig writes the full row for id, replacing any existing row.
// Replacing deletes the old row first, so its points are removed by
// cascade and created_at is fresh. Fields are never merged.
//
// Two concurrent upserts of the same id are last-writer-wins.
func (s *Store) UpsertConfig(ctx context.Context, id int64, in ConfigInput) error {
	if id < 1 {
		return fmt.Errorf("upsert config: %w", errdefs.Validation("config_id", "must be positive, got %d", id))
	}
	canonical, hash, err := in.validate()
	if err != nil {
		return fmt.Errorf("upsert config: %w", err)
	}

	return s.withTx(ctx, "upsert config", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM configs WHERE config_id = ?`, id); err != nil {
			return fmt.Errorf("delete old row: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO configs
			(config_id, method, subset_strategy, subset_size, params_json, params_hash, runtime, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id,
			in.Method,
			in.SubsetStrategy,
			in.SubsetSize,
			canonical,
			hash,
			in.Runtime.Seconds(),
			s.createdAt(),
		)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
}

// GetConfig reads one config. A missing id is a NotFoundError.
func (s *Store) GetConfig(ctx context.Context, id int64) (Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+configColumns+`
		FROM configs
		WHERE config_id = ?
	`, id)

	c, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return Config{}, &errdefs.NotFoundError{Entity: "config", Key: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return Config{}, fmt.Errorf("get config: %w", err)
	}
	return c, nil
}

// ListConfigs returns configs ordered by id, each with its point count.
func (s *Store) ListConfigs(ctx context.Context, f ListFilter) ([]ConfigSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+configColumns+`,
		       (SELECT COUNT(*) FROM projection_points p WHERE p.config_id = configs.config_id)
		FROM configs
		WHERE (? = '' OR method = ?)
		  AND (? = '' OR params_hash = ?)
		ORDER BY config_id ASC
	`, f.Method, f.Method, f.ParamsHash, f.ParamsHash)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	out := []ConfigSummary{}
	for rows.Next() {
		var cs ConfigSummary
		c, err := scanConfig(rows, &cs.Points)
		if err != nil {
			return nil, fmt.Errorf("list configs: %w", err)
		}
		cs.Config = c
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list configs: iterate: %w", err)
	}
	return out, nil
}

// DeleteConfig removes a config; its points are removed by cascade.
// Returns the number of points removed.
func (s *Store) DeleteConfig(ctx context.Context, id int64) (int64, error) {
	var removed int64
	err := s.withTx(ctx, "delete config", func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM projection_points WHERE config_id = ?`, id,
		).Scan(&removed); err != nil {
			return fmt.Errorf("count points: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM configs WHERE config_id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return &errdefs.NotFoundError{Entity: "config", Key: strconv.FormatInt(id, 10)}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// configColumns tolerates NULLs left by databases created before the
// columns were NOT NULL.
const configColumns = `config_id, method,
		       COALESCE(subset_strategy, ''), COALESCE(subset_size, 0),
		       params_json, params_hash,
		       COALESCE(runtime, 0), COALESCE(created_at, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner, extra ...any) (Config, error) {
	var c Config
	var raw string
	var runtime float64
	dest := append([]any{
		&c.ID, &c.Method, &c.SubsetStrategy, &c.SubsetSize,
		&raw, &c.ParamsHash, &runtime, &c.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Config{}, err
	}

	p, err := params.Decode(raw)
	if err != nil {
		return Config{}, &errdefs.StorageIntegrityError{
			Ref:     "config_id",
			Value:   strconv.FormatInt(c.ID, 10),
			Message: "stored params are not valid",
			Err:     err,
		}
	}
	c.Params = p
	c.Runtime = time.Duration(math.Round(runtime * float64(time.Second)))
	return c, nil
}
