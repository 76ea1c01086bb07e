package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/artdr/internal/errdefs"
)

// PointInput is one projected point to save. Z is set only for 3-D runs.
type PointInput struct {
	Filename string
	Artist   string
	X, Y     float64
	Z        *float64
}

// Point is a stored projection point.
type Point struct {
	ID       int64
	Filename string
	Artist   string
	ConfigID int64
	X, Y     float64
	Z        *float64
}

// SavePoints inserts all points for a config in one transaction. Either
// every point is stored or none is.
//
// Fails with StorageIntegrityError when the config does not exist, when a
// filename has no embedding, or when the config would end up with more
// points than its subset_size.
func (s *Store) SavePoints(ctx context.Context, configID int64, pts []PointInput) error {
	for i, p := range pts {
		if !finite(p.X) || !finite(p.Y) || (p.Z != nil && !finite(*p.Z)) {
			return fmt.Errorf("save points: %w", errdefs.Validation("points", "point %d (%s) has a non-finite coordinate", i, p.Filename))
		}
	}

	return s.withTx(ctx, "save points", func(tx *sql.Tx) error {
		idStr := strconv.FormatInt(configID, 10)

		var size int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(subset_size, 0) FROM configs WHERE config_id = ?`, configID,
		).Scan(&size)
		if err == sql.ErrNoRows {
			return &errdefs.StorageIntegrityError{Ref: "config_id", Value: idStr, Message: "config does not exist"}
		}
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}

		var existing int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM projection_points WHERE config_id = ?`, configID,
		).Scan(&existing); err != nil {
			return fmt.Errorf("count points: %w", err)
		}
		if size > 0 && existing+len(pts) > size {
			return &errdefs.StorageIntegrityError{
				Ref:     "subset_size",
				Value:   strconv.Itoa(size),
				Message: fmt.Sprintf("config %d would hold %d points", configID, existing+len(pts)),
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO projection_points (filename, artist, config_id, x, y, z)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, p := range pts {
			var z any
			if p.Z != nil {
				z = *p.Z
			}
			if _, err := stmt.ExecContext(ctx, p.Filename, p.Artist, configID, p.X, p.Y, z); err != nil {
				if isForeignKeyViolation(err) {
					return &errdefs.StorageIntegrityError{
						Ref:     "filename",
						Value:   p.Filename,
						Message: "embedding does not exist",
						Err:     err,
					}
				}
				return fmt.Errorf("insert %s: %w", p.Filename, err)
			}
		}
		return nil
	})
}

// PointsForConfig returns a config's points ordered by point id.
func (s *Store) PointsForConfig(ctx context.Context, configID int64) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, artist, config_id, x, y, z
		FROM projection_points
		WHERE config_id = ?
		ORDER BY id ASC
	`, configID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	pts := []Point{}
	for rows.Next() {
		var p Point
		var z sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Filename, &p.Artist, &p.ConfigID, &p.X, &p.Y, &z); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if z.Valid {
			p.Z = &z.Float64
		}
		pts = append(pts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points: %w", err)
	}
	return pts, nil
}

// isForeignKeyViolation reports whether err is SQLite's FOREIGN KEY
// constraint failure.
func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
