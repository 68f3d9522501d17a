package facts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Coordinate is a named point on the X/Z plane.
type Coordinate struct {
	Name string
	X    int
	Z    int
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PutCoordinate stores c, replacing an existing entry with the same name.
// A replaced entry keeps its original position in listings.
func (s *Store) PutCoordinate(ctx context.Context, c Coordinate) error {
	name := normalizeName(c.Name)
	if name == "" {
		return fmt.Errorf("coordinate name is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coordinates (name, x, z, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET x = excluded.x, z = excluded.z, updated_at = excluded.updated_at`,
		name, c.X, c.Z, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store coordinate %s: %w", name, err)
	}
	return nil
}

// DeleteCoordinate removes name and reports whether it existed.
func (s *Store) DeleteCoordinate(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM coordinates WHERE name = ?`, normalizeName(name))
	if err != nil {
		return false, fmt.Errorf("failed to delete coordinate %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete coordinate %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *Store) GetCoordinate(ctx context.Context, name string) (Coordinate, error) {
	var c Coordinate
	err := s.db.QueryRowContext(ctx,
		`SELECT name, x, z FROM coordinates WHERE name = ?`, normalizeName(name),
	).Scan(&c.Name, &c.X, &c.Z)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Coordinate{}, ErrNotFound
		}
		return Coordinate{}, fmt.Errorf("failed to load coordinate %s: %w", name, err)
	}
	return c, nil
}

// ListCoordinates returns every coordinate in insertion order.
func (s *Store) ListCoordinates(ctx context.Context) ([]Coordinate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, x, z FROM coordinates ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list coordinates: %w", err)
	}
	defer rows.Close()

	var out []Coordinate
	for rows.Next() {
		var c Coordinate
		if err := rows.Scan(&c.Name, &c.X, &c.Z); err != nil {
			return nil, fmt.Errorf("failed to scan coordinate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
