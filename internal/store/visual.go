package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/schema"
)

// VisualValue is one FCD camera's corrected flow/speed reading for an edge,
// the counterpart of a loop detector's DetectorValue in the camera-based
// correction path.
type VisualValue struct {
	CameraID    string
	EdgeID      string
	IntervalEnd time.Time
	Flow        sql.NullFloat64
	Speed       sql.NullFloat64
	Quality     float64
}

// UpsertVisualValues idempotently replaces every camera row for intervalEnd.
func (s *Store) UpsertVisualValues(ctx context.Context, intervalEnd time.Time, values []VisualValue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE interval_end = ?`, schema.Quote(s.schema.VisualValues)), intervalEnd.Unix()); err != nil {
		return fmt.Errorf("delete existing visual values: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (camera_id, edge_id, interval_end, flow, speed, quality) VALUES (?, ?, ?, ?, ?, ?)`,
		schema.Quote(s.schema.VisualValues)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, v.CameraID, v.EdgeID, intervalEnd.Unix(), v.Flow, v.Speed, v.Quality); err != nil {
			return fmt.Errorf("insert visual value %s: %w", v.CameraID, err)
		}
	}
	return tx.Commit()
}

// VisualValuesForEdge returns every camera row observed for edgeID at
// intervalEnd, for per-camera inspection; fusion reads the per-edge rollup
// from raw_source_values instead.
func (s *Store) VisualValuesForEdge(ctx context.Context, edgeID string, intervalEnd time.Time) ([]VisualValue, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT camera_id, edge_id, flow, speed, quality FROM %s WHERE edge_id = ? AND interval_end = ?`,
		schema.Quote(s.schema.VisualValues)), edgeID, intervalEnd.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VisualValue
	for rows.Next() {
		v := VisualValue{IntervalEnd: intervalEnd}
		if err := rows.Scan(&v.CameraID, &v.EdgeID, &v.Flow, &v.Speed, &v.Quality); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
