package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/schema"
)

// RawSourceValue is one edge's reading from a single data source (loop,
// fcd, simulation, prediction) for one interval, before fusion combines
// the sources the spec treats as independent inputs.
type RawSourceValue struct {
	Source      string
	EdgeID      string
	IntervalEnd time.Time
	Flow        sql.NullFloat64
	Speed       sql.NullFloat64
	Quality     float64
	Coverage    float64
}

// UpsertRawSourceValues idempotently replaces source's rows for intervalEnd.
func (s *Store) UpsertRawSourceValues(ctx context.Context, source string, intervalEnd time.Time, values []RawSourceValue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE source = ? AND interval_end = ?`, schema.Quote(s.schema.RawSourceValues)),
		source, intervalEnd.Unix()); err != nil {
		return fmt.Errorf("delete existing raw source values: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (source, edge_id, interval_end, flow, speed, quality, coverage) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		schema.Quote(s.schema.RawSourceValues)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, source, v.EdgeID, intervalEnd.Unix(), v.Flow, v.Speed, v.Quality, v.Coverage); err != nil {
			return fmt.Errorf("insert raw source value %s/%s: %w", source, v.EdgeID, err)
		}
	}
	return tx.Commit()
}

// RawSourceValues returns every edge's reading from source for intervalEnd,
// keyed by edge ID. Fusion reads the fcd and visual sources this way before
// reconciling them with the loop aggregate.
func (s *Store) RawSourceValues(ctx context.Context, source string, intervalEnd time.Time) (map[string]RawSourceValue, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT edge_id, flow, speed, quality, coverage FROM %s WHERE source = ? AND interval_end = ?`,
		schema.Quote(s.schema.RawSourceValues)), source, intervalEnd.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]RawSourceValue{}
	for rows.Next() {
		v := RawSourceValue{Source: source, IntervalEnd: intervalEnd}
		if err := rows.Scan(&v.EdgeID, &v.Flow, &v.Speed, &v.Quality, &v.Coverage); err != nil {
			return nil, err
		}
		out[v.EdgeID] = v
	}
	return out, rows.Err()
}
