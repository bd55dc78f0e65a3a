package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/schema"
)

// EdgeValue is one edge's aggregated, fused, or extrapolated reading for a
// single interval; the three downstream tables share this shape, only the
// table name and (for extrapolated values) the GEH column differ.
type EdgeValue struct {
	EdgeID      string
	IntervalEnd time.Time
	Flow        sql.NullFloat64
	Speed       sql.NullFloat64
	Quality     float64
	Coverage    float64
	GEH         sql.NullFloat64
}

// UpsertEdgeValues replaces the aggregator's per-edge rollup for intervalEnd.
func (s *Store) UpsertEdgeValues(ctx context.Context, intervalEnd time.Time, values []EdgeValue) error {
	return s.upsertEdgeTable(ctx, s.schema.EdgeValues, intervalEnd, values, true)
}

// UpsertFusedValues replaces the fusion engine's per-edge output for intervalEnd.
func (s *Store) UpsertFusedValues(ctx context.Context, intervalEnd time.Time, values []EdgeValue) error {
	return s.upsertEdgeTable(ctx, s.schema.FusedValues, intervalEnd, values, false)
}

// UpsertExtrapolatedValues replaces the extrapolator's per-edge output for
// intervalEnd, including the GEH the feedback predictor computed.
func (s *Store) UpsertExtrapolatedValues(ctx context.Context, intervalEnd time.Time, values []EdgeValue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE interval_end = ?`, schema.Quote(s.schema.Extrapolated)),
		intervalEnd.Unix()); err != nil {
		return fmt.Errorf("delete existing extrapolated values: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (edge_id, interval_end, flow, speed, quality, geh) VALUES (?, ?, ?, ?, ?, ?)`,
		schema.Quote(s.schema.Extrapolated)))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, v.EdgeID, intervalEnd.Unix(), v.Flow, v.Speed, v.Quality, v.GEH); err != nil {
			return fmt.Errorf("insert extrapolated value %s: %w", v.EdgeID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) upsertEdgeTable(ctx context.Context, table string, intervalEnd time.Time, values []EdgeValue, withCoverage bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	quoted := schema.Quote(table)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE interval_end = ?`, quoted),
		intervalEnd.Unix()); err != nil {
		return fmt.Errorf("delete existing %s: %w", table, err)
	}

	var insertSQL string
	if withCoverage {
		insertSQL = fmt.Sprintf(`INSERT INTO %s (edge_id, interval_end, flow, speed, quality, coverage) VALUES (?, ?, ?, ?, ?, ?)`, quoted)
	} else {
		insertSQL = fmt.Sprintf(`INSERT INTO %s (edge_id, interval_end, flow, speed, quality) VALUES (?, ?, ?, ?, ?)`, quoted)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range values {
		var execErr error
		if withCoverage {
			_, execErr = stmt.ExecContext(ctx, v.EdgeID, intervalEnd.Unix(), v.Flow, v.Speed, v.Quality, v.Coverage)
		} else {
			_, execErr = stmt.ExecContext(ctx, v.EdgeID, intervalEnd.Unix(), v.Flow, v.Speed, v.Quality)
		}
		if execErr != nil {
			return fmt.Errorf("insert %s row %s: %w", table, v.EdgeID, execErr)
		}
	}
	return tx.Commit()
}

// EdgeHistory returns edgeID's rows across [from, to] from the table that
// source names: "aggregated" (edge values), "fused", or "extrapolated",
// each mapped to its table through the store's schema. The extrapolator's periodicity predictor needs this to reach
// back 7/14/21 days for the same weekday and time of day.
func (s *Store) EdgeHistory(ctx context.Context, source string, edgeID string, from, to time.Time) ([]EdgeValue, error) {
	table, err := s.tableFor(source)
	if err != nil {
		return nil, err
	}
	geh := "NULL"
	if source == "extrapolated" {
		geh = "geh"
	}
	cov := "0"
	if source == "aggregated" {
		cov = "coverage"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT edge_id, interval_end, flow, speed, quality, %s, %s FROM %s
		 WHERE edge_id = ? AND interval_end BETWEEN ? AND ? ORDER BY interval_end ASC`,
		cov, geh, schema.Quote(table)), edgeID, from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EdgeValue
	for rows.Next() {
		var v EdgeValue
		var unix int64
		if err := rows.Scan(&v.EdgeID, &unix, &v.Flow, &v.Speed, &v.Quality, &v.Coverage, &v.GEH); err != nil {
			return nil, err
		}
		v.IntervalEnd = time.Unix(unix, 0).UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) tableFor(source string) (string, error) {
	switch source {
	case "aggregated":
		return s.schema.EdgeValues, nil
	case "fused":
		return s.schema.FusedValues, nil
	case "extrapolated":
		return s.schema.Extrapolated, nil
	default:
		return "", fmt.Errorf("unknown edge value source %q", source)
	}
}
