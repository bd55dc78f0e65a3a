package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/logging"
	"github.com/DLR-TS/sumoldl/internal/schema"
)

// DetectorValue is one detector's reading for a single interval. QPKW/QLKW/
// VPKW/VLKW carry the classifier's raw per-class attributes; MergedFlow/
// MergedSpeed carry the single PKW+LKW-combined value the aggregator
// consumes, matching the original pipeline's merge-before-rollup step.
type DetectorValue struct {
	DetectorID  string
	IntervalEnd time.Time
	QPKW        sql.NullFloat64
	QLKW        sql.NullFloat64
	VPKW        sql.NullFloat64
	VLKW        sql.NullFloat64
	MergedFlow  sql.NullFloat64
	MergedSpeed sql.NullFloat64
	Quality     float64
	Provenance  string
	Fixed       bool
	ErrorPKW    int
	ErrorLKW    int
}

// Detector is a detector's static placement.
type Detector struct {
	DetectorID           string
	EdgeID               string
	Lane                 string
	PositionM            float64
	VehicleClass         string
	SpeedLimitKMH        float64
	InductionLoopGroupID string
}

// UpsertDetectors registers detectors idempotently, keyed by detector_id.
func (s *Store) UpsertDetectors(ctx context.Context, dets []Detector) error {
	if len(dets) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (detector_id, edge_id, lane, position_m, vehicle_class, speed_limit_kmh, induction_loop_group_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(detector_id) DO UPDATE SET
		   edge_id=excluded.edge_id, lane=excluded.lane,
		   position_m=excluded.position_m, vehicle_class=excluded.vehicle_class,
		   speed_limit_kmh=excluded.speed_limit_kmh,
		   induction_loop_group_id=excluded.induction_loop_group_id`,
		schema.Quote(s.schema.Detectors)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range dets {
		var limit sql.NullFloat64
		if d.SpeedLimitKMH > 0 {
			limit = sql.NullFloat64{Float64: d.SpeedLimitKMH, Valid: true}
		}
		var group sql.NullString
		if d.InductionLoopGroupID != "" {
			group = sql.NullString{String: d.InductionLoopGroupID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, d.DetectorID, d.EdgeID, d.Lane, d.PositionM, d.VehicleClass, limit, group); err != nil {
			return fmt.Errorf("upsert detector %s: %w", d.DetectorID, err)
		}
	}
	return tx.Commit()
}

// ListAllDetectors returns every registered detector, for tooling that
// walks the whole fleet (the consistency checker, admin dumps).
func (s *Store) ListAllDetectors(ctx context.Context) ([]Detector, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT detector_id, edge_id, lane, position_m, vehicle_class, speed_limit_kmh, induction_loop_group_id FROM %s`,
		schema.Quote(s.schema.Detectors)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDetectors(rows)
}

// ListDetectorsForEdge returns the detectors grouped onto edgeID.
func (s *Store) ListDetectorsForEdge(ctx context.Context, edgeID string) ([]Detector, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT detector_id, edge_id, lane, position_m, vehicle_class, speed_limit_kmh, induction_loop_group_id FROM %s WHERE edge_id = ?`,
		schema.Quote(s.schema.Detectors)), edgeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDetectors(rows)
}

func scanDetectors(rows *sql.Rows) ([]Detector, error) {
	var out []Detector
	for rows.Next() {
		var d Detector
		var lane sql.NullString
		var pos, limit sql.NullFloat64
		var group sql.NullString
		if err := rows.Scan(&d.DetectorID, &d.EdgeID, &lane, &pos, &d.VehicleClass, &limit, &group); err != nil {
			return nil, err
		}
		d.Lane = lane.String
		d.PositionM = pos.Float64
		d.SpeedLimitKMH = limit.Float64
		d.InductionLoopGroupID = group.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDetectorValues idempotently replaces every detector_values row for
// intervalEnd with values, keyed by (detector_id, interval_end). This is
// the delete-then-reinsert-inside-one-transaction pattern used throughout
// the pipeline's writers: a re-run over the same interval (the corrector's
// overlap window, a catch-up pass) must leave exactly one row per detector,
// never a duplicate.
func (s *Store) UpsertDetectorValues(ctx context.Context, intervalEnd time.Time, values []DetectorValue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE interval_end = ?`, schema.Quote(s.schema.DetectorValues)),
		intervalEnd.Unix()); err != nil {
		return fmt.Errorf("delete existing detector values: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (detector_id, interval_end, q_pkw, q_lkw, v_pkw, v_lkw, merged_flow, merged_speed, quality, provenance, fixed, error_pkw, error_lkw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, schema.Quote(s.schema.DetectorValues)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, v.DetectorID, intervalEnd.Unix(),
			v.QPKW, v.QLKW, v.VPKW, v.VLKW, v.MergedFlow, v.MergedSpeed,
			v.Quality, v.Provenance, boolToInt(v.Fixed), v.ErrorPKW, v.ErrorLKW); err != nil {
			return fmt.Errorf("insert detector value %s: %w", v.DetectorID, err)
		}
	}
	return tx.Commit()
}

// DetectorHistory returns detectorID's values in [from, to], ordered by
// interval_end ascending. Gap filling, error classification, the
// operating-status evaluation, and the checkdata pass all walk a
// detector's history through this one query shape.
func (s *Store) DetectorHistory(ctx context.Context, detectorID string, from, to time.Time) ([]DetectorValue, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT detector_id, interval_end, q_pkw, q_lkw, v_pkw, v_lkw, merged_flow, merged_speed, quality, provenance, fixed, error_pkw, error_lkw
		 FROM %s WHERE detector_id = ? AND interval_end BETWEEN ? AND ?
		 ORDER BY interval_end ASC`, schema.Quote(s.schema.DetectorValues)),
		detectorID, from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DetectorValue
	for rows.Next() {
		var v DetectorValue
		var unix int64
		var fixed int
		if err := rows.Scan(&v.DetectorID, &unix, &v.QPKW, &v.QLKW, &v.VPKW, &v.VLKW, &v.MergedFlow, &v.MergedSpeed,
			&v.Quality, &v.Provenance, &fixed, &v.ErrorPKW, &v.ErrorLKW); err != nil {
			return nil, err
		}
		v.IntervalEnd = time.Unix(unix, 0).UTC()
		v.Fixed = fixed != 0
		out = append(out, v)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logging.Logf("warning: rollback failed: %v", err)
	}
}
