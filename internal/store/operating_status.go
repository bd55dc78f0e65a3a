package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/schema"
)

// OperatingStatus is one detector's evaluation-interval health category,
// computed from the fraction of its readings that cleared the quality
// thresholds over the interval.
type OperatingStatus struct {
	DetectorID  string
	IntervalEnd time.Time
	Category    string
	Quality     float64
	Delay       sql.NullFloat64
	Entries     int
}

// OperatingStatusGroup is the induction-loop-group rollup of OperatingStatus:
// the worst (minimum) quality and the slackest (maximum) reporting delay
// across every detector in the group.
type OperatingStatusGroup struct {
	GroupID     string
	IntervalEnd time.Time
	Quality     float64
	Delay       sql.NullFloat64
}

// UpsertOperatingStatus replaces the per-detector health rows for
// intervalEnd, then re-derives the per-group rollup from groupOf.
func (s *Store) UpsertOperatingStatus(ctx context.Context, intervalEnd time.Time, rows []OperatingStatus, groupOf map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE interval_end = ?`, schema.Quote(s.schema.OperatingStatus)), intervalEnd.Unix()); err != nil {
		return fmt.Errorf("delete existing operating status: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (detector_id, interval_end, category, quality, delay, entries) VALUES (?, ?, ?, ?, ?, ?)`,
		schema.Quote(s.schema.OperatingStatus)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	groupQuality := map[string]float64{}
	groupQualitySet := map[string]bool{}
	groupDelay := map[string]float64{}
	groupDelaySet := map[string]bool{}

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.DetectorID, intervalEnd.Unix(), r.Category, r.Quality, r.Delay, r.Entries); err != nil {
			return fmt.Errorf("insert operating status %s: %w", r.DetectorID, err)
		}
		gid := groupOf[r.DetectorID]
		if gid == "" {
			continue
		}
		if !groupQualitySet[gid] || r.Quality < groupQuality[gid] {
			groupQuality[gid] = r.Quality
			groupQualitySet[gid] = true
		}
		if r.Delay.Valid && (!groupDelaySet[gid] || r.Delay.Float64 > groupDelay[gid]) {
			groupDelay[gid] = r.Delay.Float64
			groupDelaySet[gid] = true
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE interval_end = ?`, schema.Quote(s.schema.OperatingStatusAgg)), intervalEnd.Unix()); err != nil {
		return fmt.Errorf("delete existing operating status group: %w", err)
	}
	groupStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (induction_loop_group_id, interval_end, quality, delay) VALUES (?, ?, ?, ?)`,
		schema.Quote(s.schema.OperatingStatusAgg)))
	if err != nil {
		return err
	}
	defer groupStmt.Close()

	for gid, q := range groupQuality {
		var delay sql.NullFloat64
		if groupDelaySet[gid] {
			delay = sql.NullFloat64{Float64: groupDelay[gid], Valid: true}
		}
		if _, err := groupStmt.ExecContext(ctx, gid, intervalEnd.Unix(), q, delay); err != nil {
			return fmt.Errorf("insert operating status group %s: %w", gid, err)
		}
	}
	return tx.Commit()
}
