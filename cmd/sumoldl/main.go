// Command sumoldl runs either the detector-correction/aggregation/fusion/
// extrapolation pipeline or the SUMO simulation driver, selected by -loop,
// as a periodic loop against a SQLite store; the two loops run as separate
// processes that share only that store.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/DLR-TS/sumoldl/internal/aggregator"
	"github.com/DLR-TS/sumoldl/internal/checkdata"
	"github.com/DLR-TS/sumoldl/internal/config"
	"github.com/DLR-TS/sumoldl/internal/corrector"
	"github.com/DLR-TS/sumoldl/internal/detector"
	"github.com/DLR-TS/sumoldl/internal/fsutil"
	"github.com/DLR-TS/sumoldl/internal/logging"
	"github.com/DLR-TS/sumoldl/internal/operatingstatus"
	"github.com/DLR-TS/sumoldl/internal/pipeline"
	"github.com/DLR-TS/sumoldl/internal/schema"
	"github.com/DLR-TS/sumoldl/internal/scheduler"
	"github.com/DLR-TS/sumoldl/internal/simdriver"
	"github.com/DLR-TS/sumoldl/internal/store"
	"github.com/DLR-TS/sumoldl/internal/timeutil"
	"github.com/DLR-TS/sumoldl/internal/units"
	"github.com/DLR-TS/sumoldl/internal/window"
)

var (
	confFile  = flag.String("conf", "loop.conf", "path to the INI configuration file")
	region    = flag.String("region", "", "region override suffix for config options (table names do not depend on it)")
	loopKind  = flag.String("loop", "detector", "which loop to run: detector or simulation (ignored with -clean)")
	dbPath    = flag.String("db", "sumoldl.db", "path to the SQLite database file")
	scenario  = flag.String("scenario", "default", "scenario name, used to namespace simulator staging directories")
	logPath   = flag.String("log", "", "path to append log output to; empty means stderr")
	listen    = flag.String("listen", ":8081", "status endpoint listen address")
	beginFlag = flag.String("begin", "", "override the loop's effective start time (RFC3339)")
	endFlag   = flag.String("end", "", "override the loop's effective end time (RFC3339)")
	clean     = flag.Bool("clean", false, "run a consistency check over stored data and exit")
)

func main() {
	flag.Parse()

	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}
	logging.SetLogger(func(format string, v ...interface{}) {
		log.Printf(format, v...)
	})

	cfg, err := config.Load(*confFile, *region)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", *confFile, err)
	}

	sch := schema.Default(*region)
	st, err := store.Open(*dbPath, sch)
	if err != nil {
		log.Fatalf("failed to open store %s: %v", *dbPath, err)
	}
	defer st.Close()

	if *clean {
		runCheckData(st)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	epoch, err := resolveEpoch(*beginFlag)
	if err != nil {
		log.Fatalf("invalid -begin: %v", err)
	}
	if *endFlag != "" {
		end, err := time.Parse(time.RFC3339, *endFlag)
		if err != nil {
			log.Fatalf("invalid -end: %v", err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, end)
		defer cancel()
	}

	mgr := &scheduler.Manager{}
	var wg sync.WaitGroup

	switch *loopKind {
	case "detector":
		l := newDetectorLoop(clock, epoch, cfg, st)
		mgr.Detector = l
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Run(ctx)
		}()
	case "simulation":
		l := newSimulationLoop(clock, epoch, cfg, st, *scenario)
		mgr.Simula = l
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Run(ctx)
		}()
	default:
		log.Fatalf("unknown -loop value %q (want detector or simulation)", *loopKind)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runStatusServer(ctx, mgr)
	}()

	wg.Wait()
	logging.Logf("shutdown complete")
}

// resolveEpoch parses an optional -begin override into the grid origin the
// scheduler aligns against; an unset override anchors the grid at the Unix
// epoch, so independently started processes still land on the same ticks.
func resolveEpoch(begin string) (time.Time, error) {
	if begin == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, begin)
}

func runCheckData(st *store.Store) {
	report, err := checkdata.Run(context.Background(), st)
	if err != nil {
		log.Fatalf("consistency check failed: %v", err)
	}
	fmt.Print(report.String())
	if report.HasIssues() {
		os.Exit(1)
	}
}

func newDetectorLoop(clock timeutil.Clock, epoch time.Time, cfg *config.Config, st *store.Store) *scheduler.Loop {
	w := window.New(epoch, cfg.Detector.UpdateInterval)
	step := func(ctx context.Context, scheduledAt time.Time) (int, int, error) {
		warnings, errs, stepErr := runDetectorStep(ctx, cfg, st, w, scheduledAt)
		if stepErr != nil {
			// errorOnLastRun in the original driver forces a full reset of
			// the sliding window on the next call; a hard error here means
			// this tick's window state can't be trusted either.
			w.Reset(scheduledAt)
		}
		return warnings, errs, stepErr
	}
	return &scheduler.Loop{
		Name:       "detector",
		Clock:      clock,
		Epoch:      epoch,
		Repeat:     cfg.Detector.Repeat,
		Step:       step,
		MaxHistory: 100,
	}
}

// runDetectorStep corrects and aggregates every detector's reading for
// scheduledAt, using w as the sliding cache of recent per-detector records
// so repeated ticks don't re-scan the full lookback window from the store
// every time. It assumes the interval's raw readings (provenance "real")
// have already been written to the store by whatever upstream process feeds
// this deployment's detectors; wiring a live SUMO/TraCI or field-hardware
// ingestion source is outside this command's scope.
func runDetectorStep(ctx context.Context, cfg *config.Config, st *store.Store, w *window.Window, scheduledAt time.Time) (warnings, errors int, err error) {
	dets, err := st.ListAllDetectors(ctx)
	if err != nil {
		return 0, 1, fmt.Errorf("list detectors: %w", err)
	}

	lookback := cfg.Detector.Lookback
	from := scheduledAt.Add(-lookback)
	edgeDetectors := map[string][]store.Detector{}

	// On first use (or right after a reset) the window holds nothing yet;
	// backfill it once from the store so the gap filler still has support
	// points on its very first tick, matching "on first run only, re-load
	// prior corrected rows into the window".
	if w.Len() == 0 {
		if err := backfillWindow(ctx, st, w, dets, from, scheduledAt.Add(-cfg.Detector.UpdateInterval)); err != nil {
			return 0, 1, fmt.Errorf("backfill window: %w", err)
		}
	}

	for _, d := range dets {
		edgeDetectors[d.EdgeID] = append(edgeDetectors[d.EdgeID], d)

		current, err := st.DetectorHistory(ctx, d.DetectorID, scheduledAt, scheduledAt)
		if err != nil {
			return warnings, errors + 1, fmt.Errorf("current reading for %s: %w", d.DetectorID, err)
		}
		if len(current) == 0 {
			continue
		}
		row := current[0]

		reading := corrector.RawReading{
			DetectorID: d.DetectorID,
			QPKW:       nullableFloat(row.QPKW),
			QLKW:       nullableFloat(row.QLKW),
			VPKW:       nullableFloat(row.VPKW),
			VLKW:       nullableFloat(row.VLKW),
			Quality:    row.Quality,
		}
		corrCfg := corrector.Config{HasLKW: cfg.Detector.HasLKW, LaneSpeedLimitKMH: d.SpeedLimitKMH}

		preceding, _ := buildSeries(w, d.DetectorID, from, scheduledAt.Add(-cfg.Detector.UpdateInterval))

		rec := corrector.Classify(corrCfg, reading, preceding)
		if row.Provenance == string(detector.NoOrig) {
			rec.SetProvenance(detector.NoOrig)
		}
		w.Ensure(scheduledAt).Records[d.DetectorID] = rec

		if rec.ErrorPKW != detector.OK || rec.ErrorLKW != detector.OK {
			warnings++
		}
	}

	// Re-run the gap filler over the whole recent window: a slot whose gap
	// couldn't be bridged on an earlier tick (not enough future support yet)
	// may have it now that this tick's reading has landed.
	seen := map[string]bool{}
	for _, d := range dets {
		if seen[d.DetectorID] {
			continue
		}
		seen[d.DetectorID] = true
		records, times := buildSeries(w, d.DetectorID, from, scheduledAt)
		corrector.FillGaps(records, times, from, scheduledAt.Add(time.Second))
		for _, r := range records {
			if r.Fixed() && r.IsReal() {
				r.SetProvenance(detector.Forecast)
			}
		}
	}

	for _, slot := range w.Enumerate(from, scheduledAt) {
		if len(slot.Records) == 0 {
			continue
		}
		recs := make([]*detector.Record, 0, len(slot.Records))
		for _, r := range slot.Records {
			recs = append(recs, r)
		}
		if err := corrector.Persist(ctx, st, slot.IntervalEnd, recs, cfg.Detector.HasLKW); err != nil {
			return warnings, errors + 1, fmt.Errorf("persist corrected values for %s: %w", slot.IntervalEnd, err)
		}
	}

	currentSlot := w.Ensure(scheduledAt)
	readings := map[string]store.DetectorValue{}
	for _, d := range dets {
		rec, ok := currentSlot.Records[d.DetectorID]
		if !ok {
			continue
		}
		flow, speed := corrector.Merge(rec, cfg.Detector.HasLKW)
		dv := store.DetectorValue{DetectorID: d.DetectorID, Quality: rec.Quality}
		if flow != nil {
			dv.MergedFlow = sql.NullFloat64{Float64: *flow, Valid: true}
		}
		if speed != nil {
			dv.MergedSpeed = sql.NullFloat64{Float64: *speed, Valid: true}
		}
		readings[d.DetectorID] = dv
	}

	agg := aggregator.New(st, aggregator.Average, cfg.Detector.UpdateInterval, cfg.Detector.UpdateInterval, false)
	if err := agg.Run(ctx, scheduledAt, edgeDetectors, readings); err != nil {
		return warnings, errors + 1, fmt.Errorf("aggregate: %w", err)
	}

	edgeIDs := make([]string, 0, len(edgeDetectors))
	for edgeID := range edgeDetectors {
		edgeIDs = append(edgeIDs, edgeID)
	}
	fuseWarnings, fuseErrors, err := pipeline.RunFusionAndExtrapolation(ctx, st, cfg.Detector.UpdateInterval, edgeIDs, scheduledAt, cfg.Detector.AggregateFCD, cfg.Detector.AggregateVisual)
	warnings += fuseWarnings
	errors += fuseErrors
	if err != nil {
		return warnings, errors, fmt.Errorf("fuse and extrapolate: %w", err)
	}

	if evalInterval := cfg.Detector.EvaluationInterval; evalInterval > 0 && scheduledAt.Unix()%int64(evalInterval.Seconds()) == 0 {
		if err := operatingstatus.Run(ctx, st, dets, scheduledAt.Add(-evalInterval), scheduledAt, cfg.Detector.UpdateInterval); err != nil {
			return warnings, errors + 1, fmt.Errorf("operating status: %w", err)
		}
	}

	w.Advance(from)
	return warnings, errors, nil
}

// backfillWindow seeds w with each detector's already-corrected rows across
// [from, to], run once whenever the window starts out empty.
func backfillWindow(ctx context.Context, st *store.Store, w *window.Window, dets []store.Detector, from, to time.Time) error {
	for _, d := range dets {
		history, err := st.DetectorHistory(ctx, d.DetectorID, from, to)
		if err != nil {
			return fmt.Errorf("backfill history for %s: %w", d.DetectorID, err)
		}
		for _, h := range history {
			rec := detector.NewRecord(d.DetectorID, nullableFloat(h.QPKW), nullableFloat(h.QLKW), nullableFloat(h.VPKW), nullableFloat(h.VLKW), h.Quality)
			rec.ErrorPKW, rec.ErrorLKW = detector.ErrorCode(h.ErrorPKW), detector.ErrorCode(h.ErrorLKW)
			if h.Provenance != "" {
				rec.SetProvenance(detector.Provenance(h.Provenance))
			}
			rec.MarkWritten()
			w.Ensure(h.IntervalEnd).Records[d.DetectorID] = rec
		}
	}
	return nil
}

// buildSeries returns detectorID's dense, positionally-aligned records and
// interval-end times across [from, to], synthesizing an empty (all-nil)
// record for any slot the detector has never reported into, so the gap
// filler always sees a contiguous array.
func buildSeries(w *window.Window, detectorID string, from, to time.Time) ([]*detector.Record, []time.Time) {
	slots := w.Enumerate(from, to)
	records := make([]*detector.Record, len(slots))
	times := make([]time.Time, len(slots))
	for i, slot := range slots {
		times[i] = slot.IntervalEnd
		rec, ok := slot.Records[detectorID]
		if !ok {
			rec = detector.NewRecord(detectorID, nil, nil, nil, nil, 0)
			slot.Records[detectorID] = rec
		}
		records[i] = rec
	}
	return records, times
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func newSimulationLoop(clock timeutil.Clock, epoch time.Time, cfg *config.Config, st *store.Store, scenarioName string) *scheduler.Loop {
	simCfg := simdriver.Config{
		BaseDir:      "sim-runs",
		Binary:       cfg.Loop.SUMOBinary,
		NetFile:      cfg.Loop.Net,
		RoutesPrefix: cfg.Loop.RoutesPrefix,
		RetainFor:    cfg.Loop.DeleteAfter,
	}
	fsys := fsutil.OSFileSystem{}

	step := func(ctx context.Context, scheduledAt time.Time) (int, int, error) {
		it := simdriver.NewIteration(simCfg, scenarioName, scheduledAt.Add(-cfg.Loop.RouteInterval), scheduledAt)
		if err := simdriver.Stage(fsys, simCfg, it); err != nil {
			return 0, 1, fmt.Errorf("stage iteration: %w", err)
		}

		runID := it.ID
		if err := st.InsertSimRun(ctx, store.SimRun{
			RunID:     runID,
			Scenario:  scenarioName,
			LoopKind:  "simulation",
			StartedAt: scheduledAt,
			Status:    "running",
		}); err != nil {
			return 0, 1, fmt.Errorf("record sim run: %w", err)
		}

		warnings, errCount := 0, 0
		status := "ok"
		if cfg.Loop.SUMOBinary != "" {
			_, stderr, runErr := simdriver.Run(ctx, simCfg, it, "sumo.cfg")
			if runErr != nil {
				status = "error"
				errCount++
				logging.Logf("sumo run failed for %s: %v (stderr: %s)", it.ID, runErr, stderr)
			} else if cfg.Loop.Comparison {
				if cmpWarnings := harvestComparison(ctx, fsys, st, it, cfg); cmpWarnings > 0 {
					warnings += cmpWarnings
				}
			}
		}

		if err := st.FinishSimRun(ctx, runID, scheduledAt, status, warnings, errCount, ""); err != nil {
			return warnings, errCount + 1, fmt.Errorf("finish sim run: %w", err)
		}
		if err := simdriver.Cleanup(fsys, fmt.Sprintf("%s/%s", simCfg.BaseDir, scenarioName), simCfg.RetainFor, scheduledAt); err != nil {
			logging.Logf("cleanup warning: %v", err)
			warnings++
		}
		return warnings, errCount, nil
	}

	return &scheduler.Loop{
		Name:       "simulation",
		Clock:      clock,
		Epoch:      epoch,
		Repeat:     cfg.Loop.RouteInterval,
		Step:       step,
		MaxHistory: 100,
	}
}

// harvestComparison reads the dump an already-completed sumo run wrote into
// it.Dir, joins each edge's simulated and predicted flow/speed against the
// loop and fused values the pipeline stored for the same interval, and
// writes compare.txt plus (when cfg.Loop.ViewerData names a directory) the
// viewer's plain-text file. It returns the number of edges the dump
// produced no simulated reading for.
func harvestComparison(ctx context.Context, fsys fsutil.FileSystem, st *store.Store, it simdriver.Iteration, cfg *config.Config) int {
	dumpPath := fmt.Sprintf("%s/dump.csv.gz", it.Dir)
	dumpRows, err := simdriver.ReadDump(fsys, dumpPath)
	if err != nil {
		logging.Logf("comparison: read dump %s: %v", dumpPath, err)
		return 0
	}

	// The dump's synthetic interval ids only distinguish "simulation" from
	// "prediction" by prefix here; the latest interval of each per edge is
	// the one this iteration's snapshot compares against.
	type simPair struct {
		flow, speed float64
		end         float64
	}
	latestSim := map[string]simPair{}
	latestPrediction := map[string]simPair{}
	for _, d := range dumpRows {
		pair := simPair{
			flow:  d.Count() * 3600 / (d.IntervalEnd - d.IntervalBegin),
			speed: d.SpeedMPS,
			end:   d.IntervalEnd,
		}
		switch {
		case strings.HasPrefix(d.IntervalID, simdriver.TrafficTypeSimulation):
			if existing, ok := latestSim[d.EdgeID]; !ok || pair.end > existing.end {
				latestSim[d.EdgeID] = pair
			}
		case strings.HasPrefix(d.IntervalID, simdriver.TrafficTypePrediction):
			if existing, ok := latestPrediction[d.EdgeID]; !ok || pair.end > existing.end {
				latestPrediction[d.EdgeID] = pair
			}
		}
	}

	warnings := 0
	edges := make(map[string]struct{}, len(latestSim)+len(latestPrediction))
	for edgeID := range latestSim {
		edges[edgeID] = struct{}{}
	}
	for edgeID := range latestPrediction {
		edges[edgeID] = struct{}{}
	}

	rows := make([]simdriver.ComparisonRow, 0, len(edges))
	viewerRows := make([]simdriver.ViewerRow, 0, len(edges))
	for edgeID := range edges {
		row := simdriver.ComparisonRow{EdgeID: edgeID}

		if loop, err := st.EdgeHistory(ctx, "aggregated", edgeID, it.End, it.End); err == nil && len(loop) > 0 {
			row.LoopFlow, row.LoopSpeed = loop[0].Flow.Float64, loop[0].Speed.Float64
		}
		if fused, err := st.EdgeHistory(ctx, "fused", edgeID, it.End, it.End); err == nil && len(fused) > 0 {
			row.FusionFlow, row.FusionSpeed = fused[0].Flow.Float64, fused[0].Speed.Float64
			viewerRows = append(viewerRows, simdriver.ViewerRow{EdgeID: edgeID, FlowVehH: fused[0].Flow.Float64, SpeedMPS: fused[0].Speed.Float64})
		}
		if sim, ok := latestSim[edgeID]; ok {
			row.SimFlow, row.SimSpeed = sim.flow, sim.speed
		} else {
			warnings++
		}
		if prediction, ok := latestPrediction[edgeID]; ok {
			row.PredictionFlow, row.PredictionSpeed = prediction.flow, prediction.speed
		}
		rows = append(rows, row)
	}

	if err := simdriver.WriteCompareFile(fsys, fmt.Sprintf("%s/compare.txt", it.Dir), it.End, rows, units.KMPH); err != nil {
		logging.Logf("comparison: write compare.txt: %v", err)
		warnings++
	}
	if cfg.Loop.ViewerData != "" {
		viewerPath := fmt.Sprintf("%s/%s.txt", cfg.Loop.ViewerData, it.ID)
		if err := simdriver.WriteViewerFile(fsys, viewerPath, it.End, viewerRows, units.KMPH); err != nil {
			logging.Logf("comparison: write viewer file: %v", err)
			warnings++
		}
	}
	return warnings
}

func runStatusServer(ctx context.Context, mgr *scheduler.Manager) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", mgr.StatusHandler())

	server := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logf("status server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Logf("status server shutdown error: %v", err)
	}
}
