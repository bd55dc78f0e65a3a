package simdriver

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/DLR-TS/sumoldl/internal/fsutil"
	"github.com/DLR-TS/sumoldl/internal/units"
)

// DumpRow is one edge's simulated reading for one dump interval, as
// reported by SUMO's edgeData output once reduced to gzipped CSV by the
// scenario's own post-processing step. The header columns are
// "interval_id,interval_begin,interval_end,edge_id,edge_speed,edge_departed,edge_entered,edge_vaporized".
type DumpRow struct {
	IntervalID    string
	IntervalBegin float64
	IntervalEnd   float64
	EdgeID        string
	SpeedMPS      float64
	Departed      float64
	Entered       float64
	Vaporized     float64
}

// Count is the number of vehicles that crossed the edge during the
// interval: vehicles that departed onto the edge plus ones that entered it
// from upstream, less any removed by a calibrator's vaporizer. This is the
// same definition SUMO's own calibrators use, so the simulated counts stay
// consistent with the calibration that produced them.
func (r DumpRow) Count() float64 {
	return r.Departed + r.Entered - r.Vaporized
}

var dumpColumns = []string{
	"interval_id", "interval_begin", "interval_end", "edge_id",
	"edge_speed", "edge_departed", "edge_entered", "edge_vaporized",
}

// ReadDump decompresses and parses a gzipped CSV edge dump.
func ReadDump(fsys fsutil.FileSystem, path string) ([]DumpRow, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip reader %s: %w", path, err)
	}
	defer gz.Close()

	r := csv.NewReader(gz)
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read dump header: %w", err)
	}
	cols := columnIndex(header)
	for _, want := range dumpColumns {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("dump %s missing column %q", path, want)
		}
	}

	var rows []DumpRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dump row: %w", err)
		}
		row := DumpRow{
			IntervalID: rec[cols["interval_id"]],
			EdgeID:     rec[cols["edge_id"]],
		}
		row.IntervalBegin, _ = strconv.ParseFloat(rec[cols["interval_begin"]], 64)
		row.IntervalEnd, _ = strconv.ParseFloat(rec[cols["interval_end"]], 64)
		row.SpeedMPS, _ = strconv.ParseFloat(rec[cols["edge_speed"]], 64)
		row.Departed, _ = strconv.ParseFloat(rec[cols["edge_departed"]], 64)
		row.Entered, _ = strconv.ParseFloat(rec[cols["edge_entered"]], 64)
		row.Vaporized, _ = strconv.ParseFloat(rec[cols["edge_vaporized"]], 64)
		rows = append(rows, row)
	}
	return rows, nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

// DumpPlanEntry records what a single synthetic interval id in a SUMO
// edge-data plan means once the dump comes back: the wall-clock time the
// interval ends at and which traffic type (simulation or prediction) its
// rows should be aggregated under.
type DumpPlanEntry struct {
	End         time.Time
	TrafficType string
}

// DumpPlan maps a dump's synthetic interval ids ("simulation0", "simulation1",
// "prediction0", ...) back to the wall-clock interval and traffic type they
// represent.
type DumpPlan map[string]DumpPlanEntry

const (
	TrafficTypeSimulation = "simulation"
	TrafficTypePrediction = "prediction"
)

// NewDumpPlan lays out the synthetic interval ids for one iteration's
// edge-data plan: numDumpsSimulation = repeat/aggregation intervals ending
// at startTime (looking backward over what just happened), and
// numDumpsPrediction = forecast/aggregation intervals ending at simEnd
// (looking forward into the forecast horizon).
func NewDumpPlan(startTime, simEnd time.Time, repeat, forecast, aggregation time.Duration) DumpPlan {
	plan := DumpPlan{}
	numSimulation := int(repeat / aggregation)
	for i := 0; i < numSimulation; i++ {
		end := startTime.Add(-time.Duration(numSimulation-1-i) * aggregation)
		plan[fmt.Sprintf("%s%d", TrafficTypeSimulation, i)] = DumpPlanEntry{End: end, TrafficType: TrafficTypeSimulation}
	}

	numPrediction := int(forecast / aggregation)
	for i := 0; i < numPrediction; i++ {
		end := simEnd.Add(-time.Duration(numPrediction-1-i) * aggregation)
		plan[fmt.Sprintf("%s%d", TrafficTypePrediction, i)] = DumpPlanEntry{End: end, TrafficType: TrafficTypePrediction}
	}
	return plan
}

// Resolved pairs a parsed dump row with the wall-clock interval and traffic
// type its synthetic interval id stands for. Rows whose id isn't in the
// plan are dropped rather than guessed at.
type Resolved struct {
	DumpRow
	End         time.Time
	TrafficType string
}

// Resolve maps rows through plan, dropping any row whose interval id the
// plan doesn't recognize.
func Resolve(rows []DumpRow, plan DumpPlan) []Resolved {
	out := make([]Resolved, 0, len(rows))
	for _, row := range rows {
		entry, ok := plan[row.IntervalID]
		if !ok {
			continue
		}
		out = append(out, Resolved{DumpRow: row, End: entry.End, TrafficType: entry.TrafficType})
	}
	return out
}

// ComparisonRow pairs one edge's loop, fused, simulated, and predicted
// flow/speed for the same wall-clock interval, the row shape compare.txt
// emits one column set per type for.
type ComparisonRow struct {
	EdgeID          string
	LoopFlow        float64
	LoopSpeed       float64
	FusionFlow      float64
	FusionSpeed     float64
	SimFlow         float64
	SimSpeed        float64
	PredictionFlow  float64
	PredictionSpeed float64
}

// compareColumns names the four traffic types a compare.txt column set is
// emitted for, in order.
var compareColumns = []struct {
	label       string
	flow, speed func(ComparisonRow) float64
}{
	{"loop", func(r ComparisonRow) float64 { return r.LoopFlow }, func(r ComparisonRow) float64 { return r.LoopSpeed }},
	{"fusion", func(r ComparisonRow) float64 { return r.FusionFlow }, func(r ComparisonRow) float64 { return r.FusionSpeed }},
	{"simulation", func(r ComparisonRow) float64 { return r.SimFlow }, func(r ComparisonRow) float64 { return r.SimSpeed }},
	{"prediction", func(r ComparisonRow) float64 { return r.PredictionFlow }, func(r ComparisonRow) float64 { return r.PredictionSpeed }},
}

// WriteCompareFile writes compare.txt: a literal "YYYYMMDDHHMMSS" first
// line naming the moment the snapshot was taken, then one tab-separated
// line per edge giving flow and speed for each of loop, fusion, simulation,
// and prediction, speed already converted to the deployment's configured
// schema unit.
func WriteCompareFile(fsys fsutil.FileSystem, path string, at time.Time, rows []ComparisonRow, speedUnit string) error {
	sorted := append([]ComparisonRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EdgeID < sorted[j].EdgeID })

	buf := []byte(at.UTC().Format("20060102150405") + "\n")
	header := "section-id"
	for _, c := range compareColumns {
		header += fmt.Sprintf("\t%s-flow\t%s-speed", c.label, c.label)
	}
	buf = append(buf, []byte(header+"\n")...)

	for _, r := range sorted {
		line := r.EdgeID
		for _, c := range compareColumns {
			line += fmt.Sprintf("\t%d\t%d", int(c.flow(r)+0.5), int(units.ConvertSpeed(c.speed(r), speedUnit)+0.5))
		}
		buf = append(buf, []byte(line+"\n")...)
	}
	return fsys.WriteFile(path, buf, 0o644)
}

// ViewerRow is one edge's current flow/speed, the shape the live viewer
// tails.
type ViewerRow struct {
	EdgeID   string
	SpeedMPS float64
	FlowVehH float64
}

// WriteViewerFile writes the plain-text file the live viewer polls: a
// literal "YYYYMMDDHHMMSS" first line, then one tab-separated
// "edge\tspeed\tflow" line per edge, speed and flow rounded to whole
// numbers in the deployment's configured schema unit.
func WriteViewerFile(fsys fsutil.FileSystem, path string, at time.Time, rows []ViewerRow, speedUnit string) error {
	sorted := append([]ViewerRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EdgeID < sorted[j].EdgeID })

	buf := []byte(at.UTC().Format("20060102150405") + "\n")
	for _, r := range sorted {
		line := fmt.Sprintf("%s\t%d\t%d\n", r.EdgeID,
			int(units.ConvertSpeed(r.SpeedMPS, speedUnit)+0.5), int(r.FlowVehH+0.5))
		buf = append(buf, []byte(line)...)
	}
	return fsys.WriteFile(path, buf, 0o644)
}
