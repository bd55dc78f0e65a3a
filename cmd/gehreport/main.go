// Command gehreport plots an edge's GEH quality score over a time range,
// reading extrapolated values straight out of the store. It's an offline
// exerciser of the extrapolator's feedback-validation output, not a general
// report generator: one edge, one PNG, no scheduling.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/DLR-TS/sumoldl/internal/schema"
	"github.com/DLR-TS/sumoldl/internal/store"
)

var (
	dbPath = flag.String("db", "sumoldl.db", "path to the SQLite database file")
	region = flag.String("region", "", "region selector (table names do not depend on it)")
	edgeID = flag.String("edge", "", "edge id to plot")
	from   = flag.String("from", "", "start of the range (RFC3339)")
	to     = flag.String("to", "", "end of the range (RFC3339)")
	out    = flag.String("out", "geh.png", "output PNG path")
)

func main() {
	flag.Parse()
	if *edgeID == "" {
		log.Fatal("-edge is required")
	}

	fromT, err := time.Parse(time.RFC3339, *from)
	if err != nil {
		log.Fatalf("invalid -from: %v", err)
	}
	toT, err := time.Parse(time.RFC3339, *to)
	if err != nil {
		log.Fatalf("invalid -to: %v", err)
	}

	sch := schema.Default(*region)
	st, err := store.Open(*dbPath, sch)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	values, err := st.EdgeHistory(context.Background(), "extrapolated", *edgeID, fromT, toT)
	if err != nil {
		log.Fatalf("load extrapolated history: %v", err)
	}

	if err := plotGEH(*edgeID, values, *out); err != nil {
		log.Fatalf("plot: %v", err)
	}
	fmt.Printf("wrote %s (%d points)\n", *out, len(values))
}

func plotGEH(edgeID string, values []store.EdgeValue, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("GEH for edge %s", edgeID)
	p.X.Label.Text = "time"
	p.Y.Label.Text = "GEH"

	pts := make(plotter.XYs, 0, len(values))
	start := time.Time{}
	for _, v := range values {
		if !v.GEH.Valid {
			continue
		}
		if start.IsZero() {
			start = v.IntervalEnd
		}
		pts = append(pts, plotter.XY{
			X: v.IntervalEnd.Sub(start).Hours(),
			Y: v.GEH.Float64,
		})
	}
	if len(pts) == 0 {
		return fmt.Errorf("no GEH values in range")
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("GEH (hours since range start)", line)

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}
