package simdriver

import (
	"encoding/xml"
	"fmt"
	"sort"
	"time"

	"github.com/DLR-TS/sumoldl/internal/fsutil"
	"github.com/DLR-TS/sumoldl/internal/store"
)

// Calibrator is one SUMO <calibrator> element, injecting a fused or
// extrapolated flow/speed value onto an edge for the interval it covers.
type Calibrator struct {
	XMLName xml.Name `xml:"calibrator"`
	ID      string   `xml:"id,attr"`
	Edge    string   `xml:"edge,attr"`
	Pos     float64  `xml:"pos,attr"`
	Output  string   `xml:"output,attr,omitempty"`
	Routes  []Route  `xml:"route"`
	Flows   []Flow   `xml:"flow"`
}

// Route names a route a calibrator may assign vehicles to.
type Route struct {
	XMLName xml.Name `xml:"route"`
	ID      string   `xml:"id,attr"`
	Edges   string   `xml:"edges,attr"`
}

// Flow is one interval's calibrated flow/speed target. VehsPerHour and
// Speed are omitted from the marshaled element when zero, which SUMO
// interprets as "don't calibrate this attribute": a flow calibrator with no
// known speed still enforces the counted volume, and vice versa.
type Flow struct {
	XMLName     xml.Name `xml:"flow"`
	Begin       float64  `xml:"begin,attr"`
	End         float64  `xml:"end,attr"`
	VehsPerHour float64  `xml:"vehsPerHour,attr,omitempty"`
	Speed       float64  `xml:"speed,attr,omitempty"`
	Route       string   `xml:"route,attr,omitempty"`
	Force       float64  `xml:"force,attr"`
	Comment     string   `xml:"comment,attr,omitempty"`
}

// Rerouter redirects traffic away from an edge, used when a calibrator's
// own edge can't physically carry the calibrated flow.
type Rerouter struct {
	XMLName xml.Name `xml:"rerouter"`
	ID      string   `xml:"id,attr"`
	Edges   string   `xml:"edges,attr"`
}

// Vaporizer removes vehicles from an edge entirely, used to seed or drain
// a scenario's initial vehicle count.
type Vaporizer struct {
	XMLName xml.Name `xml:"vaporizer"`
	ID      string   `xml:"id,attr"`
	Begin   float64  `xml:"begin,attr"`
	End     float64  `xml:"end,attr"`
}

// RouteProbe samples the route distribution crossing an edge, feeding the
// "collectRouteInfo" loop option.
type RouteProbe struct {
	XMLName xml.Name `xml:"routeProbe"`
	ID      string   `xml:"id,attr"`
	Edge    string   `xml:"edge,attr"`
	Freq    float64  `xml:"freq,attr"`
	File    string   `xml:"file,attr"`
}

// AdditionalFile is the <additional> root element SUMO expects, wrapping
// any mix of the element types above.
type AdditionalFile struct {
	XMLName     xml.Name     `xml:"additional"`
	Calibrators []Calibrator `xml:"calibrator"`
	Rerouters   []Rerouter   `xml:"rerouter"`
	Vaporizers  []Vaporizer  `xml:"vaporizer"`
	RouteProbes []RouteProbe `xml:"routeProbe"`
}

// WriteAdditionalFile marshals af and writes it to path via fsys.
func WriteAdditionalFile(fsys fsutil.FileSystem, path string, af AdditionalFile) error {
	out, err := xml.MarshalIndent(af, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal additional file: %w", err)
	}
	header := []byte(xml.Header)
	return fsys.WriteFile(path, append(header, out...), 0o644)
}

// CalibratorsFromHistory builds one edge's <calibrator> element from its
// fused (trusted) and extrapolated history over the iteration window. A
// fused reading always wins over an extrapolated one for the same
// interval; an extrapolated flow/speed is force-weighted at half the trust
// of a real measurement, matching the forceMultiplier the original
// pipeline applies to extrapolation-sourced calibration steps. A speed
// above 120 km/h is dropped rather than calibrated against, since METriggered
// Calibrator disables speed calibration above that threshold.
func CalibratorsFromHistory(edgeID string, pos float64, fused, extrapolated []store.EdgeValue, simBegin time.Time, aggregationInterval time.Duration) Calibrator {
	type entry struct {
		flow, speed   *float64
		quality       float64
		extrapolation bool
	}
	byEnd := map[time.Time]entry{}
	capture := func(v store.EdgeValue, extrapolation bool) entry {
		e := entry{quality: v.Quality, extrapolation: extrapolation}
		if v.Flow.Valid {
			f := v.Flow.Float64
			e.flow = &f
		}
		if v.Speed.Valid {
			sp := v.Speed.Float64
			e.speed = &sp
		}
		return e
	}
	for _, v := range fused {
		byEnd[v.IntervalEnd] = capture(v, false)
	}
	for _, v := range extrapolated {
		if _, ok := byEnd[v.IntervalEnd]; ok {
			continue
		}
		byEnd[v.IntervalEnd] = capture(v, true)
	}

	ends := make([]time.Time, 0, len(byEnd))
	for end := range byEnd {
		ends = append(ends, end)
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i].Before(ends[j]) })

	cal := Calibrator{ID: "calibrator_" + edgeID, Edge: edgeID, Pos: pos}
	for _, end := range ends {
		e := byEnd[end]
		step := Flow{
			Begin: daySecond(end.Add(-aggregationInterval), simBegin),
			End:   daySecond(end, simBegin),
			Route: "routedist_" + edgeID,
		}
		if e.flow != nil {
			step.VehsPerHour = *e.flow
		}
		if e.speed != nil && *e.speed <= 120 {
			step.Speed = *e.speed
		}
		step.Force = e.quality
		if e.extrapolation {
			step.Force *= 0.5
			step.Comment = "extrapolation"
		}
		cal.Flows = append(cal.Flows, step)
	}
	return cal
}

// daySecond returns t's offset from dayStart in seconds, the unit SUMO's
// own time attributes use.
func daySecond(t, dayStart time.Time) float64 {
	return t.Sub(dayStart).Seconds()
}
