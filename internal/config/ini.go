// Package config reads the INI configuration file described in spec §6.
//
// The configuration file reader is, per the top-level specification, a
// narrow external collaborator rather than part of the processing core: the
// rest of this repository only ever sees the typed Config this package
// produces, never a raw file handle or section map. The parser itself is
// intentionally dependency-free scanning (no example in the retrieval pack
// parses INI, so there is no ecosystem library to ground this on; see
// DESIGN.md).
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully-resolved, region-shadowed view over the INI file's
// four recognized sections (spec §6).
type Config struct {
	Loop     LoopConfig
	Detector DetectorConfig
	Database DatabaseConfig
	PSM      map[string]string

	sections map[string]map[string]string
	region   string
}

// LoopConfig mirrors the [Loop] section's recognized options.
type LoopConfig struct {
	Repeat             time.Duration
	Overlap            time.Duration
	Prefirst           time.Duration
	Forecast           time.Duration
	Aggregate          time.Duration
	RouteInterval      time.Duration
	RouteStep          time.Duration
	RoutesPrefix       string
	Net                string
	SUMOBinary         string
	SUMOOptions        string
	QualityThreshold   float64
	CalibrationSource  string
	CalibratorInterval time.Duration
	CollectRouteInfo   bool
	SpeedCalibration   bool
	EmissionOutput     bool
	WithInternal       bool
	ClearState         bool
	DeleteAfter        time.Duration
	DeleteAfterDB      time.Duration
	Comparison         bool
	StartTime          *time.Time
	EndTime            *time.Time
	ViewerData         string
	Adds               string
	Region             string
}

// DetectorConfig mirrors the [Detector] section's recognized options.
type DetectorConfig struct {
	Repeat                 time.Duration
	Lookback               time.Duration
	FirstLookback          time.Duration
	Lookahead              time.Duration
	InterpolationWindow    time.Duration
	EvaluationInterval     time.Duration
	UpdateInterval         time.Duration
	AggregateFCD           bool
	TLSWaitFCD             bool
	AggregateVisual        bool
	HasLKW                 bool
	CheckDoubling          bool
	Historic               bool
	DoForecast             bool
	DoFusion               bool
	DoDetectorCorrection   bool
	DoDetectorAggregation  bool
}

// DatabaseConfig mirrors the [Database] section's recognized options.
type DatabaseConfig struct {
	Host           string
	User           string
	Passwd         string
	DB             string
	SeparateOutput string
	Postgres       bool
}

// Load reads path and resolves every option for the given region, applying
// the "option.<region>" shadowing rule from spec §6.
func Load(path, region string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	sections, err := parseINI(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := &Config{sections: sections, region: region}
	cfg.Loop = cfg.loadLoop()
	cfg.Detector = cfg.loadDetector()
	cfg.Database = cfg.loadDatabase()
	cfg.PSM = sections["PSM"]
	return cfg, nil
}

func parseINI(f *os.File) (map[string]map[string]string, error) {
	sections := map[string]map[string]string{}
	section := ""
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := sections[section]; !ok {
				sections[section] = map[string]string{}
			}
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, fmt.Errorf("line %d: expected key=value, got %q", lineNo, line)
		}
		if section == "" {
			return nil, fmt.Errorf("line %d: option outside any [section]", lineNo)
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		sections[section][key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

// get resolves key in section, preferring "key.<region>" when both the
// region and the shadowed key are present.
func (c *Config) get(section, key string) (string, bool) {
	vals, ok := c.sections[section]
	if !ok {
		return "", false
	}
	if c.region != "" {
		if v, ok := vals[key+"."+c.region]; ok {
			return v, true
		}
	}
	v, ok := vals[key]
	return v, ok
}

func (c *Config) getString(section, key, def string) string {
	if v, ok := c.get(section, key); ok {
		return v
	}
	return def
}

func (c *Config) getBool(section, key string, def bool) bool {
	v, ok := c.get(section, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (c *Config) getFloat(section, key string, def float64) float64 {
	v, ok := c.get(section, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// getMinutes parses a "minutes options are floating point" value (spec §6)
// into a time.Duration.
func (c *Config) getMinutes(section, key string, def time.Duration) time.Duration {
	v, ok := c.get(section, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return time.Duration(f * float64(time.Minute))
}

// getTime parses the "YYYY-MM-DD HH:MM" absolute form or the "-H:MM"
// relative-to-now form described in spec §6. Returns nil if unset.
func (c *Config) getTime(section, key string, now time.Time) (*time.Time, error) {
	v, ok := c.get(section, key)
	if !ok || v == "" {
		return nil, nil
	}
	if strings.HasPrefix(v, "-") {
		d, err := parseRelativeClock(v[1:])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", section, key, err)
		}
		t := now.Add(-d)
		return &t, nil
	}
	t, err := time.Parse("2006-01-02 15:04", v)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", section, key, err)
	}
	return &t, nil
}

// parseRelativeClock parses "H:MM" into a duration.
func parseRelativeClock(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected H:MM, got %q", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q: %w", s, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q: %w", s, err)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

func (c *Config) loadLoop() LoopConfig {
	now := time.Now().UTC()
	start, _ := c.getTime("Loop", "starttime", now)
	end, _ := c.getTime("Loop", "endtime", now)
	return LoopConfig{
		Repeat:             c.getMinutes("Loop", "repeat", 5*time.Minute),
		Overlap:            c.getMinutes("Loop", "overlap", 15*time.Minute),
		Prefirst:           c.getMinutes("Loop", "prefirst", 60*time.Minute),
		Forecast:           c.getMinutes("Loop", "forecast", 30*time.Minute),
		Aggregate:          c.getMinutes("Loop", "aggregate", 5*time.Minute),
		RouteInterval:      c.getMinutes("Loop", "routeInterval", 60*time.Minute),
		RouteStep:          c.getMinutes("Loop", "routestep", 5*time.Minute),
		RoutesPrefix:       c.getString("Loop", "routesprefix", ""),
		Net:                c.getString("Loop", "net", ""),
		SUMOBinary:         c.getString("Loop", "sumobinary", "sumo"),
		SUMOOptions:        c.getString("Loop", "sumoOptions", ""),
		QualityThreshold:   c.getFloat("Loop", "qualityThreshold", 70.0),
		CalibrationSource:  c.getString("Loop", "calibrationSource", "fusion"),
		CalibratorInterval: c.getMinutes("Loop", "calibratorInterval", 5*time.Minute),
		CollectRouteInfo:   c.getBool("Loop", "collectRouteInfo", false),
		SpeedCalibration:   c.getBool("Loop", "speedCalibration", true),
		EmissionOutput:     c.getBool("Loop", "emissionOutput", false),
		WithInternal:       c.getBool("Loop", "withInternal", false),
		ClearState:         c.getBool("Loop", "clearState", false),
		DeleteAfter:        c.getMinutes("Loop", "deleteafter", 24*60*time.Minute),
		DeleteAfterDB:      c.getMinutes("Loop", "deleteafterDB", 7*24*60*time.Minute),
		Comparison:         c.getBool("Loop", "comparison", true),
		StartTime:          start,
		EndTime:            end,
		ViewerData:         c.getString("Loop", "viewerData", ""),
		Adds:               c.getString("Loop", "adds", ""),
		Region:             c.region,
	}
}

func (c *Config) loadDetector() DetectorConfig {
	return DetectorConfig{
		Repeat:                c.getMinutes("Detector", "repeat", 1*time.Minute),
		Lookback:              c.getMinutes("Detector", "lookback", 10*time.Minute),
		FirstLookback:         c.getMinutes("Detector", "firstlookback", 60*time.Minute),
		Lookahead:             c.getMinutes("Detector", "lookahead", 30*time.Minute),
		InterpolationWindow:   c.getMinutes("Detector", "interpolationwindow", 60*time.Minute),
		EvaluationInterval:    c.getMinutes("Detector", "evaluationinterval", 60*time.Minute),
		UpdateInterval:        c.getMinutes("Detector", "updateinterval", 1*time.Minute),
		AggregateFCD:          c.getBool("Detector", "aggregateFCD", false),
		TLSWaitFCD:            c.getBool("Detector", "tlsWaitFCD", false),
		AggregateVisual:       c.getBool("Detector", "aggregateVisual", false),
		HasLKW:                c.getBool("Detector", "haslkw", true),
		CheckDoubling:         c.getBool("Detector", "checkdoubling", false),
		Historic:              c.getBool("Detector", "historic", false),
		DoForecast:            c.getBool("Detector", "doForecast", true),
		DoFusion:              c.getBool("Detector", "doFusion", true),
		DoDetectorCorrection:  c.getBool("Detector", "doDetectorCorrection", true),
		DoDetectorAggregation: c.getBool("Detector", "doDetectorAggregation", true),
	}
}

func (c *Config) loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:           c.getString("Database", "host", ""),
		User:           c.getString("Database", "user", ""),
		Passwd:         c.getString("Database", "passwd", ""),
		DB:             c.getString("Database", "db", ""),
		SeparateOutput: c.getString("Database", "separateOutput", ""),
		Postgres:       c.getBool("Database", "postgres", false),
	}
}
