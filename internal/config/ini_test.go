package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoadRecognizesSections(t *testing.T) {
	path := writeTestConfig(t, `
[Loop]
repeat = 5
overlap = 15
sumobinary = sumo

[Detector]
repeat = 1
updateinterval = 1
haslkw = false

[Database]
host = localhost
db = traffic
`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Loop.Repeat != 5*time.Minute {
		t.Errorf("Loop.Repeat = %v, want 5m", cfg.Loop.Repeat)
	}
	if cfg.Loop.SUMOBinary != "sumo" {
		t.Errorf("Loop.SUMOBinary = %q", cfg.Loop.SUMOBinary)
	}
	if cfg.Detector.HasLKW {
		t.Errorf("Detector.HasLKW = true, want false")
	}
	if cfg.Database.DB != "traffic" {
		t.Errorf("Database.DB = %q", cfg.Database.DB)
	}
}

func TestRegionShadowing(t *testing.T) {
	path := writeTestConfig(t, `
[Detector]
haslkw = true
haslkw.leipzig = false
`)
	cfg, err := Load(path, "leipzig")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Detector.HasLKW {
		t.Fatal("expected region-shadowed haslkw.leipzig=false to win")
	}

	cfgBase, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfgBase.Detector.HasLKW {
		t.Fatal("expected base haslkw=true without a region")
	}
}

func TestGetTimeAbsoluteAndRelative(t *testing.T) {
	path := writeTestConfig(t, `
[Loop]
starttime = 2026-07-30 08:00
endtime = -1:30
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Loop.StartTime == nil {
		t.Fatal("StartTime not parsed")
	}
	want := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	if !cfg.Loop.StartTime.Equal(want) {
		t.Errorf("StartTime = %v, want %v", cfg.Loop.StartTime, want)
	}
	if cfg.Loop.EndTime == nil {
		t.Fatal("EndTime (relative) not parsed")
	}
}

func TestLoadRejectsOptionOutsideSection(t *testing.T) {
	path := writeTestConfig(t, "repeat = 5\n")
	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected error for option outside any section")
	}
}
