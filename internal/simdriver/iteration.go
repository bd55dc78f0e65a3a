// Package simdriver stages, runs, and harvests one SUMO simulation
// iteration: it writes the calibrator/rerouter/vaporizer/routeProbe
// additional files a run needs, invokes the sumo binary as a child
// process, and parses the gzipped CSV dump it produces.
package simdriver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/DLR-TS/sumoldl/internal/fsutil"
	"github.com/DLR-TS/sumoldl/internal/logging"
	"github.com/DLR-TS/sumoldl/internal/security"
)

// Config holds the fixed, deployment-wide settings for running SUMO
// iterations, mirroring the [Loop] section's sumo-specific options.
type Config struct {
	BaseDir      string
	Binary       string
	ExtraOptions []string
	NetFile      string
	RoutesPrefix string
	RetainFor    time.Duration
}

// Iteration is one correlated run of the simulator: a scenario name, a
// fresh UUID to tag its staging directory and every output file it writes,
// and the time window it covers.
type Iteration struct {
	ID       string
	Scenario string
	Begin    time.Time
	End      time.Time
	Dir      string
}

// NewIteration allocates a fresh correlation id and the staging directory
// path for it, without creating anything on disk yet.
func NewIteration(cfg Config, scenario string, begin, end time.Time) Iteration {
	id := uuid.NewString()
	return Iteration{
		ID:       id,
		Scenario: scenario,
		Begin:    begin,
		End:      end,
		Dir:      filepath.Join(cfg.BaseDir, scenario, id),
	}
}

// Stage creates the iteration's directory rooted under cfg.BaseDir,
// rejecting any attempt to escape it (defensive even though every path
// component here is machine-generated, because scenario names ultimately
// come from the configuration file).
func Stage(fsys fsutil.FileSystem, cfg Config, it Iteration) error {
	if err := security.ValidatePathWithinDirectory(it.Dir, cfg.BaseDir); err != nil {
		return fmt.Errorf("refusing to stage outside base directory: %w", err)
	}
	if err := fsys.MkdirAll(it.Dir, 0o755); err != nil {
		return fmt.Errorf("create staging dir %s: %w", it.Dir, err)
	}
	return nil
}

// Cleanup removes iteration directories in scenarioDir older than
// retainFor, invoked by the scheduler after each run to bound disk usage.
func Cleanup(fsys fsutil.FileSystem, scenarioDir string, retainFor time.Duration, now time.Time) error {
	entries, err := os.ReadDir(scenarioDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := now.Add(-retainFor)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(scenarioDir, e.Name())
			if err := fsys.RemoveAll(path); err != nil {
				logging.Logf("cleanup: failed to remove %s: %v", path, err)
			}
		}
	}
	return nil
}

// Run invokes the sumo binary for it, with its working directory set to
// it.Dir, passing "-c configFile" followed by cfg.ExtraOptions (cfg.NetFile
// is not added to the command line). Output is
// captured and returned for the caller to scan for warnings/errors.
func Run(ctx context.Context, cfg Config, it Iteration, configFile string) (stdout, stderr string, err error) {
	args := append([]string{"-c", configFile}, cfg.ExtraOptions...)
	cmd := exec.CommandContext(ctx, cfg.Binary, args...)
	cmd.Dir = it.Dir

	var outBuf, errBuf bufferWriter
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	return outBuf.String(), errBuf.String(), runErr
}

type bufferWriter struct {
	data []byte
}

func (b *bufferWriter) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *bufferWriter) String() string { return string(b.data) }
