// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package features

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Counts are the hardware counter totals measured over one window.
type Counts struct {
	CPUCycles       uint64
	Instructions    uint64
	CacheReferences uint64
	CacheMisses     uint64
	Branches        uint64
	BranchMisses    uint64
	PageFaults      uint64
	ContextSwitches uint64
}

// Measurer measures hardware counters over a window. Measure blocks for
// roughly the window length; implementations without any usable counters
// may return immediately with zero Counts.
type Measurer interface {
	// Measure counts events system-wide for the given window.
	Measure(ctx context.Context, window time.Duration) (Counts, error)
	// Events returns the event names the measurer can count.
	Events() []string
}

// Disabled is a Measurer that counts nothing. It stands in for PerfStat
// when counter collection is switched off; the window wait still paces
// the cycle.
type Disabled struct{}

func (Disabled) Measure(ctx context.Context, window time.Duration) (Counts, error) {
	return Counts{}, nil
}

func (Disabled) Events() []string { return nil }

// candidateEvents are the perf events this collector knows how to map to
// features, in feature order.
var candidateEvents = []string{
	"cpu-cycles", "instructions", "cache-references", "cache-misses",
	"branches", "branch-misses", "page-faults", "context-switches",
}

// probeTimeout bounds each per-event availability check.
const probeTimeout = 5 * time.Second

// PerfStat measures hardware counters by running perf stat as a subprocess
// over the window. Virtualized environments commonly expose only a subset
// of counters, so availability is probed per event at construction; events
// that fail the probe are left at zero in every measurement.
type PerfStat struct {
	logger logr.Logger
	events []string
}

// NewPerfStat probes which candidate events the environment supports and
// returns a PerfStat limited to those.
func NewPerfStat(logger logr.Logger) *PerfStat {
	p := &PerfStat{logger: logger}

	for _, event := range candidateEvents {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := exec.CommandContext(ctx, "perf", "stat", "-e", event, "true").Run()
		cancel()
		if err != nil {
			logger.Info("performance counter not available", "event", event, "error", err)
			continue
		}
		p.events = append(p.events, event)
	}

	if len(p.events) == 0 {
		logger.Info("no performance counters available; counter features will be zero",
			"hint", "try: sudo sysctl kernel.perf_event_paranoid=1")
	} else {
		logger.Info("performance counters probed", "available", len(p.events))
	}
	return p
}

// Events returns the probed-available event names.
func (p *PerfStat) Events() []string {
	return p.events
}

// Measure runs `perf stat -a` for the window and parses the CSV output.
// With no available events it returns immediately; the caller's window wait
// covers the remainder either way.
func (p *PerfStat) Measure(ctx context.Context, window time.Duration) (Counts, error) {
	if len(p.events) == 0 {
		return Counts{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, window+probeTimeout)
	defer cancel()

	interval := strconv.FormatFloat(window.Seconds(), 'f', -1, 64)
	cmd := exec.CommandContext(ctx, "perf", "stat", "-a",
		"-e", strings.Join(p.events, ","), "-x", ",", "sleep", interval)

	// perf stat writes its counts to stderr.
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Counts{}, fmt.Errorf("perf stat failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	return parsePerfOutput(stderr.String(), p.logger), nil
}

// parsePerfOutput parses `perf stat -x ,` CSV lines into Counts. Lines for
// unsupported or uncounted events are skipped.
func parsePerfOutput(output string, logger logr.Logger) Counts {
	var counts Counts
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, ",") {
			continue
		}
		// value,unit,event,running,ratio...
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		valueStr := strings.TrimSpace(parts[0])
		if valueStr == "<not supported>" || valueStr == "<not counted>" {
			continue
		}
		value, err := strconv.ParseUint(valueStr, 10, 64)
		if err != nil {
			logger.V(2).Info("failed to parse perf stat line", "line", line, "error", err)
			continue
		}

		switch strings.TrimSpace(parts[2]) {
		case "cpu-cycles", "cycles":
			counts.CPUCycles = value
		case "instructions":
			counts.Instructions = value
		case "cache-references":
			counts.CacheReferences = value
		case "cache-misses":
			counts.CacheMisses = value
		case "branches":
			counts.Branches = value
		case "branch-misses":
			counts.BranchMisses = value
		case "page-faults", "faults":
			counts.PageFaults = value
		case "context-switches", "cs":
			counts.ContextSwitches = value
		}
	}
	return counts
}
