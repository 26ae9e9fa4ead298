// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package features

import (
	"context"
	"fmt"
	"time"

	"github.com/antimetal/powertrain/pkg/host"
	"github.com/antimetal/powertrain/pkg/proc"
	"github.com/go-logr/logr"
)

// behindScheduleSlack is how far a cycle may start late before it is worth
// logging. Feature cycles are long, so the slack is generous.
const behindScheduleSlack = 500 * time.Millisecond

// progressLogEvery is the cycle count between progress log lines.
const progressLogEvery = 10

// Collector produces FeatureSamples on a fixed schedule. Each cycle
// brackets one window: snapshot at T0, blocking counter measurement over
// the window, a forced wait to the full window length, then the T1
// snapshot. The window is therefore never shorter than the interval, and
// all deltas in a sample describe the same span of time.
type Collector struct {
	logger      logr.Logger
	config      Config
	snapshotter *Snapshotter
	measurer    Measurer
	userHZ      int64
	hostname    string
	kernel      string
}

// RunResult is the outcome of a collection run.
type RunResult struct {
	Samples []FeatureSample
	// Errors counts cycles that failed to produce a sample. Failed cycles
	// keep their schedule slot.
	Errors int
	Start  time.Time
}

// NewCollector creates a Collector using the given Measurer for hardware
// counters.
func NewCollector(logger logr.Logger, config Config, measurer Measurer) (*Collector, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if measurer == nil {
		return nil, fmt.Errorf("measurer cannot be nil")
	}

	hostname := config.Hostname
	if hostname == "" {
		var err error
		hostname, err = host.Hostname()
		if err != nil {
			logger.V(1).Info("failed to detect hostname", "error", err)
			hostname = "unknown-vm"
		}
	}

	kernel, err := host.KernelVersion()
	if err != nil {
		logger.V(1).Info("failed to detect kernel version", "error", err)
	}

	return &Collector{
		logger:      logger,
		config:      config,
		snapshotter: NewSnapshotter(logger, config.ProcPath),
		measurer:    measurer,
		userHZ:      proc.UserHZOrDefault(config.ProcPath),
		hostname:    hostname,
		kernel:      kernel,
	}, nil
}

// Run collects samples for the given duration. Cancelling the context
// finishes the window already in progress, keeps its sample, and stops
// before the next cycle starts.
func (c *Collector) Run(ctx context.Context, duration time.Duration) (*RunResult, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", duration)
	}

	start := time.Now()
	c.logger.Info("starting feature collection",
		"hostname", c.hostname,
		"interval", c.config.Interval,
		"duration", duration,
		"events", len(c.measurer.Events()),
		"userHZ", c.userHZ)

	result := &RunResult{Start: start}
	for k := 0; ; k++ {
		target := start.Add(time.Duration(k) * c.config.Interval)
		if target.Sub(start) >= duration {
			break
		}

		if err := waitUntil(ctx, target); err != nil {
			c.logger.Info("feature collection cancelled", "samples", len(result.Samples))
			return result, nil
		}
		if behind := time.Since(target); behind > behindScheduleSlack {
			c.logger.V(1).Info("running behind schedule", "cycle", k, "behind", behind)
		}

		// Cancellation is only honored between cycles. A window past its
		// T0 snapshot runs to completion so the sample is not lost; only a
		// second interrupt aborts outright.
		sample, err := c.collectWindow(context.WithoutCancel(ctx))
		if err != nil {
			result.Errors++
			c.logger.Error(err, "failed to collect feature sample", "cycle", k)
			continue
		}

		result.Samples = append(result.Samples, sample)
		if len(result.Samples)%progressLogEvery == 0 {
			c.logger.Info("feature collection progress",
				"samples", len(result.Samples),
				"cpuUtilization", fmt.Sprintf("%.1f%%", sample.CPUUtilization),
				"sysCPUSeconds", fmt.Sprintf("%.2f", sample.SysCPUTotalSeconds),
				"contextSwitches", sample.SysContextSwitches)
		}
	}

	c.logger.Info("feature collection completed",
		"samples", len(result.Samples), "errors", result.Errors)
	return result, nil
}

// collectWindow runs one bracketed collection window and assembles the
// sample, stamped at the T1 snapshot.
func (c *Collector) collectWindow(ctx context.Context) (FeatureSample, error) {
	t0, err := c.snapshotter.Take()
	if err != nil {
		return FeatureSample{}, err
	}

	counts, err := c.measurer.Measure(ctx, c.config.Interval)
	if err != nil {
		// Counter features are zero for the cycle; the OS-level features
		// still describe a valid window.
		c.logger.V(1).Info("counter measurement failed", "error", err)
		counts = Counts{}
	}

	// The measurement may return early. The window must span at least the
	// full interval before T1 or the deltas would cover different lengths
	// from cycle to cycle.
	if err := waitUntil(ctx, t0.Taken.Add(c.config.Interval)); err != nil {
		return FeatureSample{}, err
	}

	t1, err := c.snapshotter.Take()
	if err != nil {
		return FeatureSample{}, err
	}

	window := ComputeWindow(t0, t1, c.userHZ)
	derived := ComputeDerived(counts, window)

	return FeatureSample{
		Timestamp:    float64(t1.Taken.UnixNano()) / float64(time.Second),
		TimestampISO: t1.Taken.Format("2006-01-02T15:04:05.000000"),

		CPUCycles:       counts.CPUCycles,
		Instructions:    counts.Instructions,
		CacheReferences: counts.CacheReferences,
		CacheMisses:     counts.CacheMisses,
		Branches:        counts.Branches,
		BranchMisses:    counts.BranchMisses,
		PageFaults:      counts.PageFaults,
		ContextSwitches: counts.ContextSwitches,

		CPUUtilization: window.CPUUtilization,
		CPUUserTime:    window.CPUUserPct,
		CPUSystemTime:  window.CPUSystemPct,
		CPUNiceTime:    window.CPUNicePct,
		CPUIOWait:      window.CPUIOWaitPct,
		CPUIRQ:         window.CPUIRQPct,
		CPUSoftIRQ:     window.CPUSoftIRQPct,
		CPUSteal:       window.CPUStealPct,
		CPUIdle:        window.CPUIdlePct,

		MemoryUsagePercent: t1.MemoryUsagePercent,
		MemoryAvailableGB:  t1.MemoryAvailableGB,
		DiskIOReadMB:       window.DiskReadMB,
		DiskIOWriteMB:      window.DiskWriteMB,
		NetworkBytesSent:   window.NetSent,
		NetworkBytesRecv:   window.NetRecv,

		ProcessCount:     t1.ProcessCount,
		LoadAverage1Min:  t1.Load1,
		LoadAverage5Min:  t1.Load5,
		LoadAverage15Min: t1.Load15,

		InstructionsPerCycle: derived.InstructionsPerCycle,
		CacheMissRatio:       derived.CacheMissRatio,
		BranchMissRatio:      derived.BranchMissRatio,
		CPUEfficiency:        derived.CPUEfficiency,

		SysCPUUserSeconds:   window.SysCPUUserSeconds,
		SysCPUSystemSeconds: window.SysCPUSystemSeconds,
		SysCPUTotalSeconds:  window.SysCPUTotalSeconds,
		SysContextSwitches:  window.SysContextSwitches,
		SysProcessesCreated: window.SysProcessesCreated,
		SysProcsRunning:     t1.ProcsRunning,
		SysProcsBlocked:     t1.ProcsBlocked,

		CollectionInterval: c.config.Interval.Seconds(),
		TimeDeltaSeconds:   window.TimeDelta,
		VMHostname:         c.hostname,
		VMKernelVersion:    c.kernel,
		TargetZones:        TargetZones,
	}, nil
}

// waitUntil blocks until the target time or context cancellation. It
// returns immediately when the target is already in the past.
func waitUntil(ctx context.Context, target time.Time) error {
	wait := time.Until(target)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
