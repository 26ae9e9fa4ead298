// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package power

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

// behindScheduleSlack is how far a cycle may start late before it is worth
// logging.
const behindScheduleSlack = 100 * time.Millisecond

// progressLogEvery is the cycle count between progress log lines.
const progressLogEvery = 50

// Aggregator samples per-VM power on a fixed schedule and aggregates each
// scrape into a Sample. Sample k is anchored at start + k*interval rather
// than at the previous sample's completion, so timing error never
// accumulates over a run.
type Aggregator struct {
	logger logr.Logger
	config Config
	client *Client
	filter *Filter
}

// RunResult is the outcome of a collection run.
type RunResult struct {
	Samples []Sample
	// ScrapeErrors counts cycles whose scrape failed after all retries.
	// Failed cycles keep their schedule slot; they simply produce no sample.
	ScrapeErrors int
	Start        time.Time
}

// NewAggregator creates an Aggregator from the config. Defaults are applied
// before validation.
func NewAggregator(logger logr.Logger, config Config) (*Aggregator, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	filter, err := NewFilter(config.VMNames, config.VMPattern)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		logger: logger,
		config: config,
		client: NewClient(logger, config.Endpoint, config.MaxRetries, config.RetryBackoff),
		filter: filter,
	}, nil
}

// Probe verifies the endpoint is reachable and returns the number of VM
// readings that pass the filter right now.
func (a *Aggregator) Probe(ctx context.Context) (int, error) {
	readings, err := a.client.Scrape(ctx)
	if err != nil {
		return 0, err
	}
	return len(a.filter.Apply(readings)), nil
}

// Run collects samples for the given duration. Cancelling the context stops
// collection at the next cycle boundary and returns the samples gathered so
// far without error.
func (a *Aggregator) Run(ctx context.Context, duration time.Duration) (*RunResult, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", duration)
	}

	start, err := a.waitForStart(ctx)
	if err != nil {
		return nil, err
	}

	expected := int(duration / a.config.Interval)
	a.logger.Info("starting power collection",
		"endpoint", a.config.Endpoint,
		"interval", a.config.Interval,
		"duration", duration,
		"expectedSamples", expected,
		"filter", a.filter.Describe())

	result := &RunResult{Start: start}
	for k := 0; ; k++ {
		target := start.Add(time.Duration(k) * a.config.Interval)
		if target.Sub(start) >= duration {
			break
		}

		if err := sleepUntil(ctx, target); err != nil {
			a.logger.Info("power collection cancelled", "samples", len(result.Samples))
			return result, nil
		}
		if behind := time.Since(target); behind > behindScheduleSlack {
			a.logger.V(1).Info("running behind schedule", "cycle", k, "behind", behind)
		}

		sample, err := a.collectAt(ctx, start, target)
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("power collection cancelled", "samples", len(result.Samples))
				return result, nil
			}
			// The cycle's schedule slot is consumed either way; the next
			// target is computed from k, not from now.
			result.ScrapeErrors++
			a.logger.Error(err, "failed to collect power sample", "cycle", k)
			continue
		}

		result.Samples = append(result.Samples, sample)
		if len(result.Samples)%progressLogEvery == 0 {
			a.logger.Info("power collection progress",
				"samples", len(result.Samples),
				"elapsed", time.Since(start).Round(100*time.Millisecond),
				"coreWatts", sample.TotalCoreWatts,
				"packageWatts", sample.TotalPackageWatts,
				"vms", sample.VMCount)
		}
	}

	a.logger.Info("power collection completed",
		"samples", len(result.Samples), "errors", result.ScrapeErrors)
	return result, nil
}

// collectAt scrapes the endpoint and builds a Sample stamped with the
// cycle's target time. Using the target rather than the arrival time keeps
// timestamps on the ideal grid shared with the feature collector.
func (a *Aggregator) collectAt(ctx context.Context, start, target time.Time) (Sample, error) {
	readings, err := a.client.Scrape(ctx)
	if err != nil {
		return Sample{}, err
	}

	var core, pkg []VMReading
	for _, vm := range a.filter.Apply(readings) {
		switch vm.Zone {
		case ZoneCore:
			core = append(core, vm)
		case ZonePackage:
			pkg = append(pkg, vm)
		}
	}

	var coreWatts, pkgWatts float64
	for _, vm := range core {
		coreWatts += vm.Watts
	}
	for _, vm := range pkg {
		pkgWatts += vm.Watts
	}

	return Sample{
		Timestamp:          target.Sub(start).Seconds(),
		TimestampAbsolute:  float64(target.UnixNano()) / float64(time.Second),
		TimestampISO:       isoTimestamp(target),
		TotalCoreWatts:     coreWatts,
		TotalPackageWatts:  pkgWatts,
		VMCount:            len(core),
		VMs:                append(core, pkg...),
		CollectionInterval: a.config.Interval.Seconds(),
		KeplerEndpoint:     a.config.Endpoint,
		VMFilter:           a.filter.Describe(),
	}, nil
}

// waitForStart blocks until the configured synchronized start time. A start
// time in the past is kept as the schedule anchor so two collectors given
// the same time still share a timestamp grid, even if one of them was slow
// to launch.
func (a *Aggregator) waitForStart(ctx context.Context) (time.Time, error) {
	if a.config.SyncStart.IsZero() {
		return time.Now(), nil
	}

	now := time.Now()
	if a.config.SyncStart.After(now) {
		a.logger.Info("waiting for synchronized start",
			"start", a.config.SyncStart, "wait", a.config.SyncStart.Sub(now).Round(time.Millisecond))
		if err := sleepUntil(ctx, a.config.SyncStart); err != nil {
			return time.Time{}, err
		}
	} else {
		a.logger.Info("synchronized start time already passed, starting immediately",
			"start", a.config.SyncStart)
	}
	return a.config.SyncStart, nil
}

// sleepUntil blocks until the target time or context cancellation. It
// returns immediately when the target is already in the past.
func sleepUntil(ctx context.Context, target time.Time) error {
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
