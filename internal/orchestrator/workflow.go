// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package orchestrator coordinates a full training-data collection run:
// stress workloads and the feature collector on the VM over SSH, the
// power aggregator locally against the Kepler exporter, file transfer
// back, and an optional merge of the two datasets.
package orchestrator

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/antimetal/powertrain/pkg/merge"
	"github.com/antimetal/powertrain/pkg/power"
	"github.com/antimetal/powertrain/pkg/remote"
)

const (
	collectorBinary = "bin/vm-feature-collector"
	stressBinary    = "bin/stress-workloads"

	remotePollInterval = 2 * time.Second
)

// Orchestrator runs the collection workflow. The remote side is reached
// through the Runner interface only.
type Orchestrator struct {
	logger logr.Logger
	config Config
	runner remote.Runner
}

// RunResult reports what a completed run produced.
type RunResult struct {
	RunID          string
	VMFeaturesFile string
	BMPowerFile    string
	MergedFile     string
	PowerSamples   int
	MergeStats     *merge.Statistics
}

func New(logger logr.Logger, config Config, runner remote.Runner) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	return &Orchestrator{logger: logger, config: config, runner: runner}, nil
}

// Run executes the whole workflow. On failure the remote processes are
// stopped before the error is returned so nothing keeps stressing the VM.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{RunID: uuid.NewString()}
	stamp := time.Now().Format("20060102_150405")
	baseName := fmt.Sprintf("%s_%s", o.config.Collection.OutputPrefix, stamp)

	remoteFeatures := path.Join("data", fmt.Sprintf("vm_features_%s.json", baseName))
	result.VMFeaturesFile = filepath.Join(o.config.Collection.OutputDir, fmt.Sprintf("vm_features_%s.json", baseName))
	result.BMPowerFile = filepath.Join(o.config.Collection.OutputDir, fmt.Sprintf("bm_power_%s.csv", baseName))

	o.logger.Info("starting orchestrated collection",
		"runID", result.RunID,
		"vm", o.config.VM.Name,
		"duration", o.config.Collection.Duration,
		"workloads", strings.Join(o.config.Workloads.Names, ","))

	if err := o.verifyRemoteLayout(ctx); err != nil {
		return nil, err
	}
	if _, err := o.runner.Execute(ctx, o.remoteCommand("mkdir -p data")); err != nil {
		return nil, fmt.Errorf("failed to create remote data directory: %w", err)
	}

	if err := o.startStressWorkloads(ctx); err != nil {
		return nil, err
	}

	collectorPID, err := o.startFeatureCollector(ctx, remoteFeatures)
	if err != nil {
		o.stopRemoteProcesses(ctx)
		return nil, err
	}

	samples, err := o.runPowerCollection(ctx, result.BMPowerFile)
	if err != nil {
		o.stopRemoteProcesses(ctx)
		return nil, err
	}
	result.PowerSamples = samples

	if err := o.waitForRemoteExit(ctx, collectorPID); err != nil {
		o.logger.Error(err, "feature collector did not exit cleanly, killing remote processes")
	}
	o.stopRemoteProcesses(ctx)

	if err := o.runner.TransferFile(path.Join(o.config.VM.ProjectPath, remoteFeatures), result.VMFeaturesFile); err != nil {
		return nil, fmt.Errorf("failed to transfer feature data: %w", err)
	}

	if o.config.Merge.Enabled {
		if err := o.mergeDatasets(result); err != nil {
			return nil, err
		}
	}

	o.logger.Info("orchestrated collection completed",
		"runID", result.RunID,
		"features", result.VMFeaturesFile,
		"power", result.BMPowerFile,
		"merged", result.MergedFile)
	return result, nil
}

// remoteCommand scopes a command to the VM's project directory.
func (o *Orchestrator) remoteCommand(command string) string {
	return fmt.Sprintf("cd %s && %s", o.config.VM.ProjectPath, command)
}

// verifyRemoteLayout checks the VM carries the binaries the run needs
// before anything is started.
func (o *Orchestrator) verifyRemoteLayout(ctx context.Context) error {
	for _, bin := range []string{collectorBinary, stressBinary} {
		result, err := o.runner.Execute(ctx, o.remoteCommand(fmt.Sprintf("test -x %s", bin)))
		if err != nil {
			return fmt.Errorf("failed to verify remote layout: %w", err)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("required binary %s not found under %s on VM", bin, o.config.VM.ProjectPath)
		}
	}
	o.logger.V(1).Info("remote project layout verified", "path", o.config.VM.ProjectPath)
	return nil
}

// startStressWorkloads launches the load generator with a margin past
// the collection window so the final windows still see a busy system.
func (o *Orchestrator) startStressWorkloads(ctx context.Context) error {
	total := o.config.Collection.Duration + o.config.Workloads.Margin
	cmd := o.remoteCommand(fmt.Sprintf("%s -workloads %s -cpu-intensive-duration %s -total-duration %s",
		stressBinary,
		strings.Join(o.config.Workloads.Names, ","),
		o.config.Workloads.CPUIntensiveDuration,
		total))

	pid, err := o.runner.ExecuteBackground(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to start stress workloads: %w", err)
	}
	o.logger.Info("stress workloads started", "pid", pid, "total", total)
	return nil
}

func (o *Orchestrator) startFeatureCollector(ctx context.Context, output string) (string, error) {
	cmd := o.remoteCommand(fmt.Sprintf("%s -duration %s -interval %s -output %s",
		collectorBinary,
		o.config.Collection.Duration,
		o.config.Collection.Interval,
		output))

	pid, err := o.runner.ExecuteBackground(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("failed to start feature collector: %w", err)
	}
	o.logger.Info("feature collector started", "pid", pid, "output", output)
	return pid, nil
}

// runPowerCollection runs the local power aggregator in-process for the
// configured duration and writes its outputs.
func (o *Orchestrator) runPowerCollection(ctx context.Context, output string) (int, error) {
	agg, err := power.NewAggregator(o.logger.WithName("power"), power.Config{
		Endpoint:  o.config.Collection.KeplerEndpoint,
		Interval:  o.config.Collection.Interval,
		VMNames:   []string{o.config.VM.Name},
		SyncStart: time.Now().Add(o.config.Collection.StartLead),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create power aggregator: %w", err)
	}

	if _, err := agg.Probe(ctx); err != nil {
		return 0, fmt.Errorf("power exporter connectivity check failed: %w", err)
	}

	result, err := agg.Run(ctx, o.config.Collection.Duration)
	if err != nil {
		return 0, fmt.Errorf("power collection failed: %w", err)
	}
	if len(result.Samples) == 0 {
		return 0, fmt.Errorf("power collection produced no samples")
	}
	if err := power.WriteOutputs(output, result.Samples); err != nil {
		return 0, fmt.Errorf("failed to write power data: %w", err)
	}
	return len(result.Samples), nil
}

// waitForRemoteExit polls the collector PID until it exits or the
// workload margin runs out.
func (o *Orchestrator) waitForRemoteExit(ctx context.Context, pid string) error {
	deadline := time.Now().Add(o.config.Workloads.Margin + 30*time.Second)
	for time.Now().Before(deadline) {
		result, err := o.runner.Execute(ctx, fmt.Sprintf("kill -0 %s", pid))
		if err != nil {
			return fmt.Errorf("failed to poll remote collector: %w", err)
		}
		if result.ExitCode != 0 {
			o.logger.V(1).Info("feature collector exited", "pid", pid)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remotePollInterval):
		}
	}
	return fmt.Errorf("feature collector (pid %s) still running past deadline", pid)
}

// stopRemoteProcesses kills anything the run started on the VM. Errors
// are ignored; the processes may have exited already.
func (o *Orchestrator) stopRemoteProcesses(ctx context.Context) {
	for _, pattern := range []string{"vm-feature-collector", "stress-workloads", "stress-ng"} {
		if _, err := o.runner.Execute(ctx, fmt.Sprintf("pkill -f %s", pattern)); err != nil {
			o.logger.V(1).Info("remote cleanup command failed", "pattern", pattern, "error", err.Error())
		}
	}
	o.logger.Info("remote processes stopped")
}

// mergeDatasets aligns the transferred feature data with the local
// power labels and writes the merged dataset next to the inputs.
func (o *Orchestrator) mergeDatasets(result *RunResult) error {
	features, err := merge.LoadFeatures(result.VMFeaturesFile)
	if err != nil {
		return fmt.Errorf("failed to load feature data: %w", err)
	}
	labels, err := merge.LoadPower(result.BMPowerFile)
	if err != nil {
		return fmt.Errorf("failed to load power data: %w", err)
	}

	cfg := merge.Config{
		TimeTolerance:     o.config.Merge.TimeTolerance,
		MinPowerThreshold: o.config.Merge.MinPowerThreshold,
		PowerZone:         o.config.Merge.PowerZone,
	}
	merger, err := merge.NewMerger(o.logger.WithName("merge"), cfg)
	if err != nil {
		return err
	}
	records, stats, err := merger.Merge(features, labels)
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	base := strings.TrimSuffix(result.VMFeaturesFile, filepath.Ext(result.VMFeaturesFile))
	result.MergedFile = strings.Replace(base, "vm_features_", "training_data_", 1) + ".csv"
	if err := merge.WriteOutputs(result.MergedFile, records, stats, cfg, true); err != nil {
		return fmt.Errorf("failed to write merged dataset: %w", err)
	}
	if o.config.Merge.HTMLReport {
		htmlPath := strings.TrimSuffix(result.MergedFile, ".csv") + ".html"
		if err := merge.WriteHTMLReport(htmlPath, records, stats, cfg); err != nil {
			return fmt.Errorf("failed to write merge report: %w", err)
		}
	}
	result.MergeStats = &stats
	return nil
}
