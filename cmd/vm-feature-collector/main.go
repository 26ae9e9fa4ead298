// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/antimetal/powertrain/pkg/features"
	"github.com/antimetal/powertrain/pkg/shutdown"
)

var (
	duration   time.Duration
	interval   time.Duration
	output     string
	enablePerf bool
	verbose    bool
)

func init() {
	flag.DurationVar(&duration, "duration", 60*time.Second, "Collection duration (e.g., 60s, 10m)")
	flag.DurationVar(&interval, "interval", time.Second, "Measurement window length")
	flag.StringVar(&output, "output", "vm_features.json", "Output file (JSON primary, CSV written alongside)")
	flag.BoolVar(&enablePerf, "perf", true, "Measure hardware counters via perf stat")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
}

func main() {
	flag.Parse()

	var logger logr.Logger
	if verbose {
		zapLog, _ := zap.NewDevelopment()
		logger = zapr.NewLogger(zapLog)
	} else {
		logger = logr.Discard()
	}

	var measurer features.Measurer
	if enablePerf {
		measurer = features.NewPerfStat(logger)
	} else {
		measurer = features.Disabled{}
	}

	collector, err := features.NewCollector(logger, features.Config{Interval: interval}, measurer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating collector: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== VM Feature Collector ===\n")
	fmt.Printf("Duration: %v, Interval: %v\n", duration, interval)
	fmt.Printf("Counter events: %d\n", len(measurer.Events()))
	fmt.Printf("Output: %s\n\n", output)

	ctx := shutdown.SetupSignalHandler(logger)

	result, err := collector.Run(ctx, duration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: collection failed: %v\n", err)
		os.Exit(1)
	}
	if len(result.Samples) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no samples collected\n")
		os.Exit(1)
	}

	if err := features.WriteOutputs(output, result.Samples); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(features.Summarize(result.Samples).String())
	if result.Errors > 0 {
		fmt.Printf("Failed cycles: %d\n", result.Errors)
	}
}
