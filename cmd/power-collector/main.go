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
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/antimetal/powertrain/pkg/power"
	"github.com/antimetal/powertrain/pkg/shutdown"
)

var (
	duration  time.Duration
	interval  time.Duration
	endpoint  string
	output    string
	vmNames   string
	vmPattern string
	startTime int64
	verbose   bool
)

func init() {
	flag.DurationVar(&duration, "duration", 60*time.Second, "Collection duration (e.g., 60s, 10m)")
	flag.DurationVar(&interval, "interval", 100*time.Millisecond, "Sampling interval")
	flag.StringVar(&endpoint, "endpoint", "http://localhost:28283/metrics", "Kepler metrics endpoint URL")
	flag.StringVar(&output, "output", "bm_power.csv", "Output file (CSV primary, JSON written alongside)")
	flag.StringVar(&vmNames, "vm-names", "", "Comma-separated VM names to include (empty = all)")
	flag.StringVar(&vmPattern, "vm-pattern", "", "Regex matched against VM names/IDs")
	flag.Int64Var(&startTime, "start-time", 0, "Synchronized start time (unix seconds, 0 = now)")
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

	config := power.Config{
		Endpoint:  endpoint,
		Interval:  interval,
		VMPattern: vmPattern,
	}
	if vmNames != "" {
		config.VMNames = strings.Split(vmNames, ",")
	}
	if startTime > 0 {
		config.SyncStart = time.Unix(startTime, 0)
	}

	agg, err := power.NewAggregator(logger, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating aggregator: %v\n", err)
		os.Exit(1)
	}

	ctx := shutdown.SetupSignalHandler(logger)

	// The connectivity probe is fatal: a run that cannot reach the
	// exporter would produce an empty label file.
	count, err := agg.Probe(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach %s: %v\n", endpoint, err)
		os.Exit(1)
	}

	fmt.Printf("=== Bare-Metal Power Collector ===\n")
	fmt.Printf("Endpoint: %s\n", endpoint)
	fmt.Printf("Duration: %v, Interval: %v\n", duration, interval)
	fmt.Printf("VMs visible after filtering: %d\n", count)
	fmt.Printf("Output: %s\n\n", output)

	result, err := agg.Run(ctx, duration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: collection failed: %v\n", err)
		os.Exit(1)
	}
	if len(result.Samples) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no samples collected\n")
		os.Exit(1)
	}

	if err := power.WriteOutputs(output, result.Samples); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(power.Summarize(result.Samples).String())
	if result.ScrapeErrors > 0 {
		fmt.Printf("Scrape errors: %d\n", result.ScrapeErrors)
	}
}
