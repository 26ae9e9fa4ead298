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
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/antimetal/powertrain/pkg/merge"
)

var (
	vmFeatures        string
	bmPower           string
	output            string
	timeTolerance     float64
	minPowerThreshold float64
	powerZone         string
	htmlReport        bool
	noMetadata        bool
	verbose           bool
)

func init() {
	flag.StringVar(&vmFeatures, "vm-features", "", "VM feature data file (JSON)")
	flag.StringVar(&bmPower, "bm-power", "", "Bare-metal power data file (CSV)")
	flag.StringVar(&output, "output", "training_data.csv", "Merged dataset output file")
	flag.Float64Var(&timeTolerance, "time-tolerance", 0.2, "Maximum timestamp difference for a match (seconds)")
	flag.Float64Var(&minPowerThreshold, "min-power-threshold", 0, "Discard matches with labels below this wattage")
	flag.StringVar(&powerZone, "power-zone", "core", "Power zone used as the label (core|package)")
	flag.BoolVar(&htmlReport, "html-report", false, "Write an HTML chart report next to the output")
	flag.BoolVar(&noMetadata, "no-metadata", false, "Skip the statistics and provenance metadata outputs")
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

	if vmFeatures == "" || bmPower == "" {
		fmt.Fprintf(os.Stderr, "Error: -vm-features and -bm-power are required\n")
		flag.Usage()
		os.Exit(1)
	}

	features, err := merge.LoadFeatures(vmFeatures)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading features: %v\n", err)
		os.Exit(1)
	}
	labels, err := merge.LoadPower(bmPower)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading power data: %v\n", err)
		os.Exit(1)
	}

	config := merge.Config{
		TimeTolerance:     timeTolerance,
		MinPowerThreshold: minPowerThreshold,
		PowerZone:         powerZone,
	}
	merger, err := merge.NewMerger(logger, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	records, stats, err := merger.Merge(features, labels)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: merge failed: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no records matched within tolerance\n")
		os.Exit(1)
	}

	if err := merge.WriteOutputs(output, records, stats, config, !noMetadata); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}

	if htmlReport {
		htmlPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".html"
		if err := merge.WriteHTMLReport(htmlPath, records, stats, config); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing HTML report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("HTML report: %s\n", htmlPath)
	}

	fmt.Println(merge.Summary(stats, config))
}
