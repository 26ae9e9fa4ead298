// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/antimetal/powertrain/internal/orchestrator"
	"github.com/antimetal/powertrain/pkg/remote"
	"github.com/antimetal/powertrain/pkg/shutdown"
)

var (
	configFile string
	vmName     string
	vmHost     string
	vmUser     string
	vmKeyFile  string
	duration   time.Duration
	workloads  string
	verbose    bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "YAML config file (flags override its values)")
	flag.StringVar(&vmName, "vm-name", "", "VM name for power attribution filtering")
	flag.StringVar(&vmHost, "vm-host", "", "VM address for SSH")
	flag.StringVar(&vmUser, "vm-user", "", "SSH user")
	flag.StringVar(&vmKeyFile, "vm-key-file", "", "SSH private key file")
	flag.DurationVar(&duration, "duration", 0, "Collection duration (overrides config)")
	flag.StringVar(&workloads, "workloads", "", "Comma-separated stress workloads (overrides config)")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
}

func main() {
	flag.Parse()

	// The orchestrator always reports progress; verbose swaps the plain
	// stderr logger for a development zap one with V-level output.
	var logger logr.Logger
	if verbose {
		zapLog, _ := zap.NewDevelopment()
		logger = zapr.NewLogger(zapLog)
	} else {
		logger = stdr.New(log.New(os.Stderr, "", log.LstdFlags))
	}

	config, err := orchestrator.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(&config)

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	runner, err := remote.NewSSHRunner(logger.WithName("ssh"), remote.SSHConfig{
		Host:    config.VM.Host,
		Port:    config.VM.Port,
		User:    config.VM.User,
		KeyFile: config.VM.KeyFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to VM: %v\n", err)
		os.Exit(1)
	}
	defer runner.Close()

	o, err := orchestrator.New(logger, config, runner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := shutdown.SetupSignalHandler(logger)

	result, err := o.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: orchestration failed: %v\n", err)
		os.Exit(1)
	}

	sep := strings.Repeat("=", 60)
	fmt.Printf("%s\nCOLLECTION COMPLETED SUCCESSFULLY\n%s\n", sep, sep)
	fmt.Printf("Run ID: %s\n", result.RunID)
	fmt.Printf("VM Features: %s\n", result.VMFeaturesFile)
	fmt.Printf("BM Power: %s (%d samples)\n", result.BMPowerFile, result.PowerSamples)
	if result.MergedFile != "" {
		fmt.Printf("Merged Dataset: %s (%d points, %.1f%% matched)\n",
			result.MergedFile, result.MergeStats.MatchedPoints, result.MergeStats.MatchRate())
	} else {
		fmt.Printf("Next step: run merge-datasets to combine the data\n")
	}
}

// applyOverrides copies non-zero flag values over the file config.
func applyOverrides(config *orchestrator.Config) {
	if vmName != "" {
		config.VM.Name = vmName
	}
	if vmHost != "" {
		config.VM.Host = vmHost
	}
	if vmUser != "" {
		config.VM.User = vmUser
	}
	if vmKeyFile != "" {
		config.VM.KeyFile = vmKeyFile
	}
	if duration > 0 {
		config.Collection.Duration = duration
	}
	if workloads != "" {
		config.Workloads.Names = strings.Split(workloads, ",")
	}
}
