// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config drives a full training-data collection run. Values resolve as
// defaults < YAML file < command-line overrides.
type Config struct {
	VM         VMConfig         `yaml:"vm"`
	Collection CollectionConfig `yaml:"collection"`
	Workloads  WorkloadConfig   `yaml:"workloads"`
	Merge      MergeConfig      `yaml:"merge"`
}

// VMConfig locates the VM under test, both for SSH access and for
// filtering its power attribution out of the exporter metrics.
type VMConfig struct {
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	User        string `yaml:"user"`
	Port        int    `yaml:"port"`
	KeyFile     string `yaml:"key_file"`
	ProjectPath string `yaml:"project_path"`
}

type CollectionConfig struct {
	Duration       time.Duration `yaml:"duration"`
	Interval       time.Duration `yaml:"interval"`
	KeplerEndpoint string        `yaml:"kepler_endpoint"`
	OutputDir      string        `yaml:"output_dir"`
	OutputPrefix   string        `yaml:"output_prefix"`
	StartLead      time.Duration `yaml:"start_lead"`
}

// WorkloadConfig names the stress workloads the VM runs during
// collection. The margin keeps the load alive past the collectors so
// the last windows still measure a busy system.
type WorkloadConfig struct {
	Names                []string      `yaml:"names"`
	CPUIntensiveDuration time.Duration `yaml:"cpu_intensive_duration"`
	Margin               time.Duration `yaml:"margin"`
}

type MergeConfig struct {
	Enabled           bool    `yaml:"enabled"`
	TimeTolerance     float64 `yaml:"time_tolerance"`
	MinPowerThreshold float64 `yaml:"min_power_threshold"`
	PowerZone         string  `yaml:"power_zone"`
	HTMLReport        bool    `yaml:"html_report"`
}

// DefaultConfig returns the configuration used when neither the file
// nor the flags say otherwise.
func DefaultConfig() Config {
	return Config{
		VM: VMConfig{
			User:        "root",
			Port:        22,
			ProjectPath: "/root/powertrain",
		},
		Collection: CollectionConfig{
			Duration:       800 * time.Second,
			Interval:       time.Second,
			KeplerEndpoint: "http://localhost:28283/metrics",
			OutputDir:      "data",
			OutputPrefix:   "training",
			StartLead:      5 * time.Second,
		},
		Workloads: WorkloadConfig{
			Names:                []string{"cycle", "cpu_intensive"},
			CPUIntensiveDuration: 120 * time.Second,
			Margin:               10 * time.Second,
		},
		Merge: MergeConfig{
			Enabled:       true,
			TimeTolerance: 0.2,
			PowerZone:     "core",
		},
	}
}

// LoadConfig builds the config from defaults overlaid with the YAML
// file at path. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.VM.Name == "" {
		return fmt.Errorf("vm.name is required")
	}
	if c.VM.Host == "" {
		return fmt.Errorf("vm.host is required")
	}
	if c.Collection.Duration <= 0 {
		return fmt.Errorf("collection.duration must be positive, got %s", c.Collection.Duration)
	}
	if c.Collection.Interval <= 0 {
		return fmt.Errorf("collection.interval must be positive, got %s", c.Collection.Interval)
	}
	if len(c.Workloads.Names) == 0 {
		return fmt.Errorf("workloads.names must not be empty")
	}
	if c.Merge.Enabled {
		if c.Merge.PowerZone != "core" && c.Merge.PowerZone != "package" {
			return fmt.Errorf("merge.power_zone must be core or package, got %q", c.Merge.PowerZone)
		}
		if c.Merge.TimeTolerance <= 0 {
			return fmt.Errorf("merge.time_tolerance must be positive, got %g", c.Merge.TimeTolerance)
		}
	}
	return nil
}
