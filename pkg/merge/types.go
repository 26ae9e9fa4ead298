// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package merge aligns VM feature samples with bare-metal power labels by
// timestamp and assembles the merged training dataset.
package merge

import (
	"fmt"
)

// Power zones usable as training labels.
const (
	PowerZoneCore    = "core"
	PowerZonePackage = "package"
)

// Config configures a Merger.
type Config struct {
	// TimeTolerance is the maximum |feature - label| timestamp distance,
	// in seconds, for a pair to count as a match.
	TimeTolerance float64
	// MinPowerThreshold filters out matches whose label wattage is below
	// the noise floor. Zero keeps everything.
	MinPowerThreshold float64
	// PowerZone selects which zone's wattage becomes the label.
	PowerZone string
}

const DefaultTimeTolerance = 0.2

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.TimeTolerance == 0 {
		c.TimeTolerance = DefaultTimeTolerance
	}
	if c.PowerZone == "" {
		c.PowerZone = PowerZoneCore
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.TimeTolerance <= 0 {
		return fmt.Errorf("time tolerance must be positive, got %g", c.TimeTolerance)
	}
	if c.MinPowerThreshold < 0 {
		return fmt.Errorf("min power threshold cannot be negative, got %g", c.MinPowerThreshold)
	}
	if c.PowerZone != PowerZoneCore && c.PowerZone != PowerZonePackage {
		return fmt.Errorf("power zone must be %q or %q, got %q", PowerZoneCore, PowerZonePackage, c.PowerZone)
	}
	return nil
}

// Record is one data row, keyed by column name. Feature rows come straight
// from the feature collector's JSON; merged rows add the label columns.
type Record map[string]any

// Timestamp returns the record's timestamp column, or zero when absent.
func (r Record) Timestamp() float64 {
	v, _ := r["timestamp"].(float64)
	return v
}

// PowerRecord is one row of the power label dataset.
type PowerRecord struct {
	Timestamp          float64
	TimestampAbsolute  float64
	TimestampISO       string
	CoreWatts          float64
	PackageWatts       float64
	VMCount            int
	CollectionInterval float64
	VMFilter           string
}

// MatchTime is the timestamp used for alignment. Feature samples carry
// absolute wall-clock timestamps, so the absolute label timestamp is
// preferred; datasets written without one fall back to the relative column.
func (r PowerRecord) MatchTime() float64 {
	if r.TimestampAbsolute > 0 {
		return r.TimestampAbsolute
	}
	return r.Timestamp
}

// Label returns the wattage for the configured zone.
func (r PowerRecord) Label(zone string) float64 {
	if zone == PowerZonePackage {
		return r.PackageWatts
	}
	return r.CoreWatts
}

// Statistics describes the outcome of a merge.
type Statistics struct {
	VMFeaturePoints int `json:"vm_feature_points"`
	BMPowerPoints   int `json:"bm_power_points"`
	MatchedPoints   int `json:"matched_points"`
	// UnmatchedVMPoints counts feature samples with no label inside the
	// tolerance window.
	UnmatchedVMPoints int `json:"unmatched_vm_points"`
	// UnmatchedBMPoints counts labels never chosen by any feature sample.
	// Labels are denser than features, so some surplus is normal; a large
	// share points at a coverage gap.
	UnmatchedBMPoints int `json:"unmatched_bm_points"`
	// FilteredLowPower counts feature samples that matched in time but
	// whose label was below the noise floor. They are a signal quality
	// problem, not an alignment problem, so they are tracked separately.
	FilteredLowPower int `json:"filtered_low_power_points"`

	TimeRangeVM     [2]float64 `json:"time_range_vm"`
	TimeRangeBM     [2]float64 `json:"time_range_bm"`
	TimeRangeMerged [2]float64 `json:"time_range_merged"`
	PowerRange      [2]float64 `json:"power_range"`

	AverageTimeDiff float64 `json:"average_time_diff"`
	MaxTimeDiff     float64 `json:"max_time_diff"`
}

// MatchRate returns the share of feature samples that produced a training
// row, in percent.
func (s Statistics) MatchRate() float64 {
	if s.VMFeaturePoints == 0 {
		return 0
	}
	return float64(s.MatchedPoints) / float64(s.VMFeaturePoints) * 100.0
}
