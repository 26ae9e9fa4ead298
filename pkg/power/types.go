// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package power collects per-VM CPU power readings from a Kepler metrics
// endpoint running on the bare-metal host and aggregates them into training
// labels for a VM power model.
package power

import (
	"fmt"
	"time"
)

// Zone identifies the RAPL power domain a reading was attributed to.
type Zone string

const (
	ZoneCore    Zone = "core"
	ZonePackage Zone = "package"
)

// MetricName is the exporter metric carrying per-VM CPU power attribution.
const MetricName = "kepler_vm_cpu_watts"

// VMReading is one VM's attributed CPU power in a single zone, as reported
// by a single scrape.
type VMReading struct {
	VMID       string  `json:"vm_id"`
	VMName     string  `json:"vm_name"`
	Hypervisor string  `json:"hypervisor"`
	NodeName   string  `json:"node_name"`
	Zone       Zone    `json:"zone"`
	Watts      float64 `json:"watts"`
	State      string  `json:"state"`
}

// Sample is one aggregated power measurement. Timestamp is relative to the
// start of the collection run so it lines up with feature samples collected
// on the same schedule; TimestampAbsolute carries the wall-clock time used
// for merging datasets recorded on different hosts.
type Sample struct {
	Timestamp         float64 `json:"timestamp"`
	TimestampAbsolute float64 `json:"timestamp_absolute"`
	TimestampISO      string  `json:"timestamp_iso"`

	TotalCoreWatts    float64 `json:"total_cpu_watts_core"`
	TotalPackageWatts float64 `json:"total_cpu_watts_package"`
	VMCount           int     `json:"vm_count"`

	// Per-VM readings behind the totals, kept for debugging and analysis.
	VMs []VMReading `json:"vms"`

	CollectionInterval float64 `json:"collection_interval"`
	KeplerEndpoint     string  `json:"kepler_endpoint"`
	VMFilter           string  `json:"vm_filter"`
}

// Config configures an Aggregator.
type Config struct {
	// Endpoint is the Kepler metrics URL.
	Endpoint string
	// Interval is the sampling interval.
	Interval time.Duration
	// MaxRetries is the number of scrape attempts per sample.
	MaxRetries int
	// RetryBackoff is the fixed delay between scrape attempts.
	RetryBackoff time.Duration
	// VMNames restricts collection to VMs whose vm_name or vm_id is in
	// the list. Empty means no name restriction.
	VMNames []string
	// VMPattern restricts collection to VMs whose vm_name or vm_id
	// matches the regular expression. Empty means no pattern restriction.
	VMPattern string
	// SyncStart, when non-zero, is the wall-clock time collection should
	// begin at. It lets two collectors on different hosts share a schedule.
	SyncStart time.Time
}

const (
	DefaultEndpoint     = "http://localhost:28283/metrics"
	DefaultInterval     = 100 * time.Millisecond
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Second
)

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative, got %s", c.RetryBackoff)
	}
	return nil
}

// isoTimestamp renders t without a zone suffix, microsecond precision.
func isoTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000")
}
