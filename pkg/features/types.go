// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package features collects VM-visible performance metrics for CPU power
// prediction. Each collection cycle brackets one time window with two system
// snapshots and one blocking hardware-counter measurement, so every metric
// in a sample describes the same interval.
package features

import (
	"fmt"
	"time"
)

// FeatureSample is one window's worth of features. Field names in the
// serialized forms are the dataset's column names and are relied on by the
// merge stage.
type FeatureSample struct {
	Timestamp    float64 `json:"timestamp"`
	TimestampISO string  `json:"timestamp_iso"`

	// Hardware counter features measured over the window.
	CPUCycles       uint64 `json:"cpu_cycles"`
	Instructions    uint64 `json:"instructions"`
	CacheReferences uint64 `json:"cache_references"`
	CacheMisses     uint64 `json:"cache_misses"`
	Branches        uint64 `json:"branches"`
	BranchMisses    uint64 `json:"branch_misses"`
	PageFaults      uint64 `json:"page_faults"`
	ContextSwitches uint64 `json:"context_switches"`

	// CPU time shares over the window, in percent of total CPU time.
	CPUUtilization float64 `json:"cpu_utilization"`
	CPUUserTime    float64 `json:"cpu_user_time"`
	CPUSystemTime  float64 `json:"cpu_system_time"`
	CPUNiceTime    float64 `json:"cpu_nice_time"`
	CPUIOWait      float64 `json:"cpu_iowait"`
	CPUIRQ         float64 `json:"cpu_irq"`
	CPUSoftIRQ     float64 `json:"cpu_softirq"`
	CPUSteal       float64 `json:"cpu_steal"`
	CPUIdle        float64 `json:"cpu_idle"`

	// Memory, I/O, and network features.
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	MemoryAvailableGB  float64 `json:"memory_available_gb"`
	DiskIOReadMB       float64 `json:"disk_io_read_mb"`
	DiskIOWriteMB      float64 `json:"disk_io_write_mb"`
	NetworkBytesSent   float64 `json:"network_bytes_sent"`
	NetworkBytesRecv   float64 `json:"network_bytes_recv"`

	// Instantaneous system state at the end of the window.
	ProcessCount     int     `json:"process_count"`
	LoadAverage1Min  float64 `json:"load_average_1min"`
	LoadAverage5Min  float64 `json:"load_average_5min"`
	LoadAverage15Min float64 `json:"load_average_15min"`

	// Derived features.
	InstructionsPerCycle float64 `json:"instructions_per_cycle"`
	CacheMissRatio       float64 `json:"cache_miss_ratio"`
	BranchMissRatio      float64 `json:"branch_miss_ratio"`
	CPUEfficiency        float64 `json:"cpu_efficiency"`

	// System-level CPU time deltas from /proc/stat, in seconds.
	SysCPUUserSeconds   float64 `json:"sys_cpu_user_seconds"`
	SysCPUSystemSeconds float64 `json:"sys_cpu_system_seconds"`
	SysCPUTotalSeconds  float64 `json:"sys_cpu_total_seconds"`
	SysContextSwitches  uint64  `json:"sys_context_switches"`
	SysProcessesCreated uint64  `json:"sys_processes_created"`
	SysProcsRunning     int64   `json:"sys_procs_running"`
	SysProcsBlocked     int64   `json:"sys_procs_blocked"`

	// Metadata.
	CollectionInterval float64  `json:"collection_interval"`
	TimeDeltaSeconds   float64  `json:"time_delta_seconds"`
	VMHostname         string   `json:"vm_hostname"`
	VMKernelVersion    string   `json:"vm_kernel_version"`
	TargetZones        []string `json:"target_zones"`
}

// TargetZones is the power-zone set the labels for these features cover.
var TargetZones = []string{"package", "core"}

// Config configures a Collector.
type Config struct {
	// Interval is the length of each collection window.
	Interval time.Duration
	// ProcPath is the root of the proc filesystem.
	ProcPath string
	// Hostname overrides the detected VM hostname in sample metadata.
	Hostname string
}

const (
	DefaultInterval = time.Second
	DefaultProcPath = "/proc"
)

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.ProcPath == "" {
		c.ProcPath = DefaultProcPath
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.ProcPath == "" {
		return fmt.Errorf("proc path cannot be empty")
	}
	return nil
}
