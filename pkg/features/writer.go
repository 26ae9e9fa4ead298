// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package features

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// csvColumns lists every sample field in dataset column order.
var csvColumns = []string{
	"timestamp", "timestamp_iso",
	"cpu_cycles", "instructions", "cache_references", "cache_misses",
	"branches", "branch_misses", "page_faults", "context_switches",
	"cpu_utilization", "cpu_user_time", "cpu_system_time", "cpu_nice_time",
	"cpu_iowait", "cpu_irq", "cpu_softirq", "cpu_steal", "cpu_idle",
	"memory_usage_percent", "memory_available_gb",
	"disk_io_read_mb", "disk_io_write_mb",
	"network_bytes_sent", "network_bytes_recv",
	"process_count", "load_average_1min", "load_average_5min", "load_average_15min",
	"instructions_per_cycle", "cache_miss_ratio", "branch_miss_ratio", "cpu_efficiency",
	"sys_cpu_user_seconds", "sys_cpu_system_seconds", "sys_cpu_total_seconds",
	"sys_context_switches", "sys_processes_created",
	"sys_procs_running", "sys_procs_blocked",
	"collection_interval", "time_delta_seconds",
	"vm_hostname", "vm_kernel_version", "target_zones",
}

func (s FeatureSample) csvRow() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return []string{
		f(s.Timestamp), s.TimestampISO,
		u(s.CPUCycles), u(s.Instructions), u(s.CacheReferences), u(s.CacheMisses),
		u(s.Branches), u(s.BranchMisses), u(s.PageFaults), u(s.ContextSwitches),
		f(s.CPUUtilization), f(s.CPUUserTime), f(s.CPUSystemTime), f(s.CPUNiceTime),
		f(s.CPUIOWait), f(s.CPUIRQ), f(s.CPUSoftIRQ), f(s.CPUSteal), f(s.CPUIdle),
		f(s.MemoryUsagePercent), f(s.MemoryAvailableGB),
		f(s.DiskIOReadMB), f(s.DiskIOWriteMB),
		f(s.NetworkBytesSent), f(s.NetworkBytesRecv),
		strconv.Itoa(s.ProcessCount), f(s.LoadAverage1Min), f(s.LoadAverage5Min), f(s.LoadAverage15Min),
		f(s.InstructionsPerCycle), f(s.CacheMissRatio), f(s.BranchMissRatio), f(s.CPUEfficiency),
		f(s.SysCPUUserSeconds), f(s.SysCPUSystemSeconds), f(s.SysCPUTotalSeconds),
		u(s.SysContextSwitches), u(s.SysProcessesCreated),
		strconv.FormatInt(s.SysProcsRunning, 10), strconv.FormatInt(s.SysProcsBlocked, 10),
		f(s.CollectionInterval), f(s.TimeDeltaSeconds),
		s.VMHostname, s.VMKernelVersion, strings.Join(s.TargetZones, ","),
	}
}

// WriteOutputs writes the samples as JSON with a CSV sibling. JSON is the
// primary format the merge stage consumes.
func WriteOutputs(path string, samples []FeatureSample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if err := WriteJSON(base+".json", samples); err != nil {
		return err
	}
	return WriteCSV(base+".csv", samples)
}

// WriteJSON writes the samples as an indented JSON array.
func WriteJSON(path string, samples []FeatureSample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(samples); err != nil {
		return fmt.Errorf("failed to encode samples: %w", err)
	}
	return nil
}

// WriteCSV writes the samples as CSV with all columns.
func WriteCSV(path string, samples []FeatureSample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, s := range samples {
		if err := w.Write(s.csvRow()); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
