// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package features

import (
	"fmt"
	"strings"
)

// Summary holds descriptive statistics over a feature collection run.
type Summary struct {
	Samples  int
	Hostname string
	Duration float64

	MinCPUUtil float64
	MaxCPUUtil float64

	MinSysCPUSeconds float64
	MaxSysCPUSeconds float64
	AvgSysCPUSeconds float64

	// CounterAvailability maps counter feature names to the share of
	// samples in which the counter was non-zero, in percent. A counter
	// pinned at zero usually means the hypervisor does not virtualize it.
	CounterAvailability map[string]float64
}

// Summarize computes a Summary over collected samples. It returns the zero
// value when there are no samples.
func Summarize(samples []FeatureSample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	s := Summary{
		Samples:             len(samples),
		Hostname:            samples[0].VMHostname,
		Duration:            samples[len(samples)-1].Timestamp - samples[0].Timestamp,
		MinCPUUtil:          samples[0].CPUUtilization,
		MaxCPUUtil:          samples[0].CPUUtilization,
		CounterAvailability: make(map[string]float64),
	}

	var sysSum float64
	var sysCount int
	nonZero := map[string]int{}
	for _, p := range samples {
		s.MinCPUUtil = min(s.MinCPUUtil, p.CPUUtilization)
		s.MaxCPUUtil = max(s.MaxCPUUtil, p.CPUUtilization)
		if p.SysCPUTotalSeconds > 0 {
			if sysCount == 0 {
				s.MinSysCPUSeconds = p.SysCPUTotalSeconds
				s.MaxSysCPUSeconds = p.SysCPUTotalSeconds
			}
			s.MinSysCPUSeconds = min(s.MinSysCPUSeconds, p.SysCPUTotalSeconds)
			s.MaxSysCPUSeconds = max(s.MaxSysCPUSeconds, p.SysCPUTotalSeconds)
			sysSum += p.SysCPUTotalSeconds
			sysCount++
		}
		for name, v := range map[string]uint64{
			"cpu_cycles":       p.CPUCycles,
			"instructions":     p.Instructions,
			"cache_references": p.CacheReferences,
			"cache_misses":     p.CacheMisses,
		} {
			if v > 0 {
				nonZero[name]++
			}
		}
	}
	if sysCount > 0 {
		s.AvgSysCPUSeconds = sysSum / float64(sysCount)
	}
	for name, count := range nonZero {
		s.CounterAvailability[name] = float64(count) / float64(len(samples)) * 100.0
	}
	return s
}

// String renders the summary as a printable report.
func (s Summary) String() string {
	if s.Samples == 0 {
		return "no feature data collected"
	}

	var b strings.Builder
	sep := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "%s\nVM FEATURE COLLECTION SUMMARY\n%s\n", sep, sep)
	fmt.Fprintf(&b, "VM Hostname: %s\n", s.Hostname)
	fmt.Fprintf(&b, "Total feature points: %d\n", s.Samples)
	fmt.Fprintf(&b, "Collection duration: %.1f seconds\n\n", s.Duration)
	fmt.Fprintf(&b, "CPU utilization range: %.1f%% - %.1f%%\n", s.MinCPUUtil, s.MaxCPUUtil)
	if s.MaxSysCPUSeconds > 0 {
		fmt.Fprintf(&b, "System CPU seconds per interval: %.2f - %.2f (avg %.2f)\n",
			s.MinSysCPUSeconds, s.MaxSysCPUSeconds, s.AvgSysCPUSeconds)
	}
	if len(s.CounterAvailability) > 0 {
		fmt.Fprintf(&b, "\nCounter availability:\n")
		for _, name := range []string{"cpu_cycles", "instructions", "cache_references", "cache_misses"} {
			fmt.Fprintf(&b, "  %s: %.1f%%\n", name, s.CounterAvailability[name])
		}
	}
	return b.String()
}
