// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package features

// WindowMetrics are the per-window deltas and shares computed from the two
// snapshots bracketing a collection window.
type WindowMetrics struct {
	TimeDelta float64

	// Shares of total CPU time over the window, in percent.
	CPUUserPct    float64
	CPUNicePct    float64
	CPUSystemPct  float64
	CPUIdlePct    float64
	CPUIOWaitPct  float64
	CPUIRQPct     float64
	CPUSoftIRQPct float64
	CPUStealPct   float64
	// CPUUtilization is 100 minus the idle share.
	CPUUtilization float64

	SysCPUUserSeconds   float64
	SysCPUSystemSeconds float64
	SysCPUTotalSeconds  float64
	SysContextSwitches  uint64
	SysProcessesCreated uint64

	DiskReadMB  float64
	DiskWriteMB float64
	NetSent     float64
	NetRecv     float64
}

// counterDelta computes curr - prev for cumulative counters, clamping to
// zero when the counter reset or wrapped between snapshots.
func counterDelta(curr, prev uint64) uint64 {
	if curr < prev {
		return 0
	}
	return curr - prev
}

// ComputeWindow derives per-window metrics from snapshots t0 and t1 taken
// at the window boundaries. userHZ converts /proc/stat ticks to seconds.
func ComputeWindow(t0, t1 Snapshot, userHZ int64) WindowMetrics {
	m := WindowMetrics{TimeDelta: t1.Taken.Sub(t0.Taken).Seconds()}
	if m.TimeDelta < 1e-6 {
		m.TimeDelta = 1e-6
	}

	user := counterDelta(t1.CPU.User, t0.CPU.User)
	nice := counterDelta(t1.CPU.Nice, t0.CPU.Nice)
	system := counterDelta(t1.CPU.System, t0.CPU.System)
	idle := counterDelta(t1.CPU.Idle, t0.CPU.Idle)
	iowait := counterDelta(t1.CPU.IOWait, t0.CPU.IOWait)
	irq := counterDelta(t1.CPU.IRQ, t0.CPU.IRQ)
	softirq := counterDelta(t1.CPU.SoftIRQ, t0.CPU.SoftIRQ)
	steal := counterDelta(t1.CPU.Steal, t0.CPU.Steal)

	total := user + nice + system + idle + iowait + irq + softirq + steal
	if total > 0 {
		pct := func(ticks uint64) float64 {
			return float64(ticks) / float64(total) * 100.0
		}
		m.CPUUserPct = pct(user)
		m.CPUNicePct = pct(nice)
		m.CPUSystemPct = pct(system)
		m.CPUIdlePct = pct(idle)
		m.CPUIOWaitPct = pct(iowait)
		m.CPUIRQPct = pct(irq)
		m.CPUSoftIRQPct = pct(softirq)
		m.CPUStealPct = pct(steal)
		m.CPUUtilization = 100.0 - m.CPUIdlePct
	}

	hz := float64(userHZ)
	m.SysCPUUserSeconds = float64(user) / hz
	m.SysCPUSystemSeconds = float64(system) / hz
	m.SysCPUTotalSeconds = float64(user+system+nice) / hz

	m.SysContextSwitches = counterDelta(t1.ContextSwitches, t0.ContextSwitches)
	m.SysProcessesCreated = counterDelta(t1.ProcessesCreated, t0.ProcessesCreated)

	m.DiskReadMB = float64(counterDelta(t1.DiskReadBytes, t0.DiskReadBytes)) / (1024 * 1024)
	m.DiskWriteMB = float64(counterDelta(t1.DiskWriteBytes, t0.DiskWriteBytes)) / (1024 * 1024)
	m.NetSent = float64(counterDelta(t1.NetBytesSent, t0.NetBytesSent))
	m.NetRecv = float64(counterDelta(t1.NetBytesRecv, t0.NetBytesRecv))

	return m
}

// Derived holds features computed from counters and window metrics.
type Derived struct {
	InstructionsPerCycle float64
	CacheMissRatio       float64
	BranchMissRatio      float64
	CPUEfficiency        float64
}

// ComputeDerived calculates ratio features, returning zero for any ratio
// whose denominator is zero.
func ComputeDerived(counts Counts, window WindowMetrics) Derived {
	var d Derived
	if counts.CPUCycles > 0 {
		d.InstructionsPerCycle = float64(counts.Instructions) / float64(counts.CPUCycles)
	}
	if counts.CacheReferences > 0 {
		d.CacheMissRatio = float64(counts.CacheMisses) / float64(counts.CacheReferences)
	}
	if counts.Branches > 0 {
		d.BranchMissRatio = float64(counts.BranchMisses) / float64(counts.Branches)
	}
	d.CPUEfficiency = (window.CPUUserPct + window.CPUSystemPct) / 100.0
	return d
}
