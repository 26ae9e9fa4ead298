// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package features

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// sectorSize is the unit of the sector counters in /proc/diskstats.
const sectorSize = 512

// CPUTicks holds the cumulative CPU time fields of the aggregate cpu line
// in /proc/stat, in USER_HZ ticks.
type CPUTicks struct {
	User    uint64
	Nice    uint64
	System  uint64
	Idle    uint64
	IOWait  uint64
	IRQ     uint64
	SoftIRQ uint64
	Steal   uint64
}

// Total returns the sum of all tracked tick fields.
func (t CPUTicks) Total() uint64 {
	return t.User + t.Nice + t.System + t.Idle + t.IOWait + t.IRQ + t.SoftIRQ + t.Steal
}

// Snapshot is a point-in-time capture of the cumulative system counters a
// collection window is computed from, plus the instantaneous state recorded
// with the window.
type Snapshot struct {
	Taken time.Time

	CPU              CPUTicks
	ContextSwitches  uint64
	ProcessesCreated uint64
	ProcsRunning     int64
	ProcsBlocked     int64

	MemoryUsagePercent float64
	MemoryAvailableGB  float64

	DiskReadBytes  uint64
	DiskWriteBytes uint64

	NetBytesSent uint64
	NetBytesRecv uint64

	ProcessCount int
	Load1        float64
	Load5        float64
	Load15       float64
}

// Snapshotter reads Snapshots from a proc filesystem root.
type Snapshotter struct {
	logger   logr.Logger
	procPath string
}

// NewSnapshotter creates a Snapshotter rooted at procPath.
func NewSnapshotter(logger logr.Logger, procPath string) *Snapshotter {
	return &Snapshotter{logger: logger, procPath: procPath}
}

// Take captures a Snapshot. /proc/stat is required; the remaining sources
// degrade to zero values with a log line so a restricted environment still
// yields partial features.
func (s *Snapshotter) Take() (Snapshot, error) {
	snap := Snapshot{Taken: time.Now()}

	if err := s.readStat(&snap); err != nil {
		return Snapshot{}, err
	}
	if err := s.readMeminfo(&snap); err != nil {
		s.logger.V(1).Info("meminfo unavailable", "error", err)
	}
	if err := s.readDiskstats(&snap); err != nil {
		s.logger.V(1).Info("diskstats unavailable", "error", err)
	}
	if err := s.readNetDev(&snap); err != nil {
		s.logger.V(1).Info("net/dev unavailable", "error", err)
	}
	if err := s.readLoadavg(&snap); err != nil {
		s.logger.V(1).Info("loadavg unavailable", "error", err)
	}
	snap.ProcessCount = s.countProcesses()

	return snap, nil
}

// readStat parses the aggregate cpu line and the system activity counters.
// Missing or malformed fields default to zero.
func (s *Snapshotter) readStat(snap *Snapshot) error {
	path := filepath.Join(s.procPath, "stat")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "cpu":
			ticks := []*uint64{
				&snap.CPU.User, &snap.CPU.Nice, &snap.CPU.System, &snap.CPU.Idle,
				&snap.CPU.IOWait, &snap.CPU.IRQ, &snap.CPU.SoftIRQ, &snap.CPU.Steal,
			}
			for i, dst := range ticks {
				if i+1 < len(fields) {
					*dst = s.parseUint(fields[i+1], "cpu tick")
				}
			}
		case "ctxt":
			snap.ContextSwitches = s.parseUint(fields[1], "ctxt")
		case "processes":
			snap.ProcessesCreated = s.parseUint(fields[1], "processes")
		case "procs_running":
			snap.ProcsRunning = int64(s.parseUint(fields[1], "procs_running"))
		case "procs_blocked":
			snap.ProcsBlocked = int64(s.parseUint(fields[1], "procs_blocked"))
		}
	}
	return scanner.Err()
}

func (s *Snapshotter) readMeminfo(snap *Snapshot) error {
	path := filepath.Join(s.procPath, "meminfo")
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var totalKB, availKB uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = s.parseUint(fields[1], "MemTotal")
		case "MemAvailable:":
			availKB = s.parseUint(fields[1], "MemAvailable")
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if totalKB > 0 {
		snap.MemoryUsagePercent = float64(totalKB-availKB) / float64(totalKB) * 100.0
	}
	snap.MemoryAvailableGB = float64(availKB) / (1024 * 1024)
	return nil
}

// readDiskstats sums the sector counters of whole disks. Partitions are
// skipped so bytes are not counted twice.
func (s *Snapshotter) readDiskstats(snap *Snapshot) error {
	path := filepath.Join(s.procPath, "diskstats")
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// major minor name reads rmerged rsect rtime writes wmerged wsect ...
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		if isPartition(fields[2]) {
			continue
		}
		snap.DiskReadBytes += s.parseUint(fields[5], "sectors read") * sectorSize
		snap.DiskWriteBytes += s.parseUint(fields[9], "sectors written") * sectorSize
	}
	return scanner.Err()
}

// readNetDev sums rx/tx byte counters over all interfaces except loopback.
func (s *Snapshotter) readNetDev(snap *Snapshot) error {
	path := filepath.Join(s.procPath, "net", "dev")
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= 2 {
			continue
		}
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == "lo" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 16 {
			continue
		}
		snap.NetBytesRecv += s.parseUint(fields[0], "rx_bytes")
		snap.NetBytesSent += s.parseUint(fields[8], "tx_bytes")
	}
	return scanner.Err()
}

func (s *Snapshotter) readLoadavg(snap *Snapshot) error {
	path := filepath.Join(s.procPath, "loadavg")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return fmt.Errorf("unexpected loadavg format: %q", string(data))
	}
	snap.Load1 = s.parseFloat(fields[0], "load1")
	snap.Load5 = s.parseFloat(fields[1], "load5")
	snap.Load15 = s.parseFloat(fields[2], "load15")
	return nil
}

// countProcesses counts the numeric entries of the proc root.
func (s *Snapshotter) countProcesses() int {
	entries, err := os.ReadDir(s.procPath)
	if err != nil {
		s.logger.V(1).Info("failed to count processes", "error", err)
		return 0
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.ParseUint(e.Name(), 10, 64); err == nil {
			count++
		}
	}
	return count
}

func (s *Snapshotter) parseUint(v, what string) uint64 {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		s.logger.V(2).Info("failed to parse value", "field", what, "value", v, "error", err)
		return 0
	}
	return n
}

func (s *Snapshotter) parseFloat(v, what string) float64 {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		s.logger.V(2).Info("failed to parse value", "field", what, "value", v, "error", err)
		return 0
	}
	return n
}

// isPartition reports whether a block device name is a partition rather
// than a whole disk. Loop and device-mapper devices end with digits but are
// whole devices.
func isPartition(device string) bool {
	if device == "" {
		return false
	}
	if strings.HasPrefix(device, "loop") || strings.HasPrefix(device, "dm-") {
		return false
	}
	if strings.Contains(device, "nvme") || strings.Contains(device, "mmcblk") {
		idx := strings.LastIndex(device, "p")
		if idx > 0 && idx < len(device)-1 {
			for _, ch := range device[idx+1:] {
				if ch < '0' || ch > '9' {
					return false
				}
			}
			return true
		}
		return false
	}
	last := device[len(device)-1]
	return last >= '0' && last <= '9'
}
