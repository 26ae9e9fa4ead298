// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package power

import (
	"fmt"
	"strings"
)

// Summary holds descriptive statistics over a collection run.
type Summary struct {
	Samples        int
	Duration       float64
	MinCoreWatts   float64
	MaxCoreWatts   float64
	AvgCoreWatts   float64
	MinPkgWatts    float64
	MaxPkgWatts    float64
	AvgPkgWatts    float64
	MinVMCount     int
	MaxVMCount     int
	AvgVMCount     float64
	KeplerEndpoint string
	VMFilter       string
}

// Summarize computes a Summary over collected samples. It returns the zero
// value when there are no samples.
func Summarize(samples []Sample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	s := Summary{
		Samples:        len(samples),
		Duration:       samples[len(samples)-1].Timestamp - samples[0].Timestamp,
		MinCoreWatts:   samples[0].TotalCoreWatts,
		MaxCoreWatts:   samples[0].TotalCoreWatts,
		MinPkgWatts:    samples[0].TotalPackageWatts,
		MaxPkgWatts:    samples[0].TotalPackageWatts,
		MinVMCount:     samples[0].VMCount,
		MaxVMCount:     samples[0].VMCount,
		KeplerEndpoint: samples[0].KeplerEndpoint,
		VMFilter:       samples[0].VMFilter,
	}

	var coreSum, pkgSum, vmSum float64
	for _, p := range samples {
		coreSum += p.TotalCoreWatts
		pkgSum += p.TotalPackageWatts
		vmSum += float64(p.VMCount)
		s.MinCoreWatts = min(s.MinCoreWatts, p.TotalCoreWatts)
		s.MaxCoreWatts = max(s.MaxCoreWatts, p.TotalCoreWatts)
		s.MinPkgWatts = min(s.MinPkgWatts, p.TotalPackageWatts)
		s.MaxPkgWatts = max(s.MaxPkgWatts, p.TotalPackageWatts)
		s.MinVMCount = min(s.MinVMCount, p.VMCount)
		s.MaxVMCount = max(s.MaxVMCount, p.VMCount)
	}
	n := float64(len(samples))
	s.AvgCoreWatts = coreSum / n
	s.AvgPkgWatts = pkgSum / n
	s.AvgVMCount = vmSum / n
	return s
}

// String renders the summary as a printable report.
func (s Summary) String() string {
	if s.Samples == 0 {
		return "no power data collected"
	}

	var b strings.Builder
	sep := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "%s\nPOWER COLLECTION SUMMARY\n%s\n", sep, sep)
	fmt.Fprintf(&b, "Kepler endpoint: %s\n", s.KeplerEndpoint)
	fmt.Fprintf(&b, "Total power measurements: %d\n", s.Samples)
	fmt.Fprintf(&b, "Collection duration: %.1f seconds\n\n", s.Duration)
	fmt.Fprintf(&b, "Core Power Range: %.4fW - %.4fW (avg %.4fW)\n",
		s.MinCoreWatts, s.MaxCoreWatts, s.AvgCoreWatts)
	fmt.Fprintf(&b, "Package Power Range: %.4fW - %.4fW (avg %.4fW)\n",
		s.MinPkgWatts, s.MaxPkgWatts, s.AvgPkgWatts)
	fmt.Fprintf(&b, "VM Count Range: %d - %d (avg %.1f)\n", s.MinVMCount, s.MaxVMCount, s.AvgVMCount)
	fmt.Fprintf(&b, "VM Filter: %s\n", s.VMFilter)
	return b.String()
}
