// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package merge

import (
	"fmt"
	"math"

	"github.com/go-logr/logr"
)

// Merger pairs feature samples with their closest-in-time power label.
//
// Both inputs are sorted by timestamp, so the search for each feature
// sample starts from a cursor that only moves forward. After a match the
// cursor backs up one position: the next feature sample may be closest to
// the same label, and a label may serve several feature samples when the
// label stream is sparser than the feature stream.
type Merger struct {
	logger logr.Logger
	config Config
}

// NewMerger creates a Merger from the config. Defaults are applied before
// validation.
func NewMerger(logger logr.Logger, config Config) (*Merger, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Merger{logger: logger, config: config}, nil
}

// Merge aligns the two datasets and returns the merged rows plus merge
// statistics. Both inputs must be sorted by timestamp, as the loaders
// guarantee.
func (m *Merger) Merge(features []Record, power []PowerRecord) ([]Record, Statistics, error) {
	if len(features) == 0 || len(power) == 0 {
		return nil, Statistics{}, fmt.Errorf("both feature and power datasets must be non-empty")
	}

	stats := Statistics{
		VMFeaturePoints: len(features),
		BMPowerPoints:   len(power),
		TimeRangeVM:     [2]float64{features[0].Timestamp(), features[len(features)-1].Timestamp()},
		TimeRangeBM:     [2]float64{power[0].MatchTime(), power[len(power)-1].MatchTime()},
	}

	m.logger.Info("merging datasets",
		"featurePoints", len(features),
		"powerPoints", len(power),
		"tolerance", m.config.TimeTolerance,
		"zone", m.config.PowerZone,
		"minPower", m.config.MinPowerThreshold)

	var merged []Record
	var timeDiffSum float64
	cursor := 0
	usedLabels := make(map[int]struct{})
	for i, feature := range features {
		target := feature.Timestamp()

		idx, ok := m.findClosest(power, target, cursor)
		if !ok {
			stats.UnmatchedVMPoints++
			continue
		}
		usedLabels[idx] = struct{}{}
		// Matched labels below the noise floor are filtered, not
		// unmatched; the distinction matters when diagnosing a bad run.
		label := power[idx]
		watts := label.Label(m.config.PowerZone)
		if watts < m.config.MinPowerThreshold {
			stats.FilteredLowPower++
			m.logger.V(1).Info("filtered low power match", "watts", watts, "threshold", m.config.MinPowerThreshold)
			continue
		}

		diff := math.Abs(target - label.MatchTime())
		row := make(Record, len(feature)+6)
		for k, v := range feature {
			row[k] = v
		}
		row["power_watts"] = watts
		row["power_zone"] = m.config.PowerZone
		row["bm_timestamp"] = label.MatchTime()
		row["time_diff"] = diff
		row["vm_count"] = label.VMCount
		row["bm_collection_interval"] = label.CollectionInterval
		merged = append(merged, row)

		stats.MatchedPoints++
		timeDiffSum += diff
		stats.MaxTimeDiff = max(stats.MaxTimeDiff, diff)
		if stats.MatchedPoints == 1 {
			stats.PowerRange = [2]float64{watts, watts}
		} else {
			stats.PowerRange[0] = min(stats.PowerRange[0], watts)
			stats.PowerRange[1] = max(stats.PowerRange[1], watts)
		}
		cursor = max(0, idx-1)

		if (i+1)%100 == 0 {
			m.logger.V(1).Info("merge progress", "processed", i+1, "matched", stats.MatchedPoints)
		}
	}

	stats.UnmatchedBMPoints = len(power) - len(usedLabels)
	if stats.MatchedPoints > 0 {
		stats.AverageTimeDiff = timeDiffSum / float64(stats.MatchedPoints)
		stats.TimeRangeMerged = [2]float64{
			merged[0].Timestamp(),
			merged[len(merged)-1].Timestamp(),
		}
	}

	m.logger.Info("merge completed",
		"matched", stats.MatchedPoints,
		"unmatched", stats.UnmatchedVMPoints,
		"filtered", stats.FilteredLowPower,
		"matchRate", fmt.Sprintf("%.1f%%", stats.MatchRate()))
	return merged, stats, nil
}

// findClosest scans forward from the cursor for the label closest to the
// target timestamp within the tolerance. The scan stops as soon as labels
// pass beyond target plus tolerance; later labels can only be farther.
func (m *Merger) findClosest(power []PowerRecord, target float64, cursor int) (int, bool) {
	closestIdx := -1
	closestDiff := math.Inf(1)

	for i := cursor; i < len(power); i++ {
		t := power[i].MatchTime()
		diff := math.Abs(t - target)
		if diff <= m.config.TimeTolerance && diff < closestDiff {
			closestIdx = i
			closestDiff = diff
		} else if t > target+m.config.TimeTolerance {
			break
		}
	}

	return closestIdx, closestIdx >= 0
}
