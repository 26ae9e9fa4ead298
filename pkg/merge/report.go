// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package merge

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// QualityRating buckets a match rate into a verdict.
type QualityRating string

const (
	QualityExcellent QualityRating = "Excellent"
	QualityGood      QualityRating = "Good"
	QualityFair      QualityRating = "Fair"
	QualityPoor      QualityRating = "Poor"
)

// Rate converts a match rate in percent into a QualityRating.
func Rate(matchRate float64) QualityRating {
	switch {
	case matchRate >= 90:
		return QualityExcellent
	case matchRate >= 80:
		return QualityGood
	case matchRate >= 60:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Recommendations returns actionable suggestions when the merge quality is
// below Good. An empty slice means no advice is warranted.
func Recommendations(stats Statistics, config Config) []string {
	if stats.MatchRate() >= 80 {
		return nil
	}

	var recs []string
	if stats.AverageTimeDiff > config.TimeTolerance*0.5 {
		recs = append(recs, fmt.Sprintf(
			"consider increasing the time tolerance (current: %gs, average difference: %.3fs)",
			config.TimeTolerance, stats.AverageTimeDiff))
	}
	if stats.UnmatchedVMPoints > stats.MatchedPoints/5 {
		recs = append(recs, "check clock synchronization between the VM and bare-metal collectors")
	}
	if stats.FilteredLowPower > stats.MatchedPoints/5 {
		recs = append(recs, fmt.Sprintf(
			"many matches fell below the noise floor; consider lowering the minimum power threshold (current: %gW)",
			config.MinPowerThreshold))
	}
	if stats.MatchedPoints > 0 && stats.PowerRange[1] < 0.01 {
		recs = append(recs, "very low power values throughout; verify the power exporter is attributing VM power")
	}
	return recs
}

// Summary renders a printable report of the merge outcome.
func Summary(stats Statistics, config Config) string {
	var b strings.Builder
	sep := strings.Repeat("=", 80)
	fmt.Fprintf(&b, "%s\nDATASET MERGE SUMMARY\n%s\n", sep, sep)

	fmt.Fprintf(&b, "Input Data:\n")
	fmt.Fprintf(&b, "  VM Feature Points: %d\n", stats.VMFeaturePoints)
	fmt.Fprintf(&b, "  BM Power Points: %d\n", stats.BMPowerPoints)

	fmt.Fprintf(&b, "\nTime Ranges:\n")
	fmt.Fprintf(&b, "  VM Features: %.1fs duration\n", stats.TimeRangeVM[1]-stats.TimeRangeVM[0])
	fmt.Fprintf(&b, "  BM Power: %.1fs duration\n", stats.TimeRangeBM[1]-stats.TimeRangeBM[0])

	fmt.Fprintf(&b, "\nMerge Results:\n")
	fmt.Fprintf(&b, "  Matched Points: %d\n", stats.MatchedPoints)
	fmt.Fprintf(&b, "  Unmatched VM Points: %d\n", stats.UnmatchedVMPoints)
	fmt.Fprintf(&b, "  Unmatched BM Points: %d\n", stats.UnmatchedBMPoints)
	fmt.Fprintf(&b, "  Filtered Low-Power Points: %d\n", stats.FilteredLowPower)
	fmt.Fprintf(&b, "  Match Rate: %.1f%%\n", stats.MatchRate())

	if stats.MatchedPoints > 0 {
		fmt.Fprintf(&b, "\nTiming Accuracy:\n")
		fmt.Fprintf(&b, "  Average Time Difference: %.3fs\n", stats.AverageTimeDiff)
		fmt.Fprintf(&b, "  Maximum Time Difference: %.3fs\n", stats.MaxTimeDiff)
		fmt.Fprintf(&b, "  Time Tolerance Used: %gs\n", config.TimeTolerance)

		fmt.Fprintf(&b, "\nPower Label Statistics:\n")
		fmt.Fprintf(&b, "  Power Zone: %s\n", config.PowerZone)
		fmt.Fprintf(&b, "  Power Range: %.6fW - %.6fW\n", stats.PowerRange[0], stats.PowerRange[1])
		fmt.Fprintf(&b, "  Min Power Threshold: %gW\n", config.MinPowerThreshold)
		fmt.Fprintf(&b, "  Merged Data Duration: %.1fs\n", stats.TimeRangeMerged[1]-stats.TimeRangeMerged[0])
	}

	fmt.Fprintf(&b, "\nDataset Quality:\n")
	fmt.Fprintf(&b, "  Quality Rating: %s (%.1f%% match rate)\n", Rate(stats.MatchRate()), stats.MatchRate())
	if recs := Recommendations(stats, config); len(recs) > 0 {
		fmt.Fprintf(&b, "\nRecommendations:\n")
		for _, r := range recs {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	return b.String()
}

// WriteHTMLReport renders an interactive chart page of the merged dataset:
// the power label series over time and the per-match alignment error.
func WriteHTMLReport(path string, records []Record, stats Statistics, config Config) error {
	if len(records) == 0 {
		return fmt.Errorf("no merged records to chart")
	}

	labels := make([]string, len(records))
	watts := make([]opts.LineData, len(records))
	diffs := make([]opts.LineData, len(records))
	for i, r := range records {
		labels[i] = strconv.FormatFloat(r.Timestamp(), 'f', 2, 64)
		watts[i] = opts.LineData{Value: r["power_watts"]}
		diffs[i] = opts.LineData{Value: r["time_diff"]}
	}

	powerChart := newReportLine(
		fmt.Sprintf("Power Labels (%s zone)", config.PowerZone), "watts")
	powerChart.SetXAxis(labels).AddSeries("power_watts", watts,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	diffChart := newReportLine(
		fmt.Sprintf("Match Time Differences (tolerance %gs)", config.TimeTolerance), "seconds")
	diffChart.SetXAxis(labels).AddSeries("time_diff", diffs,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Merge Report - %s rating, %.1f%% matched",
		Rate(stats.MatchRate()), stats.MatchRate())
	page.AddCharts(powerChart, diffChart)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func newReportLine(title, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Rotate: 45}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: yName}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px"}),
	)
	return line
}
