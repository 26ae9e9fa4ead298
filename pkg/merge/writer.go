// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package merge

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// importantColumns lead the merged dataset so the label and its alignment
// error sit next to the timestamps.
var importantColumns = []string{"timestamp", "timestamp_iso", "power_watts", "time_diff"}

// featurePrefixes classify columns as model features for ordering and for
// the metadata's feature column list.
var featurePrefixes = []string{
	"cpu_", "memory_", "disk_", "network_", "process_count",
	"load_average", "instructions_", "cache_", "branch_", "sys_",
}

func isFeatureColumn(name string) bool {
	for _, p := range featurePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// ColumnOrder computes the dataset's column layout: important columns
// first, then feature columns, then everything else. Groups are sorted so
// the layout is deterministic regardless of input map order.
func ColumnOrder(records []Record) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		for k := range r {
			seen[k] = true
		}
	}

	var ordered []string
	for _, c := range importantColumns {
		if seen[c] {
			ordered = append(ordered, c)
			delete(seen, c)
		}
	}

	var feature, metadata []string
	for k := range seen {
		if isFeatureColumn(k) {
			feature = append(feature, k)
		} else {
			metadata = append(metadata, k)
		}
	}
	sort.Strings(feature)
	sort.Strings(metadata)

	ordered = append(ordered, feature...)
	return append(ordered, metadata...)
}

// FeatureColumns returns the feature-classified columns of the layout.
func FeatureColumns(columns []string) []string {
	var feature []string
	for _, c := range columns {
		if isFeatureColumn(c) {
			feature = append(feature, c)
		}
	}
	return feature
}

// MergeInfo is the provenance block stamped into metadata outputs.
type MergeInfo struct {
	MergeID           string   `json:"merge_id"`
	MergeTimestamp    string   `json:"merge_timestamp"`
	PowerZone         string   `json:"power_zone"`
	TimeTolerance     float64  `json:"time_tolerance"`
	MinPowerThreshold float64  `json:"min_power_threshold"`
	TotalPoints       int      `json:"total_points"`
	FeatureColumns    []string `json:"feature_columns"`
	TotalColumns      int      `json:"total_columns"`
}

// NewMergeInfo builds the provenance block for one merge run.
func NewMergeInfo(config Config, records []Record, columns []string) MergeInfo {
	return MergeInfo{
		MergeID:           uuid.NewString(),
		MergeTimestamp:    time.Now().Format(time.RFC3339),
		PowerZone:         config.PowerZone,
		TimeTolerance:     config.TimeTolerance,
		MinPowerThreshold: config.MinPowerThreshold,
		TotalPoints:       len(records),
		FeatureColumns:    FeatureColumns(columns),
		TotalColumns:      len(columns),
	}
}

// WriteOutputs writes the merged dataset in all formats next to each other:
// CSV (primary), JSON document, parquet, and when includeMetadata is set a
// .metadata.json sidecar. The CSV contains data only and is byte-identical
// across runs over the same inputs.
func WriteOutputs(path string, records []Record, stats Statistics, config Config, includeMetadata bool) error {
	if len(records) == 0 {
		return fmt.Errorf("no merged records to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	columns := ColumnOrder(records)
	info := NewMergeInfo(config, records, columns)
	base := strings.TrimSuffix(path, filepath.Ext(path))

	if err := WriteCSV(base+".csv", records, columns); err != nil {
		return err
	}
	if err := WriteJSON(base+".json", records, stats, info, includeMetadata); err != nil {
		return err
	}
	if err := WriteParquet(base+".parquet", records, columns); err != nil {
		return err
	}
	if includeMetadata {
		return WriteMetadata(base+".metadata.json", stats, info)
	}
	return nil
}

// WriteCSV writes the merged rows with the given column layout.
func WriteCSV(path string, records []Record, columns []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	row := make([]string, len(columns))
	for _, r := range records {
		for i, c := range columns {
			row[i] = formatCell(r[c])
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteJSON writes the full merged document: rows plus, optionally, the
// statistics and provenance blocks.
func WriteJSON(path string, records []Record, stats Statistics, info MergeInfo, includeMetadata bool) error {
	doc := struct {
		Data       []Record    `json:"data"`
		Statistics *Statistics `json:"statistics"`
		Metadata   *MergeInfo  `json:"metadata"`
	}{Data: records}
	if includeMetadata {
		doc.Statistics = &stats
		doc.Metadata = &info
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode merged dataset: %w", err)
	}
	return nil
}

// WriteMetadata writes the statistics and provenance sidecar.
func WriteMetadata(path string, stats Statistics, info MergeInfo) error {
	doc := struct {
		Statistics Statistics `json:"statistics"`
		MergeInfo  MergeInfo  `json:"merge_info"`
	}{Statistics: stats, MergeInfo: info}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return nil
}

// WriteParquet writes the merged rows as parquet, inferring the schema
// from the first row's value types.
func WriteParquet(path string, records []Record, columns []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	fields := make(map[string]parquet.Node, len(columns))
	for _, c := range columns {
		fields[c] = parquet.Optional(inferParquetNode(records[0][c]))
	}
	schema := parquet.NewSchema("training_data", parquet.Group(fields))

	w := parquet.NewGenericWriter[any](f, schema)
	for _, r := range records {
		row := make(map[string]any, len(r))
		for k, v := range r {
			// List-valued metadata (target_zones) flattens to a string cell,
			// same as in the CSV.
			if s, ok := listCell(v); ok {
				v = s
			}
			row[k] = v
		}
		if _, err := w.Write([]any{row}); err != nil {
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func inferParquetNode(v any) parquet.Node {
	switch v.(type) {
	case int, int32, int64:
		return parquet.Leaf(parquet.Int64Type)
	case float32, float64:
		return parquet.Leaf(parquet.DoubleType)
	case bool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func formatCell(v any) string {
	if s, ok := listCell(v); ok {
		return s
	}
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// listCell flattens a string-list value to a comma-joined cell.
func listCell(v any) (string, bool) {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, ","), true
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = fmt.Sprintf("%v", e)
		}
		return strings.Join(parts, ","), true
	default:
		return "", false
	}
}
