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
	"sort"
	"strconv"
)

// LoadFeatures reads a feature dataset from a JSON array file and returns
// the records sorted by timestamp.
func LoadFeatures(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read features file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse features file %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("features file %s is empty", path)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp() < records[j].Timestamp()
	})
	return records, nil
}

// LoadPower reads a power label dataset from a CSV file and returns the
// records sorted by match time. Columns beyond the timestamp are optional;
// missing values default to zero.
func LoadPower(path string) ([]PowerRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open power file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse power file %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("power file %s has no data rows", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	if _, ok := col["timestamp"]; !ok {
		return nil, fmt.Errorf("power file %s has no timestamp column", path)
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	num := func(row []string, name string) float64 {
		v, err := strconv.ParseFloat(cell(row, name), 64)
		if err != nil {
			return 0
		}
		return v
	}

	records := make([]PowerRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, PowerRecord{
			Timestamp:          num(row, "timestamp"),
			TimestampAbsolute:  num(row, "timestamp_absolute"),
			TimestampISO:       cell(row, "timestamp_iso"),
			CoreWatts:          num(row, "total_cpu_watts_core"),
			PackageWatts:       num(row, "total_cpu_watts_package"),
			VMCount:            int(num(row, "vm_count")),
			CollectionInterval: num(row, "collection_interval"),
			VMFilter:           cell(row, "vm_filter"),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].MatchTime() < records[j].MatchTime()
	})
	return records, nil
}
