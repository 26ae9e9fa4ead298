// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package power

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// csvColumns are the flat per-sample fields; per-VM readings are only
// carried by the JSON output.
var csvColumns = []string{
	"timestamp", "timestamp_absolute", "timestamp_iso", "total_cpu_watts_core",
	"total_cpu_watts_package", "vm_count", "collection_interval", "vm_filter",
}

// WriteOutputs writes the samples to both CSV and JSON next to each other.
// The extension of path picks the primary format; the sibling file gets the
// other extension.
func WriteOutputs(path string, samples []Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if err := WriteCSV(base+".csv", samples); err != nil {
		return err
	}
	return WriteJSON(base+".json", samples)
}

// WriteCSV writes the flat sample fields as CSV.
func WriteCSV(path string, samples []Sample) error {
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
		row := []string{
			formatFloat(s.Timestamp),
			formatFloat(s.TimestampAbsolute),
			s.TimestampISO,
			formatFloat(s.TotalCoreWatts),
			formatFloat(s.TotalPackageWatts),
			strconv.Itoa(s.VMCount),
			formatFloat(s.CollectionInterval),
			s.VMFilter,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteJSON writes the full samples, per-VM readings included, as an
// indented JSON array.
func WriteJSON(path string, samples []Sample) error {
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

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
