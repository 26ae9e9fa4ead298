// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package power

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFixtures() []Sample {
	return []Sample{
		{
			Timestamp:          0,
			TimestampAbsolute:  1700000000.0,
			TimestampISO:       "2023-11-14T14:13:20.000000",
			TotalCoreWatts:     0.75,
			TotalPackageWatts:  1.2,
			VMCount:            2,
			VMs:                []VMReading{{VMName: "fedora40", Zone: ZoneCore, Watts: 0.5}},
			CollectionInterval: 0.1,
			KeplerEndpoint:     "http://localhost:28283/metrics",
			VMFilter:           "all",
		},
		{
			Timestamp:         0.1,
			TimestampAbsolute: 1700000000.1,
			TotalCoreWatts:    0.5,
			TotalPackageWatts: 0.9,
			VMCount:           1,
		},
	}
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "power_data.csv")

	require.NoError(t, WriteOutputs(out, sampleFixtures()))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvColumns, rows[0])
	assert.Equal(t, "0", rows[1][0])
	assert.Equal(t, "1700000000", rows[1][1])
	assert.Equal(t, "0.75", rows[1][3])
	assert.Equal(t, "2", rows[1][5])

	// The JSON sibling carries the per-VM readings.
	data, err := os.ReadFile(filepath.Join(dir, "nested", "power_data.json"))
	require.NoError(t, err)

	var decoded []Sample
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "fedora40", decoded[0].VMs[0].VMName)
	assert.InDelta(t, 1700000000.0, decoded[0].TimestampAbsolute, 1e-6)
}

func TestWriteOutputsJSONPrimary(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "power_data.json")

	require.NoError(t, WriteOutputs(out, sampleFixtures()))

	assert.FileExists(t, filepath.Join(dir, "power_data.json"))
	assert.FileExists(t, filepath.Join(dir, "power_data.csv"))
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleFixtures())
	assert.Equal(t, 2, s.Samples)
	assert.InDelta(t, 0.1, s.Duration, 1e-9)
	assert.InDelta(t, 0.5, s.MinCoreWatts, 1e-9)
	assert.InDelta(t, 0.75, s.MaxCoreWatts, 1e-9)
	assert.InDelta(t, 0.625, s.AvgCoreWatts, 1e-9)
	assert.Equal(t, 1, s.MinVMCount)
	assert.Equal(t, 2, s.MaxVMCount)
	assert.Contains(t, s.String(), "POWER COLLECTION SUMMARY")
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Samples)
	assert.Equal(t, "no power data collected", s.String())
}
