// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package features

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "vm_features.json")

	samples := []FeatureSample{
		{
			Timestamp:          1700000000.5,
			TimestampISO:       "2023-11-14T14:13:20.500000",
			CPUCycles:          1000,
			Instructions:       2500,
			CPUUtilization:     42.5,
			ProcessCount:       7,
			SysProcsRunning:    2,
			CollectionInterval: 1.0,
			VMHostname:         "test-vm",
			TargetZones:        TargetZones,
		},
	}
	require.NoError(t, WriteOutputs(out, samples))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded []FeatureSample
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, samples[0], decoded[0])

	f, err := os.Open(filepath.Join(dir, "nested", "vm_features.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvColumns, rows[0])
	require.Len(t, rows[1], len(csvColumns))
	assert.Equal(t, "1700000000.5", rows[1][0])
	assert.Equal(t, "1000", rows[1][2])
	assert.Equal(t, "42.5", rows[1][10])
	assert.Equal(t, "test-vm", rows[1][42])
	// The zone list flattens to one CSV cell; the JSON keeps the list.
	assert.Equal(t, "package,core", rows[1][44])
}

func TestFeatureSampleJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(FeatureSample{})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, col := range csvColumns {
		assert.Contains(t, m, col)
	}
	assert.Len(t, m, len(csvColumns))
}
