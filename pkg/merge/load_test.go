// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package merge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFeatures(t *testing.T) {
	path := writeTempFile(t, "features.json", `[
		{"timestamp": 2.0, "cpu_utilization": 80.0},
		{"timestamp": 0.0, "cpu_utilization": 10.0},
		{"timestamp": 1.0, "cpu_utilization": 50.0}
	]`)

	records, err := LoadFeatures(path)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Records come back sorted by timestamp regardless of file order.
	assert.InDelta(t, 0.0, records[0].Timestamp(), 1e-9)
	assert.InDelta(t, 1.0, records[1].Timestamp(), 1e-9)
	assert.InDelta(t, 2.0, records[2].Timestamp(), 1e-9)
	assert.InDelta(t, 10.0, records[0]["cpu_utilization"].(float64), 1e-9)
}

func TestLoadFeaturesErrors(t *testing.T) {
	_, err := LoadFeatures(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	empty := writeTempFile(t, "empty.json", `[]`)
	_, err = LoadFeatures(empty)
	assert.Error(t, err)

	bad := writeTempFile(t, "bad.json", `{not json`)
	_, err = LoadFeatures(bad)
	assert.Error(t, err)
}

func TestLoadPower(t *testing.T) {
	path := writeTempFile(t, "power.csv",
		"timestamp,timestamp_absolute,timestamp_iso,total_cpu_watts_core,total_cpu_watts_package,vm_count,collection_interval,vm_filter\n"+
			"0.2,1700000000.2,2023-11-14T22:13:20.200000,0.5,0.9,2,0.1,all\n"+
			"0,1700000000,2023-11-14T22:13:20.000000,0.4,0.8,2,0.1,all\n"+
			"0.1,1700000000.1,2023-11-14T22:13:20.100000,0.45,0.85,2,0.1,all\n")

	records, err := LoadPower(path)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.InDelta(t, 1700000000.0, records[0].MatchTime(), 1e-6)
	assert.InDelta(t, 1700000000.2, records[2].MatchTime(), 1e-6)
	assert.InDelta(t, 0.4, records[0].CoreWatts, 1e-9)
	assert.InDelta(t, 0.8, records[0].PackageWatts, 1e-9)
	assert.Equal(t, 2, records[0].VMCount)
	assert.Equal(t, "all", records[0].VMFilter)
}

func TestLoadPowerWithoutAbsoluteTimestamps(t *testing.T) {
	// Older label files only carry the relative timestamp.
	path := writeTempFile(t, "power.csv",
		"timestamp,total_cpu_watts_core\n1.0,0.5\n0.5,0.4\n")

	records, err := LoadPower(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.InDelta(t, 0.5, records[0].MatchTime(), 1e-9)
	assert.InDelta(t, 1.0, records[1].MatchTime(), 1e-9)
	assert.Zero(t, records[0].PackageWatts)
}

func TestLoadPowerErrors(t *testing.T) {
	_, err := LoadPower(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	headerOnly := writeTempFile(t, "header.csv", "timestamp,total_cpu_watts_core\n")
	_, err = LoadPower(headerOnly)
	assert.Error(t, err)

	noTimestamp := writeTempFile(t, "nots.csv", "watts\n0.5\n")
	_, err = LoadPower(noTimestamp)
	assert.Error(t, err)
}
