// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 800*time.Second, cfg.Collection.Duration)
	assert.Equal(t, time.Second, cfg.Collection.Interval)
	assert.Equal(t, "http://localhost:28283/metrics", cfg.Collection.KeplerEndpoint)
	assert.Equal(t, 22, cfg.VM.Port)
	assert.Equal(t, "root", cfg.VM.User)
	assert.Equal(t, []string{"cycle", "cpu_intensive"}, cfg.Workloads.Names)
	assert.True(t, cfg.Merge.Enabled)
	assert.Equal(t, "core", cfg.Merge.PowerZone)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vm:
  name: fedora40
  host: 192.168.1.100
  user: vagrant
collection:
  duration: 300s
workloads:
  names: [cycle]
merge:
  power_zone: package
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "fedora40", cfg.VM.Name)
	assert.Equal(t, "vagrant", cfg.VM.User)
	assert.Equal(t, 300*time.Second, cfg.Collection.Duration)
	assert.Equal(t, []string{"cycle"}, cfg.Workloads.Names)
	assert.Equal(t, "package", cfg.Merge.PowerZone)

	// Untouched fields keep their defaults.
	assert.Equal(t, 22, cfg.VM.Port)
	assert.Equal(t, time.Second, cfg.Collection.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("vm: [not a map"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.VM.Name = "fedora40"
	valid.VM.Host = "192.168.1.100"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing vm name", func(c *Config) { c.VM.Name = "" }},
		{"missing vm host", func(c *Config) { c.VM.Host = "" }},
		{"zero duration", func(c *Config) { c.Collection.Duration = 0 }},
		{"zero interval", func(c *Config) { c.Collection.Interval = 0 }},
		{"no workloads", func(c *Config) { c.Workloads.Names = nil }},
		{"bad power zone", func(c *Config) { c.Merge.PowerZone = "dram" }},
		{"bad tolerance", func(c *Config) { c.Merge.TimeTolerance = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
