// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/powertrain/pkg/remote"
)

const keplerFixture = `# HELP kepler_vm_cpu_watts VM CPU power
kepler_vm_cpu_watts{vm_id="1",vm_name="fedora40",zone="core"} 0.5
kepler_vm_cpu_watts{vm_id="1",vm_name="fedora40",zone="package"} 0.8
`

// fakeRunner records commands and serves scripted results. Background
// commands get sequential PIDs; kill -0 polls report the process gone.
type fakeRunner struct {
	commands   []string
	background []string
	transfers  [][2]string

	executeErr    error
	backgroundErr error
	transferFunc  func(remotePath, localPath string) error
	missingBinary string
}

func (f *fakeRunner) Execute(ctx context.Context, command string) (remote.Result, error) {
	f.commands = append(f.commands, command)
	if f.executeErr != nil {
		return remote.Result{}, f.executeErr
	}
	if strings.Contains(command, "kill -0") {
		return remote.Result{ExitCode: 1}, nil
	}
	if f.missingBinary != "" && strings.Contains(command, "test -x "+f.missingBinary) {
		return remote.Result{ExitCode: 1}, nil
	}
	return remote.Result{}, nil
}

func (f *fakeRunner) ExecuteBackground(ctx context.Context, command string) (string, error) {
	if f.backgroundErr != nil {
		return "", f.backgroundErr
	}
	f.background = append(f.background, command)
	return fmt.Sprintf("%d", 1000+len(f.background)), nil
}

func (f *fakeRunner) TransferFile(remotePath, localPath string) error {
	f.transfers = append(f.transfers, [2]string{remotePath, localPath})
	if f.transferFunc != nil {
		return f.transferFunc(remotePath, localPath)
	}
	return nil
}

func (f *fakeRunner) Close() error { return nil }

func keplerServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, keplerFixture)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, endpoint string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.VM.Name = "fedora40"
	cfg.VM.Host = "192.168.1.100"
	cfg.Collection.Duration = 50 * time.Millisecond
	cfg.Collection.Interval = 10 * time.Millisecond
	cfg.Collection.StartLead = 0
	cfg.Collection.KeplerEndpoint = endpoint
	cfg.Collection.OutputDir = t.TempDir()
	cfg.Workloads.Margin = 100 * time.Millisecond
	cfg.Merge.Enabled = false
	return cfg
}

// writeFeatureData is a transferFunc that fabricates feature samples on
// the current wall clock so they align with the power samples the run
// just collected.
func writeFeatureData(remotePath, localPath string) error {
	now := float64(time.Now().UnixNano()) / 1e9
	samples := []map[string]any{
		{"timestamp": now - 0.02, "cpu_utilization": 40.0, "vm_hostname": "fedora40"},
		{"timestamp": now, "cpu_utilization": 60.0, "vm_hostname": "fedora40"},
	}
	data, err := json.Marshal(samples)
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0644)
}

func TestRunHappyPath(t *testing.T) {
	srv := keplerServer(t)
	cfg := testConfig(t, srv.URL)
	runner := &fakeRunner{transferFunc: writeFeatureData}

	o, err := New(logr.Discard(), cfg, runner)
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Positive(t, result.PowerSamples)
	assert.Empty(t, result.MergedFile)

	// Power output lands locally; feature data came over the transfer.
	_, err = os.Stat(result.BMPowerFile)
	assert.NoError(t, err)
	require.Len(t, runner.transfers, 1)
	assert.True(t, strings.HasPrefix(runner.transfers[0][0], cfg.VM.ProjectPath+"/data/vm_features_"))
	assert.Equal(t, result.VMFeaturesFile, runner.transfers[0][1])

	// Layout verification, data dir creation, and cleanup all ran.
	joined := strings.Join(runner.commands, "\n")
	assert.Contains(t, joined, "test -x bin/vm-feature-collector")
	assert.Contains(t, joined, "test -x bin/stress-workloads")
	assert.Contains(t, joined, "mkdir -p data")
	assert.Contains(t, joined, "pkill -f vm-feature-collector")
	assert.Contains(t, joined, "pkill -f stress-ng")

	// Stress workloads get the duration margin; the collector does not.
	require.Len(t, runner.background, 2)
	assert.Contains(t, runner.background[0], "-total-duration 150ms")
	assert.Contains(t, runner.background[1], "-duration 50ms")
}

func TestRunWithMerge(t *testing.T) {
	srv := keplerServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Merge.Enabled = true
	cfg.Merge.TimeTolerance = 10 // generous, the fake feature data is wall-clock based
	runner := &fakeRunner{transferFunc: writeFeatureData}

	o, err := New(logr.Discard(), cfg, runner)
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, result.MergedFile)
	assert.Contains(t, filepath.Base(result.MergedFile), "training_data_")
	_, err = os.Stat(result.MergedFile)
	assert.NoError(t, err)

	require.NotNil(t, result.MergeStats)
	assert.Equal(t, 2, result.MergeStats.MatchedPoints)
}

func TestRunMissingRemoteBinary(t *testing.T) {
	srv := keplerServer(t)
	cfg := testConfig(t, srv.URL)
	runner := &fakeRunner{missingBinary: "bin/stress-workloads"}

	o, err := New(logr.Discard(), cfg, runner)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.ErrorContains(t, err, "bin/stress-workloads")

	// Nothing was started.
	assert.Empty(t, runner.background)
}

func TestRunCleansUpOnPowerFailure(t *testing.T) {
	// Endpoint that always fails: the probe errors and the remote
	// processes must be killed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	runner := &fakeRunner{}

	o, err := New(logr.Discard(), cfg, runner)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.Error(t, err)

	joined := strings.Join(runner.commands, "\n")
	assert.Contains(t, joined, "pkill -f vm-feature-collector")
	assert.Contains(t, joined, "pkill -f stress-workloads")
}

func TestRunBackgroundStartFailure(t *testing.T) {
	srv := keplerServer(t)
	cfg := testConfig(t, srv.URL)
	runner := &fakeRunner{backgroundErr: fmt.Errorf("session refused")}

	o, err := New(logr.Discard(), cfg, runner)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.ErrorContains(t, err, "stress workloads")
}

func TestNewValidation(t *testing.T) {
	_, err := New(logr.Discard(), Config{}, &fakeRunner{})
	assert.Error(t, err)

	cfg := testConfig(t, "http://localhost:1")
	_, err = New(logr.Discard(), cfg, nil)
	assert.Error(t, err)
}
