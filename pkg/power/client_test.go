// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package power

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keplerResponse = `# HELP kepler_vm_cpu_watts VM CPU power
# TYPE kepler_vm_cpu_watts gauge
kepler_vm_cpu_watts{hypervisor="kvm",vm_id="1",vm_name="fedora40",node_name="bm1",state="running",zone="core"} 0.5
kepler_vm_cpu_watts{hypervisor="kvm",vm_id="1",vm_name="fedora40",node_name="bm1",state="running",zone="package"} 0.8
kepler_vm_cpu_watts{hypervisor="kvm",vm_id="2",vm_name="centos9",node_name="bm1",state="running",zone="core"} 0.25
kepler_vm_cpu_watts{hypervisor="kvm",vm_id="2",vm_name="centos9",node_name="bm1",state="running",zone="package"} 0.4
kepler_vm_cpu_watts{vm_name="weird",zone="dram"} 9.9
kepler_node_cpu_watts{zone="core"} 12.5
go_goroutines 42
`

func testServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientScrape(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(keplerResponse))
	})

	c := NewClient(logr.Discard(), srv.URL, 3, time.Millisecond)
	readings, err := c.Scrape(context.Background())
	require.NoError(t, err)

	// Two VMs times two zones; the dram zone and foreign metrics are dropped.
	require.Len(t, readings, 4)
	assert.Equal(t, VMReading{
		VMID:       "1",
		VMName:     "fedora40",
		Hypervisor: "kvm",
		NodeName:   "bm1",
		Zone:       ZoneCore,
		Watts:      0.5,
		State:      "running",
	}, readings[0])
}

func TestClientScrapeLogsMalformedTargetLines(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`kepler_vm_cpu_watts{vm_name="fedora40",zone="core"} not-a-number
kepler_vm_cpu_watts{vm_name="fedora40",zone="package"} 0.8
some garbage line
`))
	})

	var logged []string
	logger := funcr.New(func(prefix, args string) {
		logged = append(logged, args)
	}, funcr.Options{Verbosity: 2})

	c := NewClient(logger, srv.URL, 3, time.Millisecond)
	readings, err := c.Scrape(context.Background())
	require.NoError(t, err)

	// The malformed target line is skipped but diagnosed; the garbage
	// line is someone else's problem.
	require.Len(t, readings, 1)
	assert.InDelta(t, 0.8, readings[0].Watts, 1e-9)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "malformed")
	assert.Contains(t, logged[0], "not-a-number")
}

func TestClientRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(keplerResponse))
	})

	c := NewClient(logr.Discard(), srv.URL, 3, time.Millisecond)
	readings, err := c.Scrape(context.Background())
	require.NoError(t, err)
	assert.Len(t, readings, 4)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientRetryExhaustion(t *testing.T) {
	var calls atomic.Int32
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c := NewClient(logr.Discard(), srv.URL, 3, time.Millisecond)
	_, err := c.Scrape(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientScrapeCancelledDuringBackoff(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(logr.Discard(), srv.URL, 3, time.Second)
	_, err := c.Scrape(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientProbe(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(keplerResponse))
	})

	c := NewClient(logr.Discard(), srv.URL, 3, time.Millisecond)
	n, err := c.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestClientProbeUnreachable(t *testing.T) {
	c := NewClient(logr.Discard(), "http://127.0.0.1:1/metrics", 2, time.Millisecond)
	_, err := c.Probe(context.Background())
	assert.Error(t, err)
}
