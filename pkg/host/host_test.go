// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package host_test

import (
	"runtime"
	"testing"

	"github.com/antimetal/powertrain/pkg/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostname(t *testing.T) {
	name, err := host.Hostname()
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}

func TestKernelVersion(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("kernel version is Linux-only")
	}

	release, err := host.KernelVersion()
	require.NoError(t, err)
	assert.NotEmpty(t, release)
}
