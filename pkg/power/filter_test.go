// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package power

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterPattern(t *testing.T) {
	f, err := NewFilter(nil, "fedora.*")
	require.NoError(t, err)

	assert.True(t, f.Match(VMReading{VMName: "fedora40"}))
	assert.True(t, f.Match(VMReading{VMName: "fedora-test"}))
	assert.False(t, f.Match(VMReading{VMName: "centos9"}))
}

func TestFilterNames(t *testing.T) {
	f, err := NewFilter([]string{"fedora40", "vm-123"}, "")
	require.NoError(t, err)

	assert.True(t, f.Match(VMReading{VMName: "fedora40"}))
	assert.True(t, f.Match(VMReading{VMID: "vm-123", VMName: "something-else"}))
	assert.False(t, f.Match(VMReading{VMName: "centos9"}))
}

func TestFilterCriteriaAreInclusive(t *testing.T) {
	f, err := NewFilter([]string{"centos9"}, "fedora.*")
	require.NoError(t, err)

	// Matching either criterion is enough.
	assert.True(t, f.Match(VMReading{VMName: "centos9"}))
	assert.True(t, f.Match(VMReading{VMName: "fedora40"}))
	assert.False(t, f.Match(VMReading{VMName: "debian12"}))
}

func TestFilterNoCriteriaMatchesAll(t *testing.T) {
	f, err := NewFilter(nil, "")
	require.NoError(t, err)

	assert.True(t, f.Match(VMReading{VMName: "anything"}))
	assert.True(t, f.Match(VMReading{}))
	assert.Equal(t, "all", f.Describe())
}

func TestFilterWhitespaceOnlyNames(t *testing.T) {
	f, err := NewFilter([]string{"  ", ""}, "")
	require.NoError(t, err)

	// Blank entries do not constitute a name criterion.
	assert.True(t, f.Match(VMReading{VMName: "anything"}))
}

func TestFilterInvalidPattern(t *testing.T) {
	_, err := NewFilter(nil, "fedora[")
	assert.Error(t, err)
}

func TestFilterApply(t *testing.T) {
	f, err := NewFilter(nil, "fedora.*")
	require.NoError(t, err)

	vms := []VMReading{
		{VMName: "fedora40", Watts: 1.0},
		{VMName: "centos9", Watts: 2.0},
		{VMName: "fedora-test", Watts: 3.0},
	}
	filtered := f.Apply(vms)
	require.Len(t, filtered, 2)
	assert.Equal(t, "fedora40", filtered[0].VMName)
	assert.Equal(t, "fedora-test", filtered[1].VMName)
}

func TestFilterDescribe(t *testing.T) {
	f, err := NewFilter([]string{"b", "a"}, "fedora.*")
	require.NoError(t, err)
	assert.Equal(t, "names=a,b pattern=fedora.*", f.Describe())
}
