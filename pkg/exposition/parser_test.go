// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package exposition_test

import (
	"testing"

	"github.com/antimetal/powertrain/pkg/exposition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    exposition.Sample
		matched bool
	}{
		{
			name: "basic labeled sample",
			line: `name{a="1",b="2"} 3.14`,
			want: exposition.Sample{
				Name:   "name",
				Labels: map[string]string{"a": "1", "b": "2"},
				Value:  3.14,
			},
			matched: true,
		},
		{
			name: "kepler vm watts sample",
			line: `kepler_vm_cpu_watts{hypervisor="kvm",vm_name="fedora40",zone="core"} 0.5`,
			want: exposition.Sample{
				Name: "kepler_vm_cpu_watts",
				Labels: map[string]string{
					"hypervisor": "kvm",
					"vm_name":    "fedora40",
					"zone":       "core",
				},
				Value: 0.5,
			},
			matched: true,
		},
		{
			name: "scientific notation value",
			line: `kepler_vm_cpu_watts{zone="package"} 1.25e-03`,
			want: exposition.Sample{
				Name:   "kepler_vm_cpu_watts",
				Labels: map[string]string{"zone": "package"},
				Value:  0.00125,
			},
			matched: true,
		},
		{
			name: "value with trailing timestamp",
			line: `metric{a="x"} 2.5 1638360000`,
			want: exposition.Sample{
				Name:   "metric",
				Labels: map[string]string{"a": "x"},
				Value:  2.5,
			},
			matched: true,
		},
		{
			name: "label value containing comma",
			line: `metric{cmd="a,b",zone="core"} 1`,
			want: exposition.Sample{
				Name:   "metric",
				Labels: map[string]string{"cmd": "a,b", "zone": "core"},
				Value:  1,
			},
			matched: true,
		},
		{
			name:    "comment line",
			line:    `# HELP kepler_vm_cpu_watts watts`,
			matched: false,
		},
		{
			name:    "empty line",
			line:    "",
			matched: false,
		},
		{
			name:    "no labels",
			line:    `go_goroutines 42`,
			matched: false,
		},
		{
			name:    "missing value",
			line:    `metric{a="1"}`,
			matched: false,
		},
		{
			name:    "non numeric value",
			line:    `metric{a="1"} banana`,
			matched: false,
		},
		{
			name:    "unbalanced braces",
			line:    `metric{a="1" 3.14`,
			matched: false,
		},
		{
			name:    "brace before name",
			line:    `{a="1"} 3.14`,
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := exposition.ParseLine(tt.line)
			require.Equal(t, tt.matched, ok)
			if !tt.matched {
				return
			}
			assert.Equal(t, tt.want.Name, got.Name)
			assert.Equal(t, tt.want.Labels, got.Labels)
			assert.InDelta(t, tt.want.Value, got.Value, 1e-9)
		})
	}
}

func TestParseLineSkipsMalformedLabelPairs(t *testing.T) {
	got, ok := exposition.ParseLine(`metric{a="1",garbage,b="2"} 7`)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got.Labels)
}
