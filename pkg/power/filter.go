// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package power

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Filter selects which VMs contribute to aggregated power totals. Name and
// pattern criteria are inclusive: a VM passes if it satisfies either one.
// A filter with no criteria passes every VM.
type Filter struct {
	names   map[string]struct{}
	pattern *regexp.Regexp
}

// NewFilter builds a Filter from a list of exact names and an optional
// regular expression. Both match against vm_name and vm_id.
func NewFilter(names []string, pattern string) (*Filter, error) {
	f := &Filter{}

	if len(names) > 0 {
		f.names = make(map[string]struct{}, len(names))
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name != "" {
				f.names[name] = struct{}{}
			}
		}
		if len(f.names) == 0 {
			f.names = nil
		}
	}

	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid vm pattern %q: %w", pattern, err)
		}
		f.pattern = re
	}

	return f, nil
}

// Match reports whether the reading's VM passes the filter.
func (f *Filter) Match(vm VMReading) bool {
	if f.names == nil && f.pattern == nil {
		return true
	}

	if f.names != nil {
		if _, ok := f.names[vm.VMName]; ok {
			return true
		}
		if _, ok := f.names[vm.VMID]; ok {
			return true
		}
	}

	if f.pattern != nil {
		if vm.VMName != "" && f.pattern.MatchString(vm.VMName) {
			return true
		}
		if vm.VMID != "" && f.pattern.MatchString(vm.VMID) {
			return true
		}
	}

	return false
}

// Apply returns the readings that pass the filter, preserving order.
func (f *Filter) Apply(vms []VMReading) []VMReading {
	filtered := make([]VMReading, 0, len(vms))
	for _, vm := range vms {
		if f.Match(vm) {
			filtered = append(filtered, vm)
		}
	}
	return filtered
}

// Describe returns a human-readable description of the criteria, recorded
// in sample metadata.
func (f *Filter) Describe() string {
	var parts []string
	if f.names != nil {
		names := make([]string, 0, len(f.names))
		for name := range f.names {
			names = append(names, name)
		}
		sort.Strings(names)
		parts = append(parts, "names="+strings.Join(names, ","))
	}
	if f.pattern != nil {
		parts = append(parts, "pattern="+f.pattern.String())
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, " ")
}
