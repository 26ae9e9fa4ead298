// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package host provides utilities for host identification. The values it
// returns are recorded alongside collected samples so a dataset can be traced
// back to the machine that produced it.
package host

// Hostname returns the hostname reported by the kernel.
// In particular it returns the hostname of the host machine
// when inside a container.
func Hostname() (string, error) {
	return hostname()
}

// KernelVersion returns the running kernel's release string, e.g.
// "6.8.0-45-generic".
func KernelVersion() (string, error) {
	return kernelVersion()
}
