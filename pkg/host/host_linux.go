// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

package host

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

func hostname() (string, error) {
	// /proc/sys/kernel/hostname reports the host's name even when the
	// process runs in a container with a private UTS namespace disabled.
	data, err := os.ReadFile("/proc/sys/kernel/hostname")
	if err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			return name, nil
		}
	}
	return os.Hostname()
}

func kernelVersion() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uname.Release[:]), nil
}
