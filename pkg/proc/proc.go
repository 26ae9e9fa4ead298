// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package proc provides utilities for reading system information from the /proc filesystem.
//
// This package offers access to common system parameters that are typically read
// once and reused throughout the program lifecycle. All functions support optional
// /proc paths for testing or containerized environments.
//
// Example usage:
//
//	// Get USER_HZ for converting kernel ticks to time
//	userHZ, err := proc.UserHZ()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Use custom /proc path (useful in containers)
//	userHZ, err := proc.UserHZ("/host/proc")
package proc

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultUserHZ is the conventional USER_HZ value on Linux. It is used as a
// documented fallback when the kernel constant cannot be read from auxv.
const DefaultUserHZ = 100

// AT_CLKTCK is the ELF auxiliary vector key for the clock tick frequency.
const atClkTck = 17

func resolveProcPath(procPaths []string) (string, error) {
	switch len(procPaths) {
	case 0:
		return "/proc", nil
	case 1:
		return procPaths[0], nil
	default:
		return "", fmt.Errorf("expected at most one proc path, got %d", len(procPaths))
	}
}

// UserHZ returns the kernel's USER_HZ (clock ticks per second), the unit in
// which /proc/stat reports cumulative CPU times. It is read from the
// AT_CLKTCK entry of /proc/self/auxv.
func UserHZ(procPaths ...string) (int64, error) {
	procPath, err := resolveProcPath(procPaths)
	if err != nil {
		return 0, err
	}

	auxvPath := filepath.Join(procPath, "self", "auxv")
	data, err := os.ReadFile(auxvPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", auxvPath, err)
	}

	// auxv is a sequence of native-endian (key, value) machine words,
	// terminated by an AT_NULL (0) key.
	wordSize := 8
	for i := 0; i+2*wordSize <= len(data); i += 2 * wordSize {
		key := binary.NativeEndian.Uint64(data[i : i+wordSize])
		if key == 0 {
			break
		}
		if key == atClkTck {
			value := binary.NativeEndian.Uint64(data[i+wordSize : i+2*wordSize])
			if value == 0 {
				return 0, fmt.Errorf("AT_CLKTCK entry in %s is zero", auxvPath)
			}
			return int64(value), nil
		}
	}

	return 0, fmt.Errorf("no AT_CLKTCK entry in %s", auxvPath)
}

// UserHZOrDefault returns USER_HZ, falling back to DefaultUserHZ when the
// value cannot be determined. The fallback is a deliberate degradation, not
// an error: a wrong-but-plausible tick rate still yields usable relative
// CPU-time features.
func UserHZOrDefault(procPaths ...string) int64 {
	hz, err := UserHZ(procPaths...)
	if err != nil {
		return DefaultUserHZ
	}
	return hz
}
