// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package remote runs commands and transfers files on a remote host.
// Orchestration code depends on the Runner interface only; the SSH
// implementation lives behind it so workflows can be tested with fakes.
package remote

import "context"

// Result holds the outcome of a completed remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes commands on a remote host.
//
// Execute blocks until the command completes. A non-zero exit code is
// reported through Result, not through the error: the error is reserved
// for transport failures.
//
// ExecuteBackground starts a detached long-running command and returns
// its remote PID. The command survives the session; stopping it is the
// caller's responsibility.
type Runner interface {
	Execute(ctx context.Context, command string) (Result, error)
	ExecuteBackground(ctx context.Context, command string) (pid string, err error)
	TransferFile(remotePath, localPath string) error
	Close() error
}
