// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package shutdown provides a two-stage signal handler for the collector
// binaries. The first SIGINT/SIGTERM cancels the returned context so the
// current collection cycle can finish and buffered samples get written;
// a second signal exits immediately.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
)

var onlyOneSignalHandler = make(chan struct{})

// SetupSignalHandler registers for SIGINT and SIGTERM and returns a
// context cancelled on the first signal. A second signal calls
// os.Exit(1). Only one call per process is allowed.
func SetupSignalHandler(logger logr.Logger) context.Context {
	close(onlyOneSignalHandler) // panics on second call

	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		logger.Info("received signal, stopping after current cycle", "signal", sig.String())
		cancel()
		sig = <-c
		logger.Info("received second signal, exiting now", "signal", sig.String())
		os.Exit(1)
	}()

	return ctx
}
