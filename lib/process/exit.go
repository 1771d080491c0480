// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors where the structured logger may not be initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// Interrupted is the cause attached to a signal context when SIGINT or
// SIGTERM arrives.
type Interrupted struct {
	Signal os.Signal
}

func (i *Interrupted) Error() string {
	return "interrupted by " + i.Signal.String()
}

// ExitCode follows the shell convention of 128 plus the signal number.
func (i *Interrupted) ExitCode() int {
	if number, ok := i.Signal.(syscall.Signal); ok {
		return 128 + int(number)
	}
	return 1
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// context's cause is an *Interrupted naming the signal. Call stop to
// release the signal handler.
func SignalContext(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancelCause(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case received := <-signals:
			cancel(&Interrupted{Signal: received})
		case <-done:
		}
	}()
	return ctx, func() {
		signal.Stop(signals)
		close(done)
		cancel(context.Canceled)
	}
}

// ExitCode maps a run's final error to a process exit status: 0 for
// nil, 128+signal when the error or the context cause is an
// *Interrupted, and 1 otherwise.
func ExitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}
	var interrupted *Interrupted
	if errors.As(err, &interrupted) {
		return interrupted.ExitCode()
	}
	if ctx != nil && errors.As(context.Cause(ctx), &interrupted) {
		return interrupted.ExitCode()
	}
	return 1
}
