package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Exit statuses.
const (
	exitMatch        = 0
	exitError        = 1
	exitPatternError = 2
	exitNoMatch      = 3
)

// errNoMatch ends a successful run that found nothing.
var errNoMatch = &exitCodeError{code: exitNoMatch}

// exitCodeError carries a specific exit status. A nil err prints nothing.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode reports err on w and maps it to an exit status.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return exitMatch
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		if ec.err != nil {
			fmt.Fprintf(w, "bgrep: %v\n", ec.err)
		}
		return ec.code
	}
	fmt.Fprintf(w, "bgrep: %v\n", err)
	return exitError
}
