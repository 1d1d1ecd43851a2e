// Command connect links a tenant to a marketplace from an operator's
// machine: it opens the consent window in Chrome and drives the connector
// backend over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/erp/connector/internal/domain/integration"
)

// Exit codes
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitCancelled = 3
	exitInterrupt = 130
)

func main() {
	code := runMain(newRootCmd(buildFacade).Execute, os.Stderr)
	if code != exitOK {
		os.Exit(code)
	}
}

func runMain(execute func() error, stderr io.Writer) int {
	if err := execute(); err != nil {
		return exitCodeForError(err, stderr)
	}
	return exitOK
}

type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCodeForError(err error, stderr io.Writer) int {
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.silent {
			fmt.Fprintln(stderr, ee)
		}
		return ee.code
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "canceled")
		return exitInterrupt
	}
	fmt.Fprintln(stderr, err)
	return exitFailure
}

// exitCodeForKind maps a connector failure to the process exit code
func exitCodeForKind(kind integration.ErrorKind) int {
	switch kind {
	case integration.KindUserCancelled:
		return exitCancelled
	case integration.KindInvalidRequest:
		return exitUsage
	default:
		return exitFailure
	}
}
