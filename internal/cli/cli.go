// Package cli provides the stockmate command-line interface.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/models"
)

// Exit codes returned by the stockmate binary.
const (
	ExitOK          = 0
	ExitInvalid     = 1
	ExitDataFailure = 2
)

// Run executes the command line and exits with the code matching the failure.
func Run() {
	ctx, cancel := signalContext()
	code := Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// Execute runs one command line and returns its exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, args, stdout, stderr, nil)
}

// execute seeds a missing config.json with initial when it is non-nil.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer, initial *config.Config) int {
	cmd, opts := newRootCmd(stdout)
	opts.initial = initial
	defer opts.close()

	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	var shown *reportedError
	if err != nil && !errors.As(err, &shown) {
		printError(stderr, err)
	}
	return ExitCode(err)
}

// ExitCode maps a command error to the process exit status.
// Fetch failures and risk failures caused by missing bars both exit with 2.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, models.ErrDataUnavailable),
		errors.Is(err, models.ErrRiskComputation),
		errors.Is(err, models.ErrBacktestInsufficientData):
		return ExitDataFailure
	}
	return ExitInvalid
}

// reportedError marks an error that has already been written to stdout, e.g. as JSON.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }
