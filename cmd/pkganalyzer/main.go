package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pkganalyzer/internal/cli"
)

func main() {
	ctx, stop := notifyShutdown(context.Background(), func() {
		fmt.Fprintln(os.Stderr, "second signal, exiting without drain")
		os.Exit(130)
	})
	err := run(ctx)
	cause := context.Cause(ctx)
	stop()

	code := exitCode(err, cause)
	if code == 1 {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}

func run(ctx context.Context) error {
	var verbose bool

	c := cli.New(os.Stderr, cli.LogInfo)
	root := c.RootCommand()
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	preRun := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if verbose {
			c.SetLogLevel(cli.LogDebug)
		}
		if preRun != nil {
			return preRun(cmd, args)
		}
		return nil
	}

	return root.ExecuteContext(ctx)
}

// signalError is the cancellation cause recorded for a shutdown signal.
type signalError struct{ sig os.Signal }

func (e signalError) Error() string { return "received " + e.sig.String() }

// notifyShutdown cancels the returned context on the first SIGINT or SIGTERM.
// The consumer then stops taking jobs and drains the ones in flight. A second
// signal calls force; jobs still running stay in the processing list until
// `consume --recover`.
func notifyShutdown(parent context.Context, force func()) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			cancel(signalError{sig: sig})
		case <-done:
			return
		}
		select {
		case <-sigs:
			force()
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		close(done)
		cancel(nil)
	}
}

// exitCode maps the command outcome to a process status. A drain after
// SIGTERM is how a supervisor stops a worker, so it exits 0; an interrupt
// keeps the shell's 130.
func exitCode(err, cause error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		var se signalError
		if errors.As(cause, &se) && se.sig == syscall.SIGTERM {
			return 0
		}
		return 130
	default:
		return 1
	}
}
