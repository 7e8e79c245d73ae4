// Command a2a runs a turn-based dialogue between two language models, an
// Analyst and a Reviewer, headless or in a terminal UI.
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

// stopper is the part of the engine the interrupt handler needs.
type stopper interface {
	Stop()
}

// main is the entry point for the a2a command.
func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(osArgs []string, stdin io.Reader, stdout, stderr io.Writer) int {
	args := parseArgs(osArgs)
	if errors.Is(args.Err, errHelp) {
		printUsage(stdout)
		return 0
	}
	if args.Err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", args.Err)
		printUsage(stderr)
		return 1
	}

	e, err := newEnv(args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer e.close()

	if err := e.dispatch(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (e *env) dispatch(ctx context.Context) error {
	switch e.args.Command {
	case "run":
		return e.cmdRun(ctx)
	case "resume":
		return e.cmdResume(ctx)
	case "tui":
		return e.cmdTUI(ctx)
	case "models":
		return e.cmdModels(ctx)
	case "status":
		return e.cmdStatus(ctx)
	case "keys":
		return e.cmdKeys(ctx)
	case "sessions":
		return e.cmdSessions(ctx)
	case "audio-test":
		return e.cmdAudioTest(ctx)
	default:
		return fmt.Errorf("unknown command %q", e.args.Command)
	}
}

// watchInterrupts stops the dialogue after the current turn on the first
// interrupt and cancels the request in flight on the second. The returned
// function stops watching.
func watchInterrupts(engine stopper, cancel context.CancelFunc, w io.Writer) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		count := 0
		for {
			select {
			case <-done:
				return
			case <-sigs:
				count++
				if count == 1 {
					fmt.Fprintln(w, "\n⏹ Stopping after the current turn (interrupt again to abort)...")
					engine.Stop()
					continue
				}
				fmt.Fprintln(w, "\nAborting the request in flight...")
				cancel()
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
