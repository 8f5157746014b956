// File: cmd/barrier-cli/main.go
/*
Copyright © 2025 Kyle McAllister (xkilldash9x@proton.me)
*/

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/barrier-cli/cmd"
	"github.com/xkilldash9x/barrier-cli/internal/observability"
)

const panicLogFile = "panic.log"

const banner = `
  ____                  _
 | __ )  __ _ _ __ _ __(_) ___ _ __
 |  _ \ / _' | '__| '__| |/ _ \ '__|
 | |_) | (_| | |  | |  | |  __/ |
 |____/ \__,_|_|  |_|  |_|\___|_|    accessibility scanner

 Type a command (e.g. "scan list"), "help", or "exit".

`

// Function variables swapped in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	execute     = cmd.Execute
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0)
				return
			}
			osExit(1)
		}
		return
	}

	if err := runInteractive(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// runInteractive reads commands line by line until EOF or "exit".
func runInteractive(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprint(out, banner)
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "barrier-cli > ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeInteractiveCommand(ctx, line, out)

		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Exiting barrier-cli.")
	return nil
}

// executeInteractiveCommand runs one line on a fresh command tree. Errors and
// panics are reported without ending the session.
func executeInteractiveCommand(ctx context.Context, line string, out io.Writer) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))
	rootCmd.SetOut(out)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Error: command panicked: %v\n", r)
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
}

// handlePanic writes the panic and its stack to panic.log and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(2)
		return
	}
	fmt.Fprintf(os.Stderr, "\nbarrier-cli crashed. Details logged to %s\n", panicLogFile)
	osExit(2)
}
