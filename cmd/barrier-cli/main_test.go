// File: cmd/barrier-cli/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("writes the panic log", func(t *testing.T) {
		var (
			written  string
			path     string
			exitCode = -1
		)
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			path, written = name, string(data)
			return nil
		}
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("browser went away")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.True(t, strings.HasPrefix(written, "panic: browser went away"))
		assert.Contains(t, written, "goroutine")
		assert.Equal(t, 2, exitCode)
	})

	t.Run("log write failure still exits", func(t *testing.T) {
		exitCode := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only file system") }
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, 2, exitCode)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }

		func() {
			defer handlePanic()
		}()

		assert.False(t, called)
	})
}

func TestRunInteractive(t *testing.T) {
	in := strings.NewReader("\n--version\nexit\nscan list\n")
	var out bytes.Buffer

	require.NoError(t, runInteractive(context.Background(), in, &out))

	output := out.String()
	assert.Contains(t, output, "barrier-cli version")
	assert.Contains(t, output, "Exiting barrier-cli.")
	// Lines after exit are never executed.
	assert.Equal(t, 1, strings.Count(output, "barrier-cli version"))
}

func TestRunInteractive_EOF(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runInteractive(context.Background(), strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "Exiting barrier-cli.")
}
