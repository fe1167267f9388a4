/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockWriter struct {
	bytes.Buffer
}

func (w *mockWriter) Sync() error {
	return nil
}

func TestLevel(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		require.Equal(t, "DEBUG", DEBUG.String())
		require.Equal(t, "INFO", INFO.String())
		require.Equal(t, "WARN", WARNING.String())
		require.Equal(t, "ERROR", ERROR.String())
		require.Equal(t, "PANIC", PANIC.String())
		require.Equal(t, "FATAL", FATAL.String())
	})

	t.Run("ParseLevel", func(t *testing.T) {
		for _, str := range []string{"debug", "DEBUG"} {
			level, err := ParseLevel(str)
			require.NoError(t, err)
			require.Equal(t, DEBUG, level)
		}

		for _, str := range []string{"warn", "WARNING"} {
			level, err := ParseLevel(str)
			require.NoError(t, err)
			require.Equal(t, WARNING, level)
		}

		_, err := ParseLevel("mumble")
		require.Error(t, err)
	})
}

func TestSetLevel(t *testing.T) {
	const module = "set_level_test"

	require.Equal(t, defaultLevel, GetLevel(module))

	SetLevel(module, DEBUG)
	require.Equal(t, DEBUG, GetLevel(module))
}

func TestSetSpec(t *testing.T) {
	t.Run("Modules and default", func(t *testing.T) {
		require.NoError(t, SetSpec("spec_test_mod1=debug:spec_test_mod2=error:warning"))

		require.Equal(t, DEBUG, GetLevel("spec_test_mod1"))
		require.Equal(t, ERROR, GetLevel("spec_test_mod2"))
		require.Equal(t, WARNING, GetLevel("spec_test_other"))

		spec := GetSpec()
		require.Contains(t, spec, "spec_test_mod1=DEBUG")
		require.Contains(t, spec, "spec_test_mod2=ERROR")

		SetDefaultLevel(INFO)
	})

	t.Run("Invalid level -> error", func(t *testing.T) {
		require.Error(t, SetSpec("spec_test_mod3=mumble"))
	})

	t.Run("Multiple defaults -> error", func(t *testing.T) {
		err := SetSpec("debug:error")
		require.Error(t, err)
		require.Contains(t, err.Error(), "multiple default values")
	})
}

func TestLogOutput(t *testing.T) {
	t.Run("Info goes to stdout", func(t *testing.T) {
		stdOut := &mockWriter{}
		stdErr := &mockWriter{}

		logger := New("log_output_test", WithStdOut(stdOut), WithStdErr(stdErr),
			WithFields(zap.String("service", "quill1")))

		logger.Info("Sample message", WithParameter("param1"))

		require.Contains(t, stdOut.String(), "Sample message")
		require.Contains(t, stdOut.String(), "quill1")
		require.Empty(t, stdErr.String())
	})

	t.Run("Error goes to stderr", func(t *testing.T) {
		stdOut := &mockWriter{}
		stdErr := &mockWriter{}

		logger := New("log_output_test", WithStdOut(stdOut), WithStdErr(stdErr))

		logger.Error("Sample error")

		require.Contains(t, stdErr.String(), "Sample error")
		require.Empty(t, stdOut.String())
	})

	t.Run("Debug suppressed at default level", func(t *testing.T) {
		stdOut := &mockWriter{}

		logger := New("log_output_default_test", WithStdOut(stdOut), WithStdErr(&mockWriter{}))

		require.False(t, logger.IsEnabled(DEBUG))

		logger.Debug("Suppressed message")

		require.Empty(t, stdOut.String())
	})

	t.Run("Debug emitted when enabled", func(t *testing.T) {
		const module = "log_output_debug_test"

		SetLevel(module, DEBUG)

		stdOut := &mockWriter{}

		logger := New(module, WithStdOut(stdOut), WithStdErr(&mockWriter{}))

		logger.Debug("Debug message")

		require.Contains(t, stdOut.String(), "Debug message")
	})
}
