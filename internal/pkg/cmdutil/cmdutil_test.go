/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cmdutil_test

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/quillpub/quill/internal/pkg/cmdutil"
)

const (
	hostURLFlag = "host-url"
	hostURLEnv  = "QUILL_HOST_URL"

	usersFlag = "users"
	usersEnv  = "QUILL_USERS"

	pageSizeFlag = "page-size"
	pageSizeEnv  = "QUILL_PAGE_SIZE"

	refreshIntervalFlag = "nodeinfo-refresh-interval"
	refreshIntervalEnv  = "QUILL_NODEINFO_REFRESH_INTERVAL"
)

func TestGetUserSetVarFromString(t *testing.T) {
	t.Run("Flag set", func(t *testing.T) {
		cmd := newCmd(t, "--"+hostURLFlag, "localhost:8080")

		value, err := cmdutil.GetUserSetVarFromString(cmd, hostURLFlag, hostURLEnv, false)
		require.NoError(t, err)
		require.Equal(t, "localhost:8080", value)
	})

	t.Run("Flag overrides environment variable", func(t *testing.T) {
		t.Setenv(hostURLEnv, "localhost:9090")

		cmd := newCmd(t, "--"+hostURLFlag, "localhost:8080")

		value, err := cmdutil.GetUserSetVarFromString(cmd, hostURLFlag, hostURLEnv, false)
		require.NoError(t, err)
		require.Equal(t, "localhost:8080", value)
	})

	t.Run("Environment variable set", func(t *testing.T) {
		t.Setenv(hostURLEnv, "localhost:9090")

		value, err := cmdutil.GetUserSetVarFromString(newCmd(t), hostURLFlag, hostURLEnv, false)
		require.NoError(t, err)
		require.Equal(t, "localhost:9090", value)
	})

	t.Run("Neither set -> error", func(t *testing.T) {
		value, err := cmdutil.GetUserSetVarFromString(newCmd(t), hostURLFlag, hostURLEnv, false)
		require.Error(t, err)
		require.Contains(t, err.Error(), hostURLEnv+" (environment variable) have been set.")
		require.Empty(t, value)
	})

	t.Run("Empty environment variable -> error", func(t *testing.T) {
		t.Setenv(hostURLEnv, "")

		value, err := cmdutil.GetUserSetVarFromString(newCmd(t), hostURLFlag, hostURLEnv, false)
		require.Error(t, err)
		require.Contains(t, err.Error(), hostURLEnv+" value is empty")
		require.Empty(t, value)
	})

	t.Run("Empty flag value -> error", func(t *testing.T) {
		cmd := newCmd(t, "--"+hostURLFlag, "")

		value, err := cmdutil.GetUserSetVarFromString(cmd, hostURLFlag, hostURLEnv, false)
		require.Error(t, err)
		require.Contains(t, err.Error(), hostURLFlag+" value is empty")
		require.Empty(t, value)
	})

	t.Run("Optional neither set", func(t *testing.T) {
		value := cmdutil.GetUserSetOptionalVarFromString(newCmd(t), hostURLFlag, hostURLEnv)
		require.Empty(t, value)
	})
}

func TestGetUserSetVarFromArrayString(t *testing.T) {
	t.Run("Flag set multiple times", func(t *testing.T) {
		cmd := newCmd(t, "--"+usersFlag, "alyssa=token1", "--"+usersFlag, "ben=token2")

		values, err := cmdutil.GetUserSetVarFromArrayString(cmd, usersFlag, usersEnv, false)
		require.NoError(t, err)
		require.Equal(t, []string{"alyssa=token1", "ben=token2"}, values)
	})

	t.Run("Environment variable is comma-separated", func(t *testing.T) {
		t.Setenv(usersEnv, "alyssa=token1,ben=token2")

		values, err := cmdutil.GetUserSetVarFromArrayString(newCmd(t), usersFlag, usersEnv, false)
		require.NoError(t, err)
		require.Equal(t, []string{"alyssa=token1", "ben=token2"}, values)
	})

	t.Run("Neither set -> error", func(t *testing.T) {
		values, err := cmdutil.GetUserSetVarFromArrayString(newCmd(t), usersFlag, usersEnv, false)
		require.Error(t, err)
		require.Contains(t, err.Error(), usersEnv+" (environment variable) have been set.")
		require.Empty(t, values)
	})

	t.Run("Empty environment variable -> error", func(t *testing.T) {
		t.Setenv(usersEnv, "")

		values, err := cmdutil.GetUserSetVarFromArrayString(newCmd(t), usersFlag, usersEnv, false)
		require.Error(t, err)
		require.Contains(t, err.Error(), usersEnv+" value is empty")
		require.Empty(t, values)
	})

	t.Run("Optional neither set", func(t *testing.T) {
		values := cmdutil.GetUserSetOptionalVarFromArrayString(newCmd(t), usersFlag, usersEnv)
		require.Empty(t, values)
	})

	t.Run("Optional empty environment variable", func(t *testing.T) {
		t.Setenv(usersEnv, "")

		values := cmdutil.GetUserSetOptionalVarFromArrayString(newCmd(t), usersFlag, usersEnv)
		require.Empty(t, values)
	})
}

func TestGetInt(t *testing.T) {
	t.Run("Flag set", func(t *testing.T) {
		cmd := newCmd(t, "--"+pageSizeFlag, "25")

		value, err := cmdutil.GetInt(cmd, pageSizeFlag, pageSizeEnv, 10)
		require.NoError(t, err)
		require.Equal(t, 25, value)
	})

	t.Run("Negative value", func(t *testing.T) {
		cmd := newCmd(t, "--"+pageSizeFlag, "-1")

		value, err := cmdutil.GetInt(cmd, pageSizeFlag, pageSizeEnv, 10)
		require.NoError(t, err)
		require.Equal(t, -1, value)
	})

	t.Run("Not set -> default", func(t *testing.T) {
		value, err := cmdutil.GetInt(newCmd(t), pageSizeFlag, pageSizeEnv, 10)
		require.NoError(t, err)
		require.Equal(t, 10, value)
	})

	t.Run("Invalid value -> error", func(t *testing.T) {
		cmd := newCmd(t, "--"+pageSizeFlag, "twenty")

		_, err := cmdutil.GetInt(cmd, pageSizeFlag, pageSizeEnv, 10)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid value [twenty] for parameter [page-size]")
	})
}

func TestGetUInt64(t *testing.T) {
	t.Run("Environment variable set", func(t *testing.T) {
		t.Setenv(pageSizeEnv, "50")

		value, err := cmdutil.GetUInt64(newCmd(t), pageSizeFlag, pageSizeEnv, 10)
		require.NoError(t, err)
		require.Equal(t, uint64(50), value)
	})

	t.Run("Not set -> default", func(t *testing.T) {
		value, err := cmdutil.GetUInt64(newCmd(t), pageSizeFlag, pageSizeEnv, 10)
		require.NoError(t, err)
		require.Equal(t, uint64(10), value)
	})

	t.Run("Negative value -> error", func(t *testing.T) {
		cmd := newCmd(t, "--"+pageSizeFlag, "-5")

		_, err := cmdutil.GetUInt64(cmd, pageSizeFlag, pageSizeEnv, 10)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid value [-5] for parameter [page-size]")
	})
}

func TestGetBool(t *testing.T) {
	const (
		systemCertPoolFlag = "tls-systemcertpool"
		systemCertPoolEnv  = "QUILL_TLS_SYSTEMCERTPOOL"
	)

	t.Run("Flag set", func(t *testing.T) {
		cmd := newCmd(t, "--"+systemCertPoolFlag, "true")

		value, err := cmdutil.GetBool(cmd, systemCertPoolFlag, systemCertPoolEnv, false)
		require.NoError(t, err)
		require.True(t, value)
	})

	t.Run("Not set -> default", func(t *testing.T) {
		value, err := cmdutil.GetBool(newCmd(t), systemCertPoolFlag, systemCertPoolEnv, true)
		require.NoError(t, err)
		require.True(t, value)
	})

	t.Run("Invalid value -> error", func(t *testing.T) {
		t.Setenv(systemCertPoolEnv, "yes please")

		_, err := cmdutil.GetBool(newCmd(t), systemCertPoolFlag, systemCertPoolEnv, false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid value [yes please] for parameter [tls-systemcertpool]")
	})
}

func TestGetDuration(t *testing.T) {
	t.Run("Flag set", func(t *testing.T) {
		cmd := newCmd(t, "--"+refreshIntervalFlag, "30s")

		value, err := cmdutil.GetDuration(cmd, refreshIntervalFlag, refreshIntervalEnv, 15*time.Second)
		require.NoError(t, err)
		require.Equal(t, 30*time.Second, value)
	})

	t.Run("Not set -> default", func(t *testing.T) {
		value, err := cmdutil.GetDuration(newCmd(t), refreshIntervalFlag, refreshIntervalEnv, 15*time.Second)
		require.NoError(t, err)
		require.Equal(t, 15*time.Second, value)
	})

	t.Run("Invalid value -> error", func(t *testing.T) {
		t.Setenv(refreshIntervalEnv, "sometimes")

		_, err := cmdutil.GetDuration(newCmd(t), refreshIntervalFlag, refreshIntervalEnv, 15*time.Second)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid value [sometimes] for parameter [nodeinfo-refresh-interval]")
	})
}

func TestGetFloat(t *testing.T) {
	const (
		backoffFactorFlag = "backoff-factor"
		backoffFactorEnv  = "QUILL_BACKOFF_FACTOR"
	)

	t.Run("Flag set", func(t *testing.T) {
		cmd := newCmd(t, "--"+backoffFactorFlag, "1.5")

		value, err := cmdutil.GetFloat(cmd, backoffFactorFlag, backoffFactorEnv, 2.0)
		require.NoError(t, err)
		require.Equal(t, 1.5, value)
	})

	t.Run("Not set -> default", func(t *testing.T) {
		value, err := cmdutil.GetFloat(newCmd(t), backoffFactorFlag, backoffFactorEnv, 2.0)
		require.NoError(t, err)
		require.Equal(t, 2.0, value)
	})

	t.Run("Invalid value -> error", func(t *testing.T) {
		cmd := newCmd(t, "--"+backoffFactorFlag, "fast")

		_, err := cmdutil.GetFloat(cmd, backoffFactorFlag, backoffFactorEnv, 2.0)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid value [fast] for parameter [backoff-factor]")
	})
}

// newCmd returns a command with all of the test flags registered and the given
// arguments parsed.
func newCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "start"}

	cmd.Flags().StringP(hostURLFlag, "", "", "")
	cmd.Flags().StringArrayP(usersFlag, "", nil, "")
	cmd.Flags().StringP(pageSizeFlag, "", "", "")
	cmd.Flags().StringP(refreshIntervalFlag, "", "", "")
	cmd.Flags().StringP("tls-systemcertpool", "", "", "")
	cmd.Flags().StringP("backoff-factor", "", "", "")

	require.NoError(t, cmd.ParseFlags(args))

	return cmd
}
