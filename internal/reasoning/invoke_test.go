package reasoning

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInvokeSuccessReturnsZero(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix shell command")
	}
	inv := New("true", time.Second)
	code, err := inv.Invoke(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestInvokeNonZeroExitReturnsCodeNoError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix shell command")
	}
	inv := New("false", time.Second)
	code, err := inv.Invoke(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 1, code)
}

func TestInvokeSubstitutesVaultToken(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix shell command")
	}
	dir := t.TempDir()
	inv := New("test -d {vault}", time.Second)
	code, err := inv.Invoke(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestInvokeEmptyCommandErrors(t *testing.T) {
	inv := New("   ", time.Second)
	_, err := inv.Invoke(context.Background(), t.TempDir())
	require.Error(t, err)
}

func TestInvokeTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix shell command")
	}
	inv := New("sleep 5", 20*time.Millisecond)
	_, err := inv.Invoke(context.Background(), t.TempDir())
	require.Error(t, err)
}

func TestInvokeDefaultsTimeout(t *testing.T) {
	inv := New("true", 0)
	require.Equal(t, 10*time.Minute, inv.Timeout)
}
