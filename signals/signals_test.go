package signals

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlagsStartUnset(t *testing.T) {
	tr := NewTracker()
	require.False(t, tr.AnyShutdownRequested())
	require.False(t, tr.GracefulShutdownRequested())
	require.False(t, tr.FastShutdownRequested())
	require.False(t, tr.ReloadRequested())
}

func TestProgrammaticRequests(t *testing.T) {
	tr := NewTracker()

	tr.RequestGracefulShutdown()
	require.True(t, tr.GracefulShutdownRequested())
	require.True(t, tr.AnyShutdownRequested())
	require.False(t, tr.FastShutdownRequested())

	tr.RequestReload()
	require.True(t, tr.ReloadRequested())
	tr.ClearReload()
	require.False(t, tr.ReloadRequested())
}

func TestReloadSignal(t *testing.T) {
	tr := NewTracker()
	tr.TrackReload()
	// Registering twice must be a no-op.
	tr.TrackReload()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	require.Eventually(t, tr.ReloadRequested, 2*time.Second, 10*time.Millisecond,
		"SIGHUP did not set the reload flag")
	require.False(t, tr.AnyShutdownRequested())
}

func TestFastShutdownSignal(t *testing.T) {
	tr := NewTracker()
	tr.TrackFastShutdown()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	require.Eventually(t, tr.FastShutdownRequested, 2*time.Second, 10*time.Millisecond,
		"SIGUSR1 did not set the fast shutdown flag")
}
