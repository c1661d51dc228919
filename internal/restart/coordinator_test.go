package restart

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	marker   string
	pending  string
	commands []string
	// markerAtRun records whether the marker still existed when the
	// command ran.
	markerAtRun []bool
	coord       *Coordinator
}

func newFixture(t *testing.T, status int) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		marker:  filepath.Join(dir, "katello-agent-restart"),
		pending: PendingDir(filepath.Join(dir, "pending"), "katello"),
	}
	f.coord = New(f.marker, f.pending, DefaultCommand, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.coord.run = func(_ context.Context, command string) (int, error) {
		f.commands = append(f.commands, command)
		_, err := os.Stat(f.marker)
		f.markerAtRun = append(f.markerAtRun, err == nil)
		return status, nil
	}
	return f
}

func (f *fixture) pend(t *testing.T, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.pending, 0o755))
	for i := 0; i < n; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(f.pending, fmt.Sprintf("file%d", i)), nil, 0o644))
	}
}

func TestIsBusy(t *testing.T) {
	t.Run("MissingDir", func(t *testing.T) {
		busy, err := newFixture(t, 0).coord.IsBusy()
		require.NoError(t, err)
		assert.False(t, busy)
	})

	for _, n := range []int{0, 1, 2, 25} {
		t.Run(fmt.Sprintf("Entries%d", n), func(t *testing.T) {
			f := newFixture(t, 0)
			f.pend(t, n)

			busy, err := f.coord.IsBusy()
			require.NoError(t, err)
			assert.Equal(t, n > 0, busy)
		})
	}
}

func TestRestart(t *testing.T) {
	f := newFixture(t, 123)
	require.NoError(t, f.coord.Request())

	status, err := f.coord.Restart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 123, status)
	assert.Equal(t, []string{"service goferd restart"}, f.commands)
	assert.Equal(t, []bool{false}, f.markerAtRun, "marker removed before the command runs")
	assert.False(t, f.coord.Requested())
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("NotRequested", func(t *testing.T) {
		f := newFixture(t, 0)

		restarted, err := f.coord.Apply(ctx)
		require.NoError(t, err)
		assert.False(t, restarted)
		assert.Empty(t, f.commands)
	})

	t.Run("RequestedAndBusy", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, f.coord.Request())
		f.pend(t, 2)

		restarted, err := f.coord.Apply(ctx)
		require.NoError(t, err)
		assert.False(t, restarted)
		assert.Empty(t, f.commands)
		assert.True(t, f.coord.Requested())
	})

	t.Run("RequestedAndIdle", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, f.coord.Request())
		f.pend(t, 0)

		restarted, err := f.coord.Apply(ctx)
		require.NoError(t, err)
		assert.True(t, restarted)
		assert.Len(t, f.commands, 1)
		assert.False(t, f.coord.Requested())

		// The marker is gone, so a second pass does nothing.
		restarted, err = f.coord.Apply(ctx)
		require.NoError(t, err)
		assert.False(t, restarted)
		assert.Len(t, f.commands, 1)
	})

	t.Run("BusyThenIdle", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, f.coord.Request())
		f.pend(t, 1)

		restarted, err := f.coord.Apply(ctx)
		require.NoError(t, err)
		assert.False(t, restarted)

		require.NoError(t, os.RemoveAll(f.pending))
		restarted, err = f.coord.Apply(ctx)
		require.NoError(t, err)
		assert.True(t, restarted)
		assert.Len(t, f.commands, 1)
	})
}

func TestRun(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.coord.Request())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.coord.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return !f.coord.Requested() }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Len(t, f.commands, 1)
}

func TestShell(t *testing.T) {
	status, err := shell(context.Background(), "exit 7")
	require.NoError(t, err)
	assert.Equal(t, 7, status)

	status, err = shell(context.Background(), "true")
	require.NoError(t, err)
	assert.Equal(t, 0, status)
}

func TestShellOutlivesCancelledContext(t *testing.T) {
	started := filepath.Join(t.TempDir(), "started-again")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	status, err := shell(ctx, "sleep 0.3; touch "+started)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.FileExists(t, started)
	assert.Error(t, ctx.Err())
}
