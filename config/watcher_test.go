package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher_DetectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1"), 0o644))

	w, err := NewFileWatcher([]string{path},
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	events := make(chan FileEvent, 4)
	w.OnChange(func(e FileEvent) { events <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// 轮询按修改时间判断,显式拨快避免文件系统时间粒度问题
	require.NoError(t, os.WriteFile(path, []byte("a: 2"), 0o644))
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Second)))

	select {
	case e := <-events:
		assert.Equal(t, path, e.Path)
		assert.Equal(t, FileOpWrite, e.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write event")
	}
}

func TestFileWatcher_DetectsCreateAndRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.yaml")

	w, err := NewFileWatcher([]string{path},
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	events := make(chan FileEvent, 4)
	w.OnChange(func(e FileEvent) { events <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	select {
	case e := <-events:
		assert.Equal(t, FileOpCreate, e.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for create event")
	}

	require.NoError(t, os.Remove(path))

	select {
	case e := <-events:
		assert.Equal(t, FileOpRemove, e.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remove event")
	}
}

func TestFileWatcher_StartTwiceFails(t *testing.T) {
	t.Parallel()

	w, err := NewFileWatcher(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx))
}

func TestFileWatcher_StopIdempotent(t *testing.T) {
	t.Parallel()

	w, err := NewFileWatcher(nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}
