package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFiles(t *testing.T) {
	dir := t.TempDir()
	watched := writeFile(t, dir, "application.properties", "a=1\n")
	other := filepath.Join(dir, "other.properties")

	ctx, cancel := context.WithCancel(context.Background())
	var changes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchFiles(ctx, []string{watched}, func() { changes.Add(1) })
	}()

	// Wait for the watcher to be registered before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(other, []byte("b=2\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, changes.Load())

	require.NoError(t, os.WriteFile(watched, []byte("a=2\n"), 0o600))
	assert.Eventually(t, func() bool { return changes.Load() > 0 }, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchFilesMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone", "application.properties")
	err := watchFiles(context.Background(), []string{missing}, func() {})
	assert.ErrorContains(t, err, "failed to watch")
}
