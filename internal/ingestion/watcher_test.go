package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	w := NewWatcher(logger.NewNop(), root, 100*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	// give the watcher time to register the root
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(root, "a.md"), []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one re-run for a burst, got %d", got)
	}
}

func TestWatcherMissingRoot(t *testing.T) {
	w := NewWatcher(logger.NewNop(), filepath.Join(t.TempDir(), "missing"), 0, func(context.Context) error { return nil })
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected error for missing root")
	}
}
