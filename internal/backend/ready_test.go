package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/nbdctl/internal/testutil/testlog"
)

func TestAwaitReturnsWhenSocketAlreadyExists(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "nbd.sock")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("create socket: %v", err)
	}

	w := Waiter{PollInterval: time.Millisecond}
	if err := w.Await(context.Background(), path); err != nil {
		t.Fatalf("await: %v", err)
	}
}

func TestAwaitSeesLateSocket(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "nbd.sock")

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(path, nil, 0o600)
	}()

	w := Waiter{PollInterval: 5 * time.Millisecond}
	done := make(chan error, 1)
	go func() { done <- w.Await(context.Background(), path) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("await: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("await did not observe the socket")
	}
}

func TestAwaitHonorsContextCancellation(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "never.sock")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	w := Waiter{PollInterval: 5 * time.Millisecond}
	err := w.Await(ctx, path)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
