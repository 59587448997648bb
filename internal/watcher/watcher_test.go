package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestMatches(t *testing.T) {
	w := New(nil, []string{".txt", ".MD"}, nil, nil, nil)
	if !w.matches("/a/b/note.txt") || !w.matches("/a/b/NOTE.TXT") || !w.matches("/a/readme.md") {
		t.Error("matching extensions rejected")
	}
	if w.matches("/a/b/binary.exe") {
		t.Error("non-matching extension accepted")
	}
	all := New(nil, nil, nil, nil, nil)
	if !all.matches("/anything.xyz") {
		t.Error("empty extension list must match everything")
	}
}

func TestWatcherDetectsWriteAndRemove(t *testing.T) {
	root := t.TempDir()
	changes := make(chan string, 16)
	removes := make(chan string, 16)

	w := New([]string{root}, []string{".txt"},
		func(p string) { changes <- p },
		func(p string) { removes <- p },
		nil)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(root, "note.txt")
	if err := os.WriteFile(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changes, path)

	// Non-matching files never trigger.
	other := filepath.Join(root, "skip.bin")
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, removes, path)

	select {
	case p := <-changes:
		t.Errorf("unexpected change callback for %s", p)
	default:
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int64
	done := make(chan string, 16)

	w := New([]string{root}, nil, func(p string) {
		calls.Add(1)
		done <- p
	}, nil, nil)
	w.debounce = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(root, "burst.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("draft"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	waitFor(t, done, path)
	if n := calls.Load(); n >= 5 {
		t.Errorf("burst of 5 writes must coalesce, got %d callbacks", n)
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	changes := make(chan string, 16)

	w := New([]string{root}, []string{".txt"},
		func(p string) { changes <- p }, nil, nil)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	sub := filepath.Join(root, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(sub, "deep.txt")

	// The subdirectory registration races the write; retry until the event
	// lands or the deadline passes.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case got := <-changes:
			if got == path {
				return
			}
		case <-time.After(300 * time.Millisecond):
		}
	}
	t.Fatal("new subdirectory was never picked up")
}

func TestStopUnderEventLoad(t *testing.T) {
	root := t.TempDir()
	w := New([]string{root}, nil, func(string) {}, func(string) {}, nil)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Flood the watcher with events while Stop runs from another goroutine;
	// the event loop must drain and exit without panicking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			path := filepath.Join(root, "f"+string(rune('a'+i%26))+".txt")
			_ = os.WriteFile(path, []byte("x"), 0o644)
		}
	}()
	time.Sleep(5 * time.Millisecond)
	w.Stop()
	<-done

	// Stop is idempotent, and a stopped watcher can be started again.
	w.Stop()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
}

func TestSyncExisting(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.bin"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	var seen []string
	w := New([]string{root}, []string{".txt"},
		func(p string) { seen = append(seen, p) }, nil, nil)
	w.SyncExisting()

	if len(seen) != 1 || filepath.Base(seen[0]) != "a.txt" {
		t.Errorf("expected only a.txt, got %v", seen)
	}
}
