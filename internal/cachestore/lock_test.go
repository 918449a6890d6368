package cachestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// TestOpenEmbeddedConcurrentSubdirFailsFast exercises the property that a
// second OpenEmbedded against a subdir already held by another process fails
// immediately with ErrCacheLocked rather than blocking until the first
// closes.
func TestOpenEmbeddedConcurrentSubdirFailsFast(t *testing.T) {
	dir := t.TempDir()

	first, err := OpenEmbedded(context.Background(), dir)
	if err != nil {
		t.Fatalf("first OpenEmbedded: %v", err)
	}

	_, err = OpenEmbedded(context.Background(), dir)
	if err == nil {
		t.Fatal("second OpenEmbedded succeeded, want ErrCacheLocked")
	}
	if !errors.Is(err, ErrCacheLocked) {
		t.Fatalf("second OpenEmbedded err = %v, want it to wrap ErrCacheLocked", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("closing first store: %v", err)
	}

	second, err := OpenEmbedded(context.Background(), dir)
	if err != nil {
		t.Fatalf("OpenEmbedded after the first store released its lock: %v", err)
	}
	second.Close()
}

func TestLockEmbeddedNonBlocking(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "cache.lock")

	l1, err := lockEmbedded(lockPath)
	if err != nil {
		t.Fatalf("lockEmbedded: %v", err)
	}
	defer l1.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := lockEmbedded(lockPath); !errors.Is(err, ErrCacheLocked) {
			t.Errorf("second lockEmbedded err = %v, want ErrCacheLocked", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lockEmbedded blocked instead of failing fast")
	}
}
