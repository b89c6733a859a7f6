package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestURLSetNoDuplicates(t *testing.T) {
	s := NewURLSet()

	added := s.Add("https://www.mubawab.ma/fr/a/1")
	if !added {
		t.Error("first Add should return true")
	}

	added = s.Add("https://www.mubawab.ma/fr/a/1")
	if added {
		t.Error("second Add of same URL should return false")
	}

	if !s.Contains("https://www.mubawab.ma/fr/a/1") {
		t.Error("Contains should report an added URL")
	}

	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}
}

func TestURLSetConcurrency(t *testing.T) {
	s := NewURLSet()
	var added int64

	pool := NewWorkerPool(10)
	for i := 0; i < 100; i++ {
		url := "https://www.mubawab.ma/fr/a/same"
		pool.Submit(func() {
			if s.Add(url) {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	const workers = 3
	pool := NewWorkerPool(workers)

	var running, peak int64
	for i := 0; i < 30; i++ {
		pool.Submit(func() {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&running, -1)
		})
		if got := pool.Running(); got > workers {
			t.Fatalf("Running() = %d; want <= %d", got, workers)
		}
	}
	pool.Wait()

	if peak > workers {
		t.Errorf("peak concurrency: got %d, want <= %d", peak, workers)
	}
	if pool.Running() != 0 {
		t.Errorf("Running() after Wait: got %d, want 0", pool.Running())
	}
}

func TestWorkerPoolSubmitContextCancelled(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	pool.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var ran int64
	err := pool.SubmitContext(ctx, func() { atomic.AddInt64(&ran, 1) })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("SubmitContext on full pool: got %v, want deadline exceeded", err)
	}

	close(release)
	pool.Wait()
	if ran != 0 {
		t.Errorf("rejected job ran %d times", ran)
	}
}
