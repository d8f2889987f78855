package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool := NewWorkerPool(2, 10)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if !pool.Submit("count", func(ctx context.Context) { ran.Add(1) }) {
			t.Fatal("Expected submit to succeed")
		}
	}

	pool.Stop(context.Background())
	if ran.Load() != 5 {
		t.Errorf("Expected 5 tasks to run before stop returned, got %d", ran.Load())
	}
	if pool.Submit("late", func(ctx context.Context) {}) {
		t.Error("Expected submit after stop to be rejected")
	}
}

func TestWorkerPool_RejectsWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	started := make(chan struct{})
	release := make(chan struct{})

	pool.Submit("blocker", func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	if !pool.Submit("queued", func(ctx context.Context) {}) {
		t.Error("Expected one task to fit in the queue")
	}
	if pool.Submit("overflow", func(ctx context.Context) {}) {
		t.Error("Expected overflow task to be rejected")
	}

	close(release)
	pool.Stop(context.Background())
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	pool := NewWorkerPool(1, 4)
	done := make(chan struct{})

	pool.Submit("boom", func(ctx context.Context) { panic("boom") })
	pool.Submit("after", func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected worker to survive a panicking task")
	}
	pool.Stop(context.Background())
}

func TestWorkerPool_StopDeadlineCancelsTasks(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	started := make(chan struct{})

	pool.Submit("long", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		pool.Stop(ctx)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected Stop to cancel the running task after the deadline")
	}
}
