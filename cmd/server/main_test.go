package main

import (
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestServeUntilSignal_WaitsForDrain(t *testing.T) {
	signals := make(chan os.Signal, 1)
	stopped := make(chan struct{})

	var mu sync.Mutex
	var order []string
	record := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	listen := func() error {
		<-stopped
		record("listen returned")
		return nil
	}
	shutdown := func() {
		record("shutdown")
		close(stopped)
	}
	drain := func() {
		time.Sleep(50 * time.Millisecond)
		record("drained")
	}

	signals <- syscall.SIGTERM
	if err := serveUntilSignal(signals, listen, shutdown, drain); err != nil {
		t.Fatalf("serveUntilSignal failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "shutdown" || order[2] != "drained" {
		t.Errorf("Expected shutdown, listen return, then drain before exit, got %v", order)
	}
}

func TestServeUntilSignal_ListenError(t *testing.T) {
	listenErr := errors.New("address already in use")
	err := serveUntilSignal(make(chan os.Signal), func() error { return listenErr }, func() {}, func() {})
	if !errors.Is(err, listenErr) {
		t.Errorf("Expected listen error, got %v", err)
	}
}
