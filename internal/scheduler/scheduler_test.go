package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSchedulerConcurrencyLimits(t *testing.T) {
	cfg := &Config{
		GlobalMax: 3,
		ByConnector: map[string]int{
			"test": 2,
		},
	}
	sch := New(cfg)
	ctx := context.Background()

	var mu sync.Mutex
	active, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := sch.Acquire(ctx, "test")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer release()

			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if peak > cfg.ByConnector["test"] {
		t.Errorf("Connector workers %d exceeds limit %d", peak, cfg.ByConnector["test"])
	}
	if peak == 0 {
		t.Error("No worker ever ran")
	}

	stats := sch.GetStats()
	if stats["active_workers"].(int) != 0 || stats["waiting"].(int) != 0 {
		t.Errorf("stats after all releases = %v", stats)
	}
}

func TestSchedulerGlobalMax(t *testing.T) {
	sch := New(&Config{GlobalMax: 2, ByConnector: map[string]int{"a": 5, "b": 5}})
	ctx := context.Background()

	releaseA, _ := sch.Acquire(ctx, "a")
	releaseB, _ := sch.Acquire(ctx, "b")

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := sch.Acquire(short, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire over global max error = %v, want deadline exceeded", err)
	}

	releaseA()
	releaseA() // second call is a no-op
	if got := sch.GetStats()["active_workers"].(int); got != 1 {
		t.Errorf("active_workers = %d, want 1", got)
	}

	done := make(chan struct{})
	go func() {
		release, err := sch.Acquire(ctx, "a")
		if err == nil {
			release()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not get the freed slot")
	}
	releaseB()
}

func TestSchedulerWaiterWakesOnRelease(t *testing.T) {
	sch := New(&Config{GlobalMax: 10, ByConnector: map[string]int{"test": 1}})
	ctx := context.Background()

	release, err := sch.Acquire(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		r, err := sch.Acquire(ctx, "test")
		if err != nil {
			t.Errorf("Acquire failed: %v", err)
			return
		}
		close(acquired)
		r()
	}()

	// Poll until the second caller is queued
	deadline := time.After(2 * time.Second)
	for sch.GetStats()["waiting"].(int) != 1 {
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for the second caller to queue")
		case <-time.After(10 * time.Millisecond):
		}
	}

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("Waiter was not woken by release")
	}
}

func TestGetConnectorLimit(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetConnectorLimit("localexec"); got != 5 {
		t.Errorf("localexec limit = %d, want 5", got)
	}
	if got := cfg.GetConnectorLimit("unknown"); got != 1 {
		t.Errorf("unknown limit = %d, want 1", got)
	}
}
