package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Test10ParallelWorkers verifies that ten slots can be held at once and that
// an eleventh caller waits until one is released.
func Test10ParallelWorkers(t *testing.T) {
	cfg := &Config{
		GlobalMax: 10,
		ByConnector: map[string]int{
			"test": 10,
		},
	}
	sch := New(cfg)
	ctx := context.Background()

	releases := make([]func(), 10)
	var wg sync.WaitGroup
	for i := range releases {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release, err := sch.Acquire(ctx, "test")
			if err != nil {
				t.Errorf("Acquire %d failed: %v", i, err)
				return
			}
			releases[i] = release
		}(i)
	}
	wg.Wait()

	if got := sch.GetStats()["active_workers"].(int); got != 10 {
		t.Fatalf("Expected 10 active workers, got %d", got)
	}

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := sch.Acquire(short, "test"); err == nil {
		t.Error("Eleventh Acquire should wait while all slots are held")
	}

	for _, release := range releases {
		if release != nil {
			release()
		}
	}
	if got := sch.GetStats()["active_workers"].(int); got != 0 {
		t.Errorf("Expected 0 active workers after release, got %d", got)
	}
}
