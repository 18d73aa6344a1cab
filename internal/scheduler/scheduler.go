// Package scheduler bounds how many tasks run at once.
package scheduler

import (
	"context"
	"log"
	"sync"
)

// Scheduler hands out worker slots under a global and a per-connector limit.
type Scheduler struct {
	config *Config

	mu              sync.Mutex
	activeWorkers   int
	waiting         int
	connectorCounts map[string]int
	// released is closed and replaced whenever a slot frees up.
	released chan struct{}
}

// New creates a new scheduler.
func New(cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		config:          cfg,
		connectorCounts: make(map[string]int),
		released:        make(chan struct{}),
	}
}

// Acquire blocks until a worker slot for connector is free or ctx is done.
// The returned release func frees the slot and is safe to call more than once.
func (sch *Scheduler) Acquire(ctx context.Context, connector string) (func(), error) {
	queued := false
	for {
		sch.mu.Lock()
		if sch.hasCapacity(connector) {
			sch.activeWorkers++
			sch.connectorCounts[connector]++
			if queued {
				sch.waiting--
			}
			sch.mu.Unlock()

			var once sync.Once
			return func() { once.Do(func() { sch.release(connector) }) }, nil
		}
		if !queued {
			queued = true
			sch.waiting++
			log.Printf("All %s worker slots busy, waiting", connector)
		}
		wait := sch.released
		sch.mu.Unlock()

		select {
		case <-ctx.Done():
			sch.mu.Lock()
			sch.waiting--
			sch.mu.Unlock()
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// hasCapacity must be called with mu held.
func (sch *Scheduler) hasCapacity(connector string) bool {
	if sch.activeWorkers >= sch.config.GlobalMax {
		return false
	}
	return sch.connectorCounts[connector] < sch.config.GetConnectorLimit(connector)
}

func (sch *Scheduler) release(connector string) {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	sch.activeWorkers--
	sch.connectorCounts[connector]--
	close(sch.released)
	sch.released = make(chan struct{})
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]interface{} {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	connectorCounts := make(map[string]int)
	for k, v := range sch.connectorCounts {
		connectorCounts[k] = v
	}

	return map[string]interface{}{
		"active_workers":   sch.activeWorkers,
		"waiting":          sch.waiting,
		"global_max":       sch.config.GlobalMax,
		"connector_counts": connectorCounts,
	}
}
