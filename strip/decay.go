package strip

import (
	"context"
	"log"
	"time"
)

// DecayTask fades the store on a fixed period
type DecayTask struct {
	store    *Store
	interval time.Duration
	debug    bool
}

// NewDecayTask creates a decay task; a non-positive interval uses the default
func NewDecayTask(store *Store, interval time.Duration, debug bool) *DecayTask {
	if interval <= 0 {
		interval = DefaultDecayInterval
	}
	return &DecayTask{store: store, interval: interval, debug: debug}
}

// Run ticks until ctx is cancelled
func (d *DecayTask) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := d.store.DecayTick(); removed > 0 && d.debug {
				log.Printf("[DEBUG] decay: %d LEDs faded out, %d lit", removed, d.store.Len())
			}
		}
	}
}
