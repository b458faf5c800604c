package metrics

import "time"

// Collector periodically samples a live-reactor count into the
// ReactorsLive gauge. Per-event counters (spawns, closes, link
// lifecycle, dispatch) are incremented inline at their call sites
// elsewhere in the module; this collector only handles the
// point-in-time gauge that can't be incremented incrementally.
//
// count takes a plain func() int rather than a *reactor.Broker so this
// package never needs to import pkg/reactor.
type Collector struct {
	count  func() int
	stopCh chan struct{}
}

// NewCollector creates a collector sampling count on each tick.
func NewCollector(count func() int) *Collector {
	return &Collector{
		count:  count,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ReactorsLive.Set(float64(c.count()))
}
