package metrics

import "time"

// VersionSource is the subset of the Backend that Collector needs, kept
// narrow so this package never imports storage directly.
type VersionSource interface {
	LatestVersion() uint64
}

// Collector periodically samples slow-moving backend gauges that aren't
// naturally updated on their own write path (LatestVersion changes once per
// commit, but nothing else polls it for export).
type Collector struct {
	source VersionSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source VersionSource) *Collector {
	return &Collector{
		source: source,
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
	LatestVersion.Set(float64(c.source.LatestVersion()))
}
