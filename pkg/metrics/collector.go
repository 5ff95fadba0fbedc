package metrics

import "time"

// CacheSizer is the narrow view of credstore.CredStore the collector
// polls; kept as an interface so this package doesn't import credstore
// just to read one gauge.
type CacheSizer interface {
	List() []string
}

// Collector periodically samples ambient gauges that aren't naturally
// updated at the point of the event they describe, the same role the
// teacher's ticker-driven collector played for cluster-wide counts.
type Collector struct {
	store  CacheSizer
	stopCh chan struct{}
}

// NewCollector creates a collector that samples store's cache size.
func NewCollector(store CacheSizer) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins sampling in the background every 15 seconds.
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

// Stop ends the background sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	CredStoreCacheSize.Set(float64(len(c.store.List())))
}
