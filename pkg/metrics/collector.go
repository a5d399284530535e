package metrics

import (
	"time"
)

// TopicSource is the view of the topic registry the collector samples. It is
// a local interface so this package stays import-free of the broker core.
type TopicSource interface {
	Len() int
	EachRetained(fn func(topic string, retained int))
}

// Collector periodically samples topic gauges. Publish-side updates keep the
// counters live; the collector re-reads the topic count and every topic's
// retention list size on a fixed interval. Retention eviction is lazy, so a
// sampled size still includes expired entries until the topic's next publish.
type Collector struct {
	source TopicSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source TopicSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
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

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	TopicsTotal.Set(float64(c.source.Len()))
	c.source.EachRetained(func(topic string, retained int) {
		RetainedMessages.WithLabelValues(topic).Set(float64(retained))
	})
}
