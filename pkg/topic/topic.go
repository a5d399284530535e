package topic

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/raventid/zaichik/pkg/broadcast"
	"github.com/raventid/zaichik/pkg/log"
	"github.com/raventid/zaichik/pkg/metrics"
	"github.com/raventid/zaichik/pkg/types"
)

// Controller owns the state of one named topic: the live broadcast ring, the
// retention list, the compaction index and the sequence counter. Publishes
// are serialized by the write lock; subscribes only read.
type Controller struct {
	name string
	cfg  types.TopicConfig
	ring *broadcast.Ring

	mu        sync.RWMutex
	retained  []types.Message          // ordered by PublishedAt (sequence is the tiebreak)
	compacted map[string]types.Message // key -> newest live message with that key
	nextSeq   uint64

	// now is the monotonic time source; replaced in tests.
	now func() time.Time

	logger zerolog.Logger
}

// Subscription bundles a fresh ring receiver with the retained snapshot that
// must be replayed before live messages, and the topic configuration the
// per-subscriber filter needs.
type Subscription struct {
	Topic    string
	Config   types.TopicConfig
	Snapshot []types.Message
	Receiver *broadcast.Receiver
}

// NewController creates a controller for name with the given immutable
// configuration and fan-out capacity.
func NewController(name string, cfg types.TopicConfig, capacity int) *Controller {
	return &Controller{
		name:      name,
		cfg:       cfg,
		ring:      broadcast.NewRing(capacity),
		compacted: make(map[string]types.Message),
		now:       time.Now,
		logger:    log.WithTopic(name),
	}
}

// Name returns the topic name.
func (c *Controller) Name() string {
	return c.name
}

// Config returns the topic's immutable configuration.
func (c *Controller) Config() types.TopicConfig {
	return c.cfg
}

// Publish assigns the next sequence and publish time to a message, applies
// retention eviction and compaction supersession, and broadcasts it. The
// whole step is atomic with respect to other publishes on this topic.
// Returns the assigned sequence.
func (c *Controller) Publish(key string, payload []byte) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evictLocked(now)

	if c.cfg.Compacted() && key != "" {
		if prev, ok := c.compacted[key]; ok && now.Sub(prev.PublishedAt) <= c.cfg.CompactionWindow {
			c.dropRetainedLocked(prev.Sequence)
			delete(c.compacted, key)
		}
	}

	c.nextSeq++
	msg := types.Message{
		Topic:       c.name,
		Key:         key,
		Payload:     payload,
		PublishedAt: now,
		Sequence:    c.nextSeq,
	}

	if c.cfg.Retained() {
		c.retained = append(c.retained, msg)
	}
	if c.cfg.Compacted() && key != "" {
		c.compacted[key] = msg
	}

	c.ring.Publish(msg)

	metrics.MessagesPublished.WithLabelValues(c.name).Inc()
	metrics.RetainedMessages.WithLabelValues(c.name).Set(float64(len(c.retained)))

	c.logger.Debug().Uint64("sequence", msg.Sequence).Msg("Message published")
	return msg.Sequence
}

// Subscribe attaches a fresh receiver and snapshots the still-live retention
// list under the read lock, so no publish can interleave between the
// snapshot and the receiver's attach point.
func (c *Controller) Subscribe() *Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	var snapshot []types.Message
	for _, m := range c.retained {
		if m.Age(now) <= c.cfg.RetentionTTL {
			snapshot = append(snapshot, m)
		}
	}
	return &Subscription{
		Topic:    c.name,
		Config:   c.cfg,
		Snapshot: snapshot,
		Receiver: c.ring.NewReceiver(),
	}
}

// Unsubscribe detaches a subscription. Receivers are cursor-only, so there
// is no ring-side state to release; dropping the handle is enough.
func (c *Controller) Unsubscribe(sub *Subscription) {
	sub.Receiver = nil
	sub.Snapshot = nil
}

// RetainedCount returns the number of messages currently in the retention
// list, expired entries included until the next eviction pass.
func (c *Controller) RetainedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.retained)
}

// evictLocked drops retention entries older than RetentionTTL and compaction
// index entries older than CompactionWindow. Caller holds the write lock.
func (c *Controller) evictLocked(now time.Time) {
	if c.cfg.Retained() && len(c.retained) > 0 {
		// The list is ordered by publish time, so expired entries form a prefix.
		i := 0
		for i < len(c.retained) && c.retained[i].Age(now) > c.cfg.RetentionTTL {
			i++
		}
		if i > 0 {
			c.retained = append([]types.Message(nil), c.retained[i:]...)
			c.logger.Debug().Int("evicted", i).Msg("Retention eviction")
		}
	}
	if c.cfg.Compacted() {
		for key, m := range c.compacted {
			if m.Age(now) > c.cfg.CompactionWindow {
				delete(c.compacted, key)
			}
		}
	}
}

// dropRetainedLocked removes the retention entry with the given sequence, if
// present. Caller holds the write lock.
func (c *Controller) dropRetainedLocked(seq uint64) {
	for i, m := range c.retained {
		if m.Sequence == seq {
			c.retained = append(c.retained[:i:i], c.retained[i+1:]...)
			return
		}
	}
}
