package types

import (
	"time"
)

// Message is a single published message. Messages are immutable once
// published; the broker assigns PublishedAt and Sequence at publish time.
// Identity is (Topic, Sequence).
type Message struct {
	Topic       string
	Key         string // empty = no key; only keyed messages participate in compaction
	Payload     []byte
	PublishedAt time.Time
	Sequence    uint64
}

// Keyed reports whether the message carries a compaction key.
func (m *Message) Keyed() bool {
	return m.Key != ""
}

// Age returns how long ago the message was published relative to now.
// PublishedAt carries a monotonic reading, so the result is immune to
// wall-clock adjustments.
func (m *Message) Age(now time.Time) time.Duration {
	return now.Sub(m.PublishedAt)
}

// TopicConfig holds per-topic delivery configuration. Set once at topic
// creation and immutable thereafter.
type TopicConfig struct {
	// RetentionTTL is the maximum age at which a message remains eligible
	// for replay to a newly-attached subscriber. Zero disables retention.
	RetentionTTL time.Duration

	// CompactionWindow is the interval within which two messages sharing a
	// key are treated as the same logical value; only the newest survives
	// for delivery. Zero disables compaction.
	CompactionWindow time.Duration
}

// DefaultTopicConfig is the configuration applied to topics created
// implicitly by Publish or Subscribe: no retention, no compaction.
func DefaultTopicConfig() TopicConfig {
	return TopicConfig{}
}

// Retained reports whether the topic keeps messages for late subscribers.
func (c TopicConfig) Retained() bool {
	return c.RetentionTTL > 0
}

// Compacted reports whether the topic compacts keyed messages.
func (c TopicConfig) Compacted() bool {
	return c.CompactionWindow > 0
}
