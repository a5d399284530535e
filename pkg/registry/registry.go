package registry

import (
	"errors"
	"sync"

	"github.com/raventid/zaichik/pkg/log"
	"github.com/raventid/zaichik/pkg/metrics"
	"github.com/raventid/zaichik/pkg/topic"
	"github.com/raventid/zaichik/pkg/types"
)

// ErrTopicExists is returned by Create when the name is already registered.
// The existing configuration wins; reconfiguration is rejected.
var ErrTopicExists = errors.New("registry: topic already exists")

// Registry is the process-wide map of topic name to controller. Lookups take
// the read lock; only inserts take the write lock. Controllers are never
// removed once registered.
type Registry struct {
	mu       sync.RWMutex
	topics   map[string]*topic.Controller
	capacity int // fan-out capacity for new topics
}

// New creates a registry whose topics use the given broadcast capacity.
func New(capacity int) *Registry {
	return &Registry{
		topics:   make(map[string]*topic.Controller),
		capacity: capacity,
	}
}

// Get returns the controller for name, or nil if the topic does not exist.
func (r *Registry) Get(name string) *topic.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topics[name]
}

// Create registers a topic with explicit configuration. It fails with
// ErrTopicExists when the name is taken, whatever configuration the existing
// topic has.
func (r *Registry) Create(name string, cfg types.TopicConfig) (*topic.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[name]; ok {
		return nil, ErrTopicExists
	}
	ctrl := topic.NewController(name, cfg, r.capacity)
	r.topics[name] = ctrl
	metrics.TopicsTotal.Set(float64(len(r.topics)))

	log.Logger.Info().
		Str("topic", name).
		Dur("retention_ttl", cfg.RetentionTTL).
		Dur("compaction_window", cfg.CompactionWindow).
		Msg("Topic created")
	return ctrl, nil
}

// GetOrCreate resolves name, creating the topic with cfg if it is missing.
// The read path is lock-free with respect to other lookups and upgrades to
// the write lock only on miss. Returns the controller and whether this call
// created it.
func (r *Registry) GetOrCreate(name string, cfg types.TopicConfig) (*topic.Controller, bool) {
	if ctrl := r.Get(name); ctrl != nil {
		return ctrl, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: another connection may have won the upgrade race.
	if ctrl, ok := r.topics[name]; ok {
		return ctrl, false
	}
	ctrl := topic.NewController(name, cfg, r.capacity)
	r.topics[name] = ctrl
	metrics.TopicsTotal.Set(float64(len(r.topics)))

	log.Logger.Info().
		Str("topic", name).
		Dur("retention_ttl", cfg.RetentionTTL).
		Dur("compaction_window", cfg.CompactionWindow).
		Msg("Topic created")
	return ctrl, true
}

// Len returns the number of registered topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// Each calls fn for every registered controller. fn must not block.
func (r *Registry) Each(fn func(*topic.Controller)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ctrl := range r.topics {
		fn(ctrl)
	}
}

// EachRetained reports the retention list size of every topic. It implements
// the metrics collector's TopicSource.
func (r *Registry) EachRetained(fn func(topic string, retained int)) {
	r.Each(func(ctrl *topic.Controller) {
		fn(ctrl.Name(), ctrl.RetainedCount())
	})
}
