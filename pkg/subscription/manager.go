package subscription

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/raventid/zaichik/pkg/broadcast"
	"github.com/raventid/zaichik/pkg/log"
	"github.com/raventid/zaichik/pkg/metrics"
	"github.com/raventid/zaichik/pkg/protocol"
	"github.com/raventid/zaichik/pkg/registry"
	"github.com/raventid/zaichik/pkg/types"
)

// entry is the per-(connection, topic) subscription state: the handle onto
// the topic plus the bookkeeping the per-subscriber filter needs.
type entry struct {
	topic  string
	cfg    types.TopicConfig
	cancel context.CancelFunc

	lastSeq   uint64
	delivered map[string]time.Time // key -> PublishedAt of last delivery with that key
}

// envelope is one item on the manager's fan-in channel.
type envelope struct {
	sub      *entry
	msg      types.Message
	retained bool
	lagged   bool
	skipped  uint64
}

// Manager is the per-connection task. It owns the socket write side, the set
// of active subscriptions, and the commit flag; it merges the command inbox
// with a fan-in of all subscription pumps and serializes every outbound
// frame through the single writer.
type Manager struct {
	connID   string
	bw       *bufio.Writer
	registry *registry.Registry

	commands <-chan protocol.Command
	fatal    chan protocol.ProtocolError
	events   chan envelope

	subs           map[string]*entry
	awaitingCommit bool

	now    func() time.Time
	logger zerolog.Logger
}

// New creates a manager for one accepted connection. w is the socket write
// side, owned exclusively by this manager from here on; commands is fed by
// the connection's reader and closed when the read side ends.
func New(connID string, w io.Writer, commands <-chan protocol.Command, reg *registry.Registry) *Manager {
	return &Manager{
		connID:   connID,
		bw:       bufio.NewWriter(w),
		registry: reg,
		commands: commands,
		fatal:    make(chan protocol.ProtocolError, 1),
		events:   make(chan envelope),
		subs:     make(map[string]*entry),
		now:      time.Now,
		logger:   log.WithConnID(connID),
	}
}

// Fail injects a fatal protocol error observed by the reader. The manager
// answers with a ProtocolError frame and shuts the connection down.
func (m *Manager) Fail(perr protocol.ProtocolError) {
	select {
	case m.fatal <- perr:
	default:
	}
}

// Run processes the connection until the client closes, the context is
// cancelled, or a fatal error occurs. It always leaves the subscriptions
// cancelled; closing the socket is the caller's job.
func (m *Manager) Run(ctx context.Context) {
	pumpCtx, cancelPumps := context.WithCancel(ctx)
	defer cancelPumps()
	defer m.dropAllSubscriptions()

	for {
		// The data plane is polled only while not awaiting a commit; the
		// control plane is always live.
		var events chan envelope
		if !m.awaitingCommit {
			events = m.events
		}

		select {
		case <-ctx.Done():
			return
		case perr := <-m.fatal:
			_ = m.writeEvent(perr)
			return
		case cmd, ok := <-m.commands:
			if !ok {
				// Reader ended: EOF or transport error.
				m.logger.Debug().Msg("Command stream closed")
				return
			}
			if done := m.handleCommand(pumpCtx, cmd); done {
				return
			}
		case env := <-events:
			if ok := m.handleEnvelope(env); !ok {
				return
			}
		}
	}
}

// handleCommand applies one client command and writes its single response
// frame. It reports whether the connection should shut down.
func (m *Manager) handleCommand(pumpCtx context.Context, cmd protocol.Command) bool {
	start := m.now()
	switch c := cmd.(type) {
	case protocol.CreateTopic:
		defer metrics.ObserveCommand("create_topic", start)
		cfg := types.TopicConfig{
			RetentionTTL:     c.RetentionTTL,
			CompactionWindow: c.CompactionWindow,
		}
		if _, err := m.registry.Create(c.Name, cfg); err != nil {
			if errors.Is(err, registry.ErrTopicExists) {
				return !m.writeEvent(protocol.TopicAlreadyExists{Name: c.Name})
			}
			m.logger.Error().Err(err).Str("topic", c.Name).Msg("Topic creation failed")
			return true
		}
		return !m.writeEvent(protocol.Ack{})

	case protocol.Subscribe:
		defer metrics.ObserveCommand("subscribe", start)
		m.subscribe(pumpCtx, c.Name)
		return !m.writeEvent(protocol.Ack{})

	case protocol.Unsubscribe:
		defer metrics.ObserveCommand("unsubscribe", start)
		m.unsubscribe(c.Name)
		return !m.writeEvent(protocol.Ack{})

	case protocol.Publish:
		defer metrics.ObserveCommand("publish", start)
		ctrl, _ := m.registry.GetOrCreate(c.Name, types.DefaultTopicConfig())
		ctrl.Publish(c.Key, c.Payload)
		return !m.writeEvent(protocol.Ack{})

	case protocol.Commit:
		defer metrics.ObserveCommand("commit", start)
		m.awaitingCommit = false
		return !m.writeEvent(protocol.Ack{})

	case protocol.Close:
		defer metrics.ObserveCommand("close", start)
		m.logger.Debug().Msg("Client requested close")
		_ = m.writeEvent(protocol.Ack{})
		return true

	default:
		m.logger.Error().Str("command", typeName(cmd)).Msg("Unhandled command")
		return true
	}
}

// subscribe adds a subscription for name, creating the topic with default
// configuration when missing. A duplicate subscribe is a no-op.
func (m *Manager) subscribe(pumpCtx context.Context, name string) {
	if _, ok := m.subs[name]; ok {
		return
	}
	ctrl, _ := m.registry.GetOrCreate(name, types.DefaultTopicConfig())
	sub := ctrl.Subscribe()

	ctx, cancel := context.WithCancel(pumpCtx)
	e := &entry{
		topic:     name,
		cfg:       sub.Config,
		cancel:    cancel,
		delivered: make(map[string]time.Time),
	}
	m.subs[name] = e
	metrics.SubscriptionsActive.Inc()

	go m.pump(ctx, e, sub.Snapshot, sub.Receiver)
	m.logger.Debug().Str("topic", name).Int("snapshot", len(sub.Snapshot)).Msg("Subscription added")
}

// unsubscribe drops the subscription for name, if any.
func (m *Manager) unsubscribe(name string) {
	e, ok := m.subs[name]
	if !ok {
		return
	}
	e.cancel()
	delete(m.subs, name)
	metrics.SubscriptionsActive.Dec()
	m.logger.Debug().Str("topic", name).Msg("Subscription removed")
}

func (m *Manager) dropAllSubscriptions() {
	for name, e := range m.subs {
		e.cancel()
		delete(m.subs, name)
		metrics.SubscriptionsActive.Dec()
	}
}

// pump replays the retained snapshot, then moves live messages from the ring
// receiver onto the manager's fan-in channel. It runs as one goroutine per
// subscription and exits on cancellation or on lag overflow.
func (m *Manager) pump(ctx context.Context, e *entry, snapshot []types.Message, rc *broadcast.Receiver) {
	for _, msg := range snapshot {
		if !m.send(ctx, envelope{sub: e, msg: msg, retained: true}) {
			return
		}
	}
	for {
		msg, err := rc.Recv(ctx)
		if err != nil {
			var lagErr *broadcast.LagError
			if errors.As(err, &lagErr) {
				m.send(ctx, envelope{sub: e, lagged: true, skipped: lagErr.Skipped})
			}
			return
		}
		if !m.send(ctx, envelope{sub: e, msg: msg}) {
			return
		}
	}
}

func (m *Manager) send(ctx context.Context, env envelope) bool {
	select {
	case m.events <- env:
		return true
	case <-ctx.Done():
		return false
	}
}

// handleEnvelope applies the per-subscriber filter to one fan-in item and
// emits the resulting frame, if any. Returns false on write failure.
func (m *Manager) handleEnvelope(env envelope) bool {
	e := env.sub
	// A pump may race its own unsubscribe; ignore stale envelopes.
	if current, ok := m.subs[e.topic]; !ok || current != e {
		return true
	}

	if env.lagged {
		m.logger.Warn().
			Str("topic", e.topic).
			Uint64("skipped", env.skipped).
			Msg("Subscription lagged, dropping")
		m.unsubscribe(e.topic)
		metrics.SubscriptionsLagged.WithLabelValues(e.topic).Inc()
		return m.writeEvent(protocol.SubscriptionLagged{Name: e.topic})
	}

	msg := env.msg
	if !m.deliverable(e, msg, env.retained) {
		return true
	}

	ok := m.writeEvent(protocol.Message{
		Topic:       msg.Topic,
		Key:         msg.Key,
		Payload:     msg.Payload,
		PublishedAt: msg.PublishedAt,
		Sequence:    msg.Sequence,
	})
	if !ok {
		return false
	}

	e.lastSeq = msg.Sequence
	if msg.Keyed() {
		e.delivered[msg.Key] = msg.PublishedAt
	}
	m.awaitingCommit = true
	metrics.MessagesDelivered.WithLabelValues(e.topic).Inc()
	return true
}

// deliverable applies the per-subscriber delivery filter: duplicate
// suppression by sequence, compaction-window suppression by key, and the
// retention age re-check for snapshot messages.
func (m *Manager) deliverable(e *entry, msg types.Message, retained bool) bool {
	if msg.Sequence <= e.lastSeq {
		return false
	}
	if e.cfg.Compacted() && msg.Keyed() {
		if at, ok := e.delivered[msg.Key]; ok && msg.PublishedAt.Sub(at) <= e.cfg.CompactionWindow {
			return false
		}
	}
	if retained && e.cfg.Retained() && msg.Age(m.now()) > e.cfg.RetentionTTL {
		return false
	}
	return true
}

// writeEvent frames ev onto the socket and flushes. Returns false when the
// transport failed; the caller tears the connection down.
func (m *Manager) writeEvent(ev protocol.Event) bool {
	if err := protocol.WriteEvent(m.bw, ev); err != nil {
		m.logger.Debug().Err(err).Msg("Write failed")
		return false
	}
	if err := m.bw.Flush(); err != nil {
		m.logger.Debug().Err(err).Msg("Flush failed")
		return false
	}
	return true
}

func typeName(cmd protocol.Command) string {
	switch cmd.(type) {
	case protocol.CreateTopic:
		return "create_topic"
	case protocol.Subscribe:
		return "subscribe"
	case protocol.Unsubscribe:
		return "unsubscribe"
	case protocol.Publish:
		return "publish"
	case protocol.Commit:
		return "commit"
	case protocol.Close:
		return "close"
	default:
		return "unknown"
	}
}
