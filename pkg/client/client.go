package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/raventid/zaichik/pkg/protocol"
)

// ErrTopicExists is returned by CreateTopic when the broker already has a
// topic with that name; the existing configuration stays in effect.
var ErrTopicExists = errors.New("client: topic already exists")

// ErrClosed is returned by calls made after the connection ended.
var ErrClosed = errors.New("client: connection closed")

// eventBuffer bounds undrained deliveries on the client side. The broker's
// commit gating means at most one Message is in flight per commit, so this
// only needs room for lag notices alongside it.
const eventBuffer = 16

// Client is a Zaichik client over one TCP connection. Commands are
// synchronous (each awaits its single response frame); deliveries arrive on
// the Events channel and must be acknowledged with Commit before the broker
// sends the next one.
type Client struct {
	conn net.Conn
	bw   *bufio.Writer

	mu     sync.Mutex // serializes command/response exchanges
	resp   chan protocol.Event
	events chan protocol.Event

	closeOnce sync.Once
	closed    chan struct{}

	errMu   sync.Mutex
	readErr error
}

// Dial connects to a broker at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	c := &Client{
		conn:   conn,
		bw:     bufio.NewWriter(conn),
		resp:   make(chan protocol.Event, 1),
		events: make(chan protocol.Event, eventBuffer),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns the stream of unsolicited broker events: Message frames
// and SubscriptionLagged notices. The channel closes when the connection
// ends.
func (c *Client) Events() <-chan protocol.Event {
	return c.events
}

// CreateTopic registers a topic with explicit retention and compaction
// settings. Returns ErrTopicExists when the name is already taken.
func (c *Client) CreateTopic(name string, retentionTTL, compactionWindow time.Duration) error {
	ev, err := c.call(protocol.CreateTopic{
		Name:             name,
		RetentionTTL:     retentionTTL,
		CompactionWindow: compactionWindow,
	})
	if err != nil {
		return err
	}
	if _, ok := ev.(protocol.TopicAlreadyExists); ok {
		return ErrTopicExists
	}
	return expectAck(ev)
}

// Subscribe attaches this connection to a topic, creating it with default
// configuration if missing. Subscribing twice is idempotent.
func (c *Client) Subscribe(name string) error {
	ev, err := c.call(protocol.Subscribe{Name: name})
	if err != nil {
		return err
	}
	return expectAck(ev)
}

// Unsubscribe detaches from a topic. Unsubscribing from a topic never
// subscribed is a no-op.
func (c *Client) Unsubscribe(name string) error {
	ev, err := c.call(protocol.Unsubscribe{Name: name})
	if err != nil {
		return err
	}
	return expectAck(ev)
}

// Publish sends a message to a topic. An empty key means the message does
// not participate in compaction. The returned Ack guarantees the message
// has been sequenced and broadcast.
func (c *Client) Publish(name, key string, payload []byte) error {
	ev, err := c.call(protocol.Publish{Name: name, Key: key, Payload: payload})
	if err != nil {
		return err
	}
	return expectAck(ev)
}

// Commit acknowledges the most recently received Message, letting the
// broker deliver the next one.
func (c *Client) Commit() error {
	ev, err := c.call(protocol.Commit{})
	if err != nil {
		return err
	}
	return expectAck(ev)
}

// Close performs a graceful shutdown: it tells the broker to drop the
// connection's subscriptions, waits for the final Ack, and closes the
// socket.
func (c *Client) Close() error {
	ev, err := c.call(protocol.Close{})
	// Closing the socket ends the read loop, which closes Events.
	_ = c.conn.Close()
	if err != nil {
		return nil // connection already gone; nothing to drain
	}
	return expectAck(ev)
}

func (c *Client) call(cmd protocol.Command) (protocol.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return nil, c.closeErr()
	default:
	}

	if err := protocol.WriteCommand(c.bw, cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}
	if err := c.bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	select {
	case ev := <-c.resp:
		if perr, ok := ev.(protocol.ProtocolError); ok {
			return nil, fmt.Errorf("client: protocol error %d: %s", perr.Code, perr.Text)
		}
		return ev, nil
	case <-c.closed:
		return nil, c.closeErr()
	}
}

func (c *Client) readLoop() {
	br := bufio.NewReader(c.conn)
	for {
		ev, err := protocol.ReadEvent(br)
		if err != nil {
			c.shutdown(err)
			return
		}
		switch ev.(type) {
		case protocol.Message, protocol.SubscriptionLagged:
			select {
			case c.events <- ev:
			case <-c.closed:
				return
			}
		default:
			// Command responses, including ProtocolError.
			select {
			case c.resp <- ev:
			case <-c.closed:
				return
			}
		}
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.readErr = err
		c.errMu.Unlock()
		close(c.closed)
		close(c.events)
	})
}

func (c *Client) closeErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}

func expectAck(ev protocol.Event) error {
	if _, ok := ev.(protocol.Ack); ok {
		return nil
	}
	return fmt.Errorf("client: unexpected response %T", ev)
}
