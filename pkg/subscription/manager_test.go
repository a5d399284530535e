package subscription

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raventid/zaichik/pkg/protocol"
	"github.com/raventid/zaichik/pkg/registry"
)

// harness wires a manager to an in-process pipe, standing in for the
// server's accept loop.
type harness struct {
	t        *testing.T
	commands chan protocol.Command
	mgr      *Manager
	client   net.Conn
	br       *bufio.Reader
	cancel   context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	commands := make(chan protocol.Command, 8)
	reg := registry.New(16)
	mgr := New("test-conn", serverConn, commands, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		_ = serverConn.Close()
		_ = clientConn.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("manager did not stop")
		}
	})

	return &harness{
		t:        t,
		commands: commands,
		mgr:      mgr,
		client:   clientConn,
		br:       bufio.NewReader(clientConn),
		cancel:   cancel,
	}
}

func (h *harness) sendCommand(cmd protocol.Command) {
	h.t.Helper()
	select {
	case h.commands <- cmd:
	case <-time.After(time.Second):
		h.t.Fatal("command inbox full")
	}
}

func (h *harness) readEvent() protocol.Event {
	h.t.Helper()
	require.NoError(h.t, h.client.SetReadDeadline(time.Now().Add(time.Second)))
	ev, err := protocol.ReadEvent(h.br)
	require.NoError(h.t, err)
	return ev
}

func (h *harness) expectSilence(d time.Duration) {
	h.t.Helper()
	require.NoError(h.t, h.client.SetReadDeadline(time.Now().Add(d)))
	_, err := protocol.ReadEvent(h.br)
	require.Error(h.t, err, "expected no frame")
}

func TestSubscribePublishDeliver(t *testing.T) {
	h := newHarness(t)

	h.sendCommand(protocol.Subscribe{Name: "t"})
	assert.IsType(t, protocol.Ack{}, h.readEvent())

	h.sendCommand(protocol.Publish{Name: "t", Payload: []byte("m1")})
	assert.IsType(t, protocol.Ack{}, h.readEvent())

	// Self-publish: the publishing connection receives its own message.
	msg, ok := h.readEvent().(protocol.Message)
	require.True(t, ok)
	assert.Equal(t, "t", msg.Topic)
	assert.Equal(t, "m1", string(msg.Payload))
	assert.Equal(t, uint64(1), msg.Sequence)
}

func TestCommitGatesDelivery(t *testing.T) {
	h := newHarness(t)

	h.sendCommand(protocol.Subscribe{Name: "t"})
	assert.IsType(t, protocol.Ack{}, h.readEvent())

	h.sendCommand(protocol.Publish{Name: "t", Payload: []byte("m1")})
	assert.IsType(t, protocol.Ack{}, h.readEvent())

	// First message flows without a commit.
	msg, ok := h.readEvent().(protocol.Message)
	require.True(t, ok)
	assert.Equal(t, "m1", string(msg.Payload))

	// The second stays pending until the commit.
	h.sendCommand(protocol.Publish{Name: "t", Payload: []byte("m2")})
	assert.IsType(t, protocol.Ack{}, h.readEvent())
	h.expectSilence(100 * time.Millisecond)

	h.sendCommand(protocol.Commit{})
	assert.IsType(t, protocol.Ack{}, h.readEvent())

	msg, ok = h.readEvent().(protocol.Message)
	require.True(t, ok)
	assert.Equal(t, "m2", string(msg.Payload))
}

func TestControlPlaneNotGated(t *testing.T) {
	h := newHarness(t)

	h.sendCommand(protocol.Subscribe{Name: "t"})
	assert.IsType(t, protocol.Ack{}, h.readEvent())
	h.sendCommand(protocol.Publish{Name: "t", Payload: []byte("m1")})
	assert.IsType(t, protocol.Ack{}, h.readEvent())
	assert.IsType(t, protocol.Message{}, h.readEvent())

	// Awaiting commit, yet commands still get responses.
	h.sendCommand(protocol.Subscribe{Name: "other"})
	assert.IsType(t, protocol.Ack{}, h.readEvent())
	h.sendCommand(protocol.Unsubscribe{Name: "other"})
	assert.IsType(t, protocol.Ack{}, h.readEvent())
}

func TestCreateTopicConflict(t *testing.T) {
	h := newHarness(t)

	h.sendCommand(protocol.CreateTopic{Name: "t", RetentionTTL: 5 * time.Second})
	assert.IsType(t, protocol.Ack{}, h.readEvent())

	h.sendCommand(protocol.CreateTopic{Name: "t", RetentionTTL: 10 * time.Second})
	conflict, ok := h.readEvent().(protocol.TopicAlreadyExists)
	require.True(t, ok)
	assert.Equal(t, "t", conflict.Name)
}

func TestUnsubscribeUnknownTopicIsNoOp(t *testing.T) {
	h := newHarness(t)

	h.sendCommand(protocol.Unsubscribe{Name: "never-subscribed"})
	assert.IsType(t, protocol.Ack{}, h.readEvent())
}

func TestDuplicateSubscribeIsIdempotent(t *testing.T) {
	h := newHarness(t)

	h.sendCommand(protocol.Subscribe{Name: "t"})
	assert.IsType(t, protocol.Ack{}, h.readEvent())
	h.sendCommand(protocol.Subscribe{Name: "t"})
	assert.IsType(t, protocol.Ack{}, h.readEvent())

	h.sendCommand(protocol.Publish{Name: "t", Payload: []byte("once")})
	assert.IsType(t, protocol.Ack{}, h.readEvent())

	// One subscription, one delivery.
	assert.IsType(t, protocol.Message{}, h.readEvent())
	h.sendCommand(protocol.Commit{})
	assert.IsType(t, protocol.Ack{}, h.readEvent())
	h.expectSilence(100 * time.Millisecond)
}

func TestFailSendsProtocolError(t *testing.T) {
	h := newHarness(t)

	h.mgr.Fail(protocol.ProtocolError{Code: protocol.CodeUnknownTag, Text: "unknown frame tag"})

	perr, ok := h.readEvent().(protocol.ProtocolError)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeUnknownTag, perr.Code)
}

func TestCloseAcksAndShutsDown(t *testing.T) {
	h := newHarness(t)

	h.sendCommand(protocol.Subscribe{Name: "t"})
	assert.IsType(t, protocol.Ack{}, h.readEvent())

	h.sendCommand(protocol.Close{})
	assert.IsType(t, protocol.Ack{}, h.readEvent())
}
