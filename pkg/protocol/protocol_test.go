package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{
			name: "create topic",
			cmd: CreateTopic{
				Name:             "orders",
				RetentionTTL:     60 * time.Second,
				CompactionWindow: 5 * time.Second,
			},
		},
		{
			name: "create topic without retention",
			cmd:  CreateTopic{Name: "fire-and-forget"},
		},
		{
			name: "subscribe",
			cmd:  Subscribe{Name: "orders"},
		},
		{
			name: "unsubscribe",
			cmd:  Unsubscribe{Name: "orders"},
		},
		{
			name: "publish keyed",
			cmd:  Publish{Name: "prices", Key: "BTC", Payload: []byte("64250")},
		},
		{
			name: "publish without key",
			cmd:  Publish{Name: "events", Payload: []byte("deploy finished")},
		},
		{
			name: "publish empty payload",
			cmd:  Publish{Name: "events", Payload: []byte{}},
		},
		{
			name: "commit",
			cmd:  Commit{},
		},
		{
			name: "close",
			cmd:  Close{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteCommand(&buf, tt.cmd))

			got, err := ReadCommand(&buf)
			require.NoError(t, err)

			// Payload nil/empty normalizes to empty on decode.
			if p, ok := tt.cmd.(Publish); ok {
				gp := got.(Publish)
				assert.Equal(t, p.Name, gp.Name)
				assert.Equal(t, p.Key, gp.Key)
				assert.Equal(t, string(p.Payload), string(gp.Payload))
			} else {
				assert.Equal(t, tt.cmd, got)
			}
			assert.Zero(t, buf.Len(), "decoder must consume the whole frame")
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	publishedAt := time.UnixMilli(time.Now().UnixMilli())

	tests := []struct {
		name string
		ev   Event
	}{
		{name: "ack", ev: Ack{}},
		{name: "topic already exists", ev: TopicAlreadyExists{Name: "orders"}},
		{name: "unknown topic", ev: UnknownTopic{Name: "ghost"}},
		{
			name: "message",
			ev: Message{
				Topic:       "prices",
				Key:         "BTC",
				Payload:     []byte("64250"),
				PublishedAt: publishedAt,
				Sequence:    42,
			},
		},
		{
			name: "message without key",
			ev: Message{
				Topic:       "events",
				Payload:     []byte("x"),
				PublishedAt: publishedAt,
				Sequence:    1,
			},
		},
		{name: "subscription lagged", ev: SubscriptionLagged{Name: "prices"}},
		{name: "protocol error", ev: ProtocolError{Code: CodeUnknownTag, Text: "unknown frame tag"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteEvent(&buf, tt.ev))

			got, err := ReadEvent(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.ev, got)
		})
	}
}

func TestReadCommandCleanEOF(t *testing.T) {
	_, err := ReadCommand(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadCommandUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	writeRawFrame(&buf, []byte{0x7f})

	_, err := ReadCommand(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTag)
	assert.Equal(t, CodeUnknownTag, ErrorCode(err))
}

func TestReadCommandTruncatedBody(t *testing.T) {
	// Subscribe tag followed by a string length with no string bytes.
	var buf bytes.Buffer
	writeRawFrame(&buf, []byte{TagSubscribe, 0x00, 0x05})

	_, err := ReadCommand(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Equal(t, CodeMalformedFrame, ErrorCode(err))
}

func TestReadCommandTrailingBytes(t *testing.T) {
	var buf bytes.Buffer
	writeRawFrame(&buf, []byte{TagCommit, 0xff})

	_, err := ReadCommand(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestReadCommandEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	writeRawFrame(&buf, nil)

	_, err := ReadCommand(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestReadCommandOversizedFrame(t *testing.T) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxFrameSize+1)

	_, err := ReadCommand(bytes.NewReader(prefix[:]))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, CodeFrameTooLarge, ErrorCode(err))
}

func TestReadCommandShortPrefix(t *testing.T) {
	_, err := ReadCommand(bytes.NewReader([]byte{0x00, 0x00}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func writeRawFrame(buf *bytes.Buffer, body []byte) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	buf.Write(prefix[:])
	buf.Write(body)
}
