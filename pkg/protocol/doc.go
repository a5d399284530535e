/*
Package protocol implements Zaichik's length-prefixed binary wire format.

Every frame on the TCP stream is a 4-byte big-endian body length followed by
the body. The body starts with a single tag byte identifying the frame kind,
followed by the fields of that kind:

	string   = u16 length | bytes
	key?     = u8 presence | string (when presence = 1)
	payload  = u32 length | bytes
	u16/u64  = big-endian fixed width
	duration = u64 milliseconds
	time     = u64 unix milliseconds

Client-to-broker frames (commands):

	0x01 CreateTopic  name, retention_ttl_ms, compaction_window_ms
	0x02 Subscribe    name
	0x03 Unsubscribe  name
	0x04 Publish      name, key?, payload
	0x05 Commit       (no fields)
	0x06 Close        (no fields)

Broker-to-client frames (events):

	0x81 Ack                 (no fields)
	0x82 TopicAlreadyExists  name
	0x83 UnknownTopic        name (reserved, never emitted)
	0x84 Message             topic, key?, payload, published_at_ms, sequence
	0x85 SubscriptionLagged  name
	0x86 ProtocolError       code, text

Every command elicits exactly one response frame; Message and
SubscriptionLagged are unsolicited. Decode failures return sentinel errors
(ErrUnknownTag, ErrMalformedFrame, ErrFrameTooLarge) that map onto
ProtocolError codes via ErrorCode, so the server can frame the failure before
dropping the connection.
*/
package protocol
