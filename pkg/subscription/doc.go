/*
Package subscription implements the per-connection manager: the cooperative
task that multiplexes the connection's command stream with a dynamic set of
topic subscriptions and owns the socket write side.

# Structure

One Manager runs per accepted connection. The connection's reader decodes
frames into the command inbox; every subscription runs one pump goroutine
that replays the topic's retained snapshot and then forwards live ring
messages into the manager's fan-in channel. The manager's select loop is the
only writer to the socket, so responses and deliveries never interleave
mid-frame.

# Commit flow control

After emitting a Message frame the manager stops polling the fan-in until
the client sends Commit; commands keep flowing, so the control plane is
never blocked by the data plane. Because the fan-in is unbuffered, a gated
connection exerts backpressure all the way into each topic's broadcast ring,
where a subscriber that falls more than the ring capacity behind surfaces as
lag: the manager emits SubscriptionLagged, drops that one subscription and
carries on. The connection survives; the client may resubscribe.

# Per-subscriber filtering

Delivery applies three checks per candidate message: duplicate suppression
(sequence at or below the last delivered one), compaction suppression (a
message with the same key already delivered within the compaction window),
and, for snapshot messages, a retention age re-check at the moment of
delivery. Two subscribers to the same topic with different attach times may
legitimately see different subsets.

Errors are confined to the connection: transport failures tear this
connection down at debug log level and never propagate to other connections
or the broker process.
*/
package subscription
