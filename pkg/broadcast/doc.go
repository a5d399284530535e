/*
Package broadcast provides the bounded broadcast ring behind every topic's
live event stream.

The ring is a fixed-size slot array plus a monotonically increasing head
counter. Each receiver keeps its own cursor into that counter space, so the
publisher never blocks and never tracks receivers: publishing is an O(1)
overwrite of the oldest slot plus a wakeup. A receiver reading slower than
the publisher writes will eventually find its cursor below the oldest
retained slot; Recv then reports a *LagError with the number of skipped
messages and resynchronises, letting the caller decide whether to continue
or tear the subscription down.

This is the backpressure boundary of the broker: the ring's capacity bounds
the memory a slow consumer can pin, and lag is the only signal a consumer
gets that it fell behind.
*/
package broadcast
