/*
Package topic implements the per-topic controller: the shared broadcast ring,
the time-based retention list, and the sliding-window compaction index.

# Publish path

Publish holds the topic write lock for the whole step so that, relative to
other publishes on the same topic, the following happens atomically:

 1. Retention entries older than RetentionTTL are evicted (they form a prefix
    of the list, which is ordered by publish time).
 2. If the topic compacts and the message is keyed, a previous message with
    the same key still inside the compaction window is superseded: removed
    from the retention list and the index, retroactively for late
    subscribers.
 3. The message receives the next sequence and the current monotonic time,
    then enters the retention list (if retention is on) and the compaction
    index (if compaction is on and the message is keyed).
 4. The message is broadcast on the ring.

# Subscribe path

Subscribe takes only the read lock: it copies the still-live suffix of the
retention list and attaches a fresh ring receiver in one critical section, so
a subscriber's snapshot and its live stream line up without gaps or overlap
beyond what the per-subscriber duplicate filter already handles.

Ages are measured with a single monotonic time source (injectable for tests);
wall-clock adjustments cannot resurrect or expire messages unexpectedly.
Invariants: retention never holds a message older than RetentionTTL past an
eviction pass; for any key at most one message inside the compaction window
is eligible for delivery; sequences are strictly increasing per topic.
*/
package topic
