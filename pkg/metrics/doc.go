/*
Package metrics provides Prometheus metrics and health endpoints for Zaichik.

Metrics are package-level collectors registered at init and updated directly
from the hot paths (accept loop, topic publish, subscription delivery), plus
a periodic Collector that re-samples per-topic gauges from the registry. The
Serve function exposes /metrics, /health and /ready on the configured
metrics address.

Exposed metrics:

	zaichik_connections_active            gauge
	zaichik_connections_total             counter
	zaichik_topics_total                  gauge
	zaichik_messages_published_total      counter, by topic
	zaichik_retained_messages             gauge, by topic
	zaichik_subscriptions_active          gauge
	zaichik_messages_delivered_total      counter, by topic
	zaichik_subscriptions_lagged_total    counter, by topic
	zaichik_frames_rejected_total         counter
	zaichik_command_duration_seconds      histogram, by command

Health reporting follows a component model: the server registers the
"listener" component when the TCP listener is up, and readiness requires it.
*/
package metrics
