// Package types defines the shared data model for Zaichik: messages and
// per-topic configuration. It has no dependencies on other Zaichik packages
// so that every layer (protocol, topic, subscription, client) can share it.
package types
