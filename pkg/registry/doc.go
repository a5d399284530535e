// Package registry holds the process-wide mapping from topic name to topic
// controller. The map is read far more often than written, so lookups take a
// read lock and the exclusive lock guards only the insert path, with the
// usual re-check after the lock upgrade. A topic name, once registered, is
// never removed, and its configuration never changes: a Create for an
// existing name fails with ErrTopicExists regardless of the offered config.
package registry
