// Package config loads broker configuration from an optional YAML file and
// the environment. PORT selects the listen port; ZAICHIK_* variables cover
// the rest. Flags layered on top by cmd/zaichik take final precedence.
package config
