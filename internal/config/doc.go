// Package config handles configuration loading, parsing, and validation
// from environment variables (MEDIAGEN_ prefix) and an optional config.yaml.
// Missing provider identity or storage destination is reported here so the
// server refuses to start instead of failing tasks later.
package config
