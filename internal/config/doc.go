// Package config provides 12-factor configuration for the relaybox engine.
//
// Configuration is loaded from environment variables with sensible defaults
// matching spec.md §4.5's stated defaults (40,000 char result cap, 500 poll
// iterations of ~100ms each).
//
// Example Usage:
//
//	cfg := config.Default()
//	cfg = config.LoadOrDefault()
//
// Environment Variables:
//   - RELAYBOX_MAX_RESULT_CHARS
//   - RELAYBOX_MAX_POLL_ITERATIONS
//   - RELAYBOX_POLL_INTERVAL
//   - RELAYBOX_SLEEP_GRANULARITY
package config
