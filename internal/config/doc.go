// Package config loads ocrwatch settings from defaults, an optional YAML
// file and OCRWATCH_-prefixed environment variables, in increasing order of
// precedence, and validates the result before any component sees it.
//
// Keys are dotted (poll.interval); the matching environment variable
// replaces dots with underscores (OCRWATCH_POLL_INTERVAL).
package config
