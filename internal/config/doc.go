// Package config loads, normalizes, and validates homecam configuration.
//
// Settings come from built-in defaults, an optional TOML file, and HOMECAM_*
// environment variables, applied in that order. Durations are stored as whole
// seconds in the file and exposed as time.Duration through accessor methods.
package config
