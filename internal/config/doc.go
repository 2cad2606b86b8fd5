// Package config loads hookd configuration from a YAML file in the
// repository with HOOKD_* environment variable overrides.
package config
