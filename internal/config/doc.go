// Package config loads, validates, and defaults the TOML configuration
// shared by the conveyor CLI and daemon.
package config
