// Package config loads and validates application settings from environment
// variables and an optional YAML file, exposing them as typed structs so the
// rest of the code never reads the environment directly.
package config
