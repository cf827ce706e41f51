// Package config loads packer-server settings from an optional YAML file,
// a .env file and PACKER_-prefixed environment variables, in increasing order
// of precedence, and validates them before any component is built.
package config
