// Package config loads the YAML configuration of the burrow daemon.
package config
