// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Binaries load a .env file first, so variables defined there are visible too.
package config
