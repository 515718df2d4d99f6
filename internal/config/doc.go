// Package config loads, validates, and normalizes scribe configuration.
//
// Configuration lives in a TOML file (default ~/.config/scribe/config.toml).
// Defaults are applied first, then file values, then environment fallbacks
// for provider credentials. All path fields are expanded and absolute after
// Load returns.
package config
