// Package config loads, normalizes, and validates videogen configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIDEOGEN_COMFYUI_DIR. The Config type centralizes every knob the CLI and
// generation pipeline need, from server supervision settings to the failure
// trigger signatures used for recovery classification.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical preset names, and clear validation errors.
package config
