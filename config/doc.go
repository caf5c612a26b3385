// Package config loads the application configuration from YAML, fills in
// defaults from struct tags and validates it, then hands the database and
// SQL log settings to the database layer.
package config
