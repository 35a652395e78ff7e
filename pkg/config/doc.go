// Package config loads and validates the berthd YAML configuration.
//
// A config file carries the telemetry, events, store, and policy settings
// plus the statically configured servers. Loading applies defaults for
// everything left unset and validates the result with struct tags. The
// Watcher reloads the file on change; servers present in the reloaded file
// are reconciled into the registry, servers removed from the file are left
// alone and must be removed through the CLI.
package config
