// Package config defines the gateway's configuration model and loading
// pipeline: YAML file, defaults, NEXUS_* environment overrides, validation.
//
// The loading sequence is always file -> defaults -> env -> validate, so a
// config that loads successfully is also a config that passed validation.
// An optional file watcher reloads the config on change and hands the new
// snapshot to a callback; callers decide which parts are safe to apply live.
package config
