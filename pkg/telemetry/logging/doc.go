// Package logging builds the process-wide slog logger from configuration.
// JSON output is the default so log aggregators get structured records
// without a parsing step; text output exists for local development.
package logging
