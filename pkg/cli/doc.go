// Package cli holds the operator-side pieces of the nexus command: a small
// HTTP client for a running gateway's admin surface and output formatting
// for command results. The gateway itself never imports this package.
package cli
