// Package health runs the background probe loop that keeps the registry's
// view of backend liveness current, independent of request traffic.
//
// Each tick snapshots the registry membership and probes every instance in
// parallel with a short timeout. Ticks never overlap: if a tick is still
// draining when the next one fires, the new tick is skipped. Probe results
// flow back through the registry's health bookkeeping, and instances that
// stay dead past a configured threshold can optionally be evicted.
package health
