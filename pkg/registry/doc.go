// Package registry implements the concurrent store of downstream backend
// instances at the heart of the gateway.
//
// The registry groups instances by backend kind, preserves registration order
// for deterministic selection, and is the single owner of all instance state.
// The health monitor and the forwarder never hold instance records across
// blocking operations; they interact with the registry through its operations:
//
//   - Register / Unregister mutate membership
//   - SelectHealthy picks a target for one request (least in-flight,
//     round-robin tie-break)
//   - ReportOutcome and ReportProbe feed health state back in
//   - Release returns an in-flight slot taken by SelectHealthy
//
// All operations are safe for concurrent use.
package registry
