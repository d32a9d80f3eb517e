// Package proxy implements the forwarder: the component that relays one
// client HTTP exchange to a selected backend instance and relays the
// response back.
//
// Two body-handling paths exist. Non-streaming requests are buffered: the
// upstream response is read fully before anything is written to the client,
// which keeps a bounded retry against a different healthy instance safe.
// Streaming (SSE) responses are never buffered; chunks flow through a bounded
// channel from an upstream reader goroutine to the client writer, with eager
// flushing, backpressure from the channel, and cancellation propagated in
// both directions.
//
// After every exchange the forwarder reports the outcome to the registry so
// failing instances lose traffic quickly and recovering ones regain it. A
// client disconnect is not a backend fault and is never reported as one.
package proxy
