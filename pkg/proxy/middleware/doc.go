// Package middleware provides the HTTP middleware chain shared by every
// gateway endpoint: panic recovery, request-id correlation, structured
// request logging, and CORS.
//
// The chain deliberately excludes a generic write-timeout wrapper: SSE
// responses are long-lived by design, and upstream waits are bounded inside
// the forwarder instead.
package middleware
