// Package handlers contains the HTTP handlers the gateway serves: the
// business proxy surface, the models aggregation endpoint, the admin
// registration surface, and liveness/readiness probes.
//
// Handlers stay thin: they translate HTTP into registry and forwarder calls
// and map errors onto OpenAI-compatible JSON bodies.
package handlers
