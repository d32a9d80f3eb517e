// Package server assembles the gateway's HTTP surface: the OpenAI-compatible
// business endpoints, the admin registry endpoints, liveness and readiness
// probes, and the optional metrics scrape handler, all behind the shared
// middleware chain. It owns the http.Server lifecycle including graceful
// shutdown.
package server
