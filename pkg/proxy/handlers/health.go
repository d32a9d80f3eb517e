package handlers

import (
	"net/http"

	"aurora-hq/nexus/pkg/proxy"
	"aurora-hq/nexus/pkg/registry"
)

// Health is the gateway's own liveness endpoint: it answers as long as the
// process serves HTTP, regardless of backend state.
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxy.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Ready reports whether the gateway can do useful work: it is ready once at
// least one healthy backend instance of any kind is registered.
func Ready(reg *registry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		healthy := 0
		registered := 0
		for _, stats := range reg.Stats() {
			healthy += stats.Healthy
			registered += stats.Registered
		}

		if healthy == 0 {
			proxy.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":     "not_ready",
				"registered": registered,
				"healthy":    healthy,
			})
			return
		}

		proxy.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ready",
			"registered": registered,
			"healthy":    healthy,
		})
	})
}
