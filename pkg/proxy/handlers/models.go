package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"aurora-hq/nexus/pkg/proxy"
	"aurora-hq/nexus/pkg/registry"
)

// modelList is the OpenAI list-models response shape. Entries stay raw: the
// gateway merges, it does not interpret.
type modelList struct {
	Object string            `json:"object"`
	Data   []json.RawMessage `json:"data"`
}

// Models aggregates /v1/models across every backend kind: one healthy
// instance per kind is asked for its model list and the results are merged
// into a single OpenAI list object. Kinds with no instances, or whose
// instances all fail, are skipped rather than failing the whole response.
type Models struct {
	reg       *registry.Registry
	forwarder *proxy.Forwarder
}

// NewModels creates the models aggregation handler.
func NewModels(reg *registry.Registry, forwarder *proxy.Forwarder) *Models {
	return &Models{reg: reg, forwarder: forwarder}
}

// ServeHTTP implements http.Handler.
func (h *Models) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		proxy.WriteErrorStatus(w, http.StatusMethodNotAllowed, proxy.NewErrorResponse(
			"models listing only supports GET",
			proxy.ErrorTypeInvalidRequest, proxy.CodeMethodNotAllowed,
		))
		return
	}

	merged := modelList{Object: "list", Data: []json.RawMessage{}}

	stats := h.reg.Stats()
	for _, kind := range registry.AllKinds() {
		if stats[kind].Registered == 0 {
			continue
		}

		payload, err := h.forwarder.Fetch(r.Context(), kind, "/v1/models")
		if err != nil {
			slog.Warn("models aggregation skipped kind",
				"kind", kind,
				"error", err,
			)
			continue
		}

		var list modelList
		if err := json.Unmarshal(payload, &list); err != nil {
			slog.Warn("backend returned malformed model list",
				"kind", kind,
				"error", err,
			)
			continue
		}
		merged.Data = append(merged.Data, list.Data...)
	}

	proxy.WriteJSON(w, http.StatusOK, merged)
}
