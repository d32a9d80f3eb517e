package routing

import (
	"bytes"
	"encoding/json"
	"net/http"

	"aurora-hq/nexus/pkg/registry"
)

// Route is the result of resolving one inbound request.
type Route struct {
	// Kind is the backend kind that serves the request.
	Kind registry.Kind

	// Aggregate marks the models-listing endpoint, which fans out to every
	// kind instead of forwarding to a single instance.
	Aggregate bool

	// StreamCapable marks chat-shaped routes where the request body's
	// "stream" flag decides between the buffered and SSE forwarding paths.
	StreamCapable bool
}

// Router resolves request paths to backend kinds using a static table built
// once at startup.
type Router struct {
	routes map[string]tableEntry
}

type tableEntry struct {
	method string
	route  Route
}

// BusinessPaths returns every path the router serves, for mux registration.
func (r *Router) BusinessPaths() []string {
	paths := make([]string, 0, len(r.routes))
	for path := range r.routes {
		paths = append(paths, path)
	}
	return paths
}

// New builds the route table. With ragMode enabled, chat-shaped endpoints
// target the rag-chat kind and embeddings target rag-embedding; everything
// else is unaffected.
func New(ragMode bool) *Router {
	chat := registry.KindChat
	embeddings := registry.KindChat
	if ragMode {
		chat = registry.KindRAGChat
		embeddings = registry.KindRAGEmbedding
	}

	routes := map[string]tableEntry{
		"/v1/chat/completions": {http.MethodPost, Route{Kind: chat, StreamCapable: true}},
		"/v1/completions":      {http.MethodPost, Route{Kind: chat, StreamCapable: true}},
		"/v1/embeddings":       {http.MethodPost, Route{Kind: embeddings}},
		"/v1/files":            {http.MethodPost, Route{Kind: chat}},
		"/v1/chunks":           {http.MethodPost, Route{Kind: chat}},

		"/v1/audio/transcriptions": {http.MethodPost, Route{Kind: registry.KindWhisper}},
		"/v1/audio/translations":   {http.MethodPost, Route{Kind: registry.KindWhisper}},
		"/v1/audio/speech":         {http.MethodPost, Route{Kind: registry.KindTTS}},

		"/v1/images/generations": {http.MethodPost, Route{Kind: registry.KindImage}},
		"/v1/images/edits":       {http.MethodPost, Route{Kind: registry.KindImage}},

		"/v1/models": {http.MethodGet, Route{Aggregate: true}},
	}

	return &Router{routes: routes}
}

// Resolve maps (method, path) to a Route.
// Unknown paths return a RouteNotFoundError; known paths with the wrong
// method return a MethodNotAllowedError.
func (r *Router) Resolve(method, path string) (Route, error) {
	entry, ok := r.routes[path]
	if !ok {
		return Route{}, &RouteNotFoundError{Method: method, Path: path}
	}
	if method != entry.method {
		return Route{}, &MethodNotAllowedError{Method: method, Path: path, Allowed: entry.method}
	}
	return entry.route, nil
}

// streamProbe is the shallow view of a chat body used to detect streaming.
// The gateway does not validate or understand the rest of the payload.
type streamProbe struct {
	Stream *bool `json:"stream"`
}

// StreamRequested reports whether a chat-shaped JSON body asks for a
// server-sent-event stream. Absent or malformed bodies count as non-streaming;
// payload validation is the backend's job, not the gateway's.
func StreamRequested(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}

	var probe streamProbe
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return false
	}
	return probe.Stream != nil && *probe.Stream
}
