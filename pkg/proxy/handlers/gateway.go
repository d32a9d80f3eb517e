package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"aurora-hq/nexus/pkg/proxy"
	"aurora-hq/nexus/pkg/routing"
)

// Gateway serves the OpenAI-compatible business surface. It resolves each
// request to a backend kind, peeks the stream flag for chat-shaped bodies,
// and hands the exchange to the forwarder.
type Gateway struct {
	router    *routing.Router
	forwarder *proxy.Forwarder
}

// NewGateway creates the business proxy handler.
func NewGateway(router *routing.Router, forwarder *proxy.Forwarder) *Gateway {
	return &Gateway{router: router, forwarder: forwarder}
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, err := g.router.Resolve(r.Method, r.URL.Path)
	if err != nil {
		writeRouteError(w, err)
		return
	}

	// The body is buffered here so that a failed exchange can be retried
	// against a different instance with the same payload.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Debug("failed to read request body",
			"path", r.URL.Path,
			"error", err,
		)
		proxy.WriteError(w, proxy.NewErrorResponse(
			"failed to read request body",
			proxy.ErrorTypeInvalidRequest, "",
		))
		return
	}

	streaming := route.StreamCapable && routing.StreamRequested(body)
	g.forwarder.Forward(w, r, route.Kind, body, streaming)
}

// writeRouteError maps routing errors onto HTTP responses.
func writeRouteError(w http.ResponseWriter, err error) {
	var notAllowed *routing.MethodNotAllowedError
	if errors.As(err, &notAllowed) {
		w.Header().Set("Allow", notAllowed.Allowed)
		proxy.WriteErrorStatus(w, http.StatusMethodNotAllowed, proxy.NewErrorResponse(
			err.Error(), proxy.ErrorTypeInvalidRequest, proxy.CodeMethodNotAllowed,
		))
		return
	}

	proxy.WriteError(w, proxy.NewErrorResponse(
		err.Error(), proxy.ErrorTypeNotFound, proxy.CodeRouteNotFound,
	))
}
