package routing

import "fmt"

// RouteNotFoundError indicates a request path outside the gateway's business
// surface. Surfaces to the client as 404.
type RouteNotFoundError struct {
	Method string
	Path   string
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("no route for %s %s", e.Method, e.Path)
}

// MethodNotAllowedError indicates a known path requested with the wrong HTTP
// method. Surfaces to the client as 405.
type MethodNotAllowedError struct {
	Method  string
	Path    string
	Allowed string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("%s not allowed on %s (use %s)", e.Method, e.Path, e.Allowed)
}
