package registry

import "fmt"

// InvalidURLError indicates a registration URL that is not a well-formed
// absolute http(s) URL.
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid backend URL %q: %s", e.URL, e.Reason)
}

// UnknownKindError indicates a kind string outside the closed set.
type UnknownKindError struct {
	Value string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown backend kind %q", e.Value)
}

// NotFoundError indicates that an unregister or report targeted an instance
// that is not in the registry.
type NotFoundError struct {
	ID      string
	Kind    Kind
	BaseURL string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("instance %q not found", e.ID)
	}
	return fmt.Sprintf("no %s instance registered for %q", e.Kind, e.BaseURL)
}

// NoHealthyBackendError indicates that a kind has no healthy instance to
// serve a request. This includes the case where the kind has no instances
// at all.
type NoHealthyBackendError struct {
	Kind       Kind
	Registered int
}

func (e *NoHealthyBackendError) Error() string {
	if e.Registered == 0 {
		return fmt.Sprintf("no %s backend registered", e.Kind)
	}
	return fmt.Sprintf("no healthy %s backend (%d registered, all unhealthy)", e.Kind, e.Registered)
}
