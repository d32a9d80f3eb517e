package proxy

import "fmt"

// UpstreamError indicates that the selected backend instance could not be
// reached or answered with a server error. Surfaces as 502 once retries are
// exhausted.
type UpstreamError struct {
	InstanceID string
	URL        string
	StatusCode int
	Cause      error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// ClientDisconnectedError indicates the client went away mid-exchange.
// It is not a backend fault and must never penalize instance health.
type ClientDisconnectedError struct {
	Cause error
}

func (e *ClientDisconnectedError) Error() string {
	return fmt.Sprintf("client disconnected: %v", e.Cause)
}

func (e *ClientDisconnectedError) Unwrap() error {
	return e.Cause
}
