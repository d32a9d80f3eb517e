package registry

import (
	"net/url"
	"strings"
	"time"
)

// Instance is a read-only snapshot of one registered backend.
// Snapshots are returned by List, ListAll, and SelectHealthy; mutating a
// snapshot has no effect on registry state.
type Instance struct {
	// ID is the opaque stable identifier assigned at registration,
	// e.g. "chat-server-6ba7b810-9dad-11d1-80b4-00c04fd430c8".
	ID string `json:"id"`

	// Kind is the backend category the instance serves.
	Kind Kind `json:"kind"`

	// BaseURL is the normalized endpoint (scheme://host[:port], no trailing
	// slash). Unique per (Kind, BaseURL).
	BaseURL string `json:"url"`

	// Healthy is the current belief that the instance can serve requests.
	Healthy bool `json:"healthy"`

	// ConsecutiveFailures counts failed probes/exchanges since the last
	// success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// InFlight is the number of requests currently forwarded to the instance.
	InFlight int `json:"in_flight"`

	// LastCheckedAt is when the instance was last probed or reported on.
	// Observability only.
	LastCheckedAt time.Time `json:"last_checked_at,omitempty"`

	// LastLatency is the duration of the last successful probe.
	// Observability only.
	LastLatency time.Duration `json:"last_latency,omitempty"`
}

// record is the mutable instance state owned by the registry.
// All fields are guarded by the registry's lock.
type record struct {
	id                  string
	kind                Kind
	baseURL             string
	healthy             bool
	consecutiveFailures int
	inFlight            int
	lastCheckedAt       time.Time
	lastLatency         time.Duration
}

func (rec *record) snapshot() Instance {
	return Instance{
		ID:                  rec.id,
		Kind:                rec.kind,
		BaseURL:             rec.baseURL,
		Healthy:             rec.healthy,
		ConsecutiveFailures: rec.consecutiveFailures,
		InFlight:            rec.inFlight,
		LastCheckedAt:       rec.lastCheckedAt,
		LastLatency:         rec.lastLatency,
	}
}

// NormalizeBaseURL validates and canonicalizes a backend endpoint.
// The result is scheme://host[:port][/path] with any trailing slash removed,
// so that "http://10.0.0.1:8080/" and "http://10.0.0.1:8080" register as the
// same instance.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &InvalidURLError{URL: raw, Reason: "empty"}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &InvalidURLError{URL: raw, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &InvalidURLError{URL: raw, Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return "", &InvalidURLError{URL: raw, Reason: "missing host"}
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", &InvalidURLError{URL: raw, Reason: "query and fragment not allowed"}
	}

	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}
