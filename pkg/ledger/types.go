package ledger

import (
	"context"
	"fmt"
	"time"
)

// Record is one completed upstream exchange.
type Record struct {
	// ID is a UUID assigned when the record is created.
	ID string `json:"id"`

	// RequestID correlates the record with access logs and traces.
	RequestID string `json:"request_id"`

	// Kind is the backend category that served the exchange.
	Kind string `json:"kind"`

	// InstanceID and InstanceURL identify the backend instance.
	InstanceID  string `json:"instance_id"`
	InstanceURL string `json:"instance_url"`

	// Method and Path describe the client request.
	Method string `json:"method"`
	Path   string `json:"path"`

	// Status is the HTTP status relayed to the client.
	Status int `json:"status"`

	// Streamed marks SSE exchanges.
	Streamed bool `json:"streamed"`

	// BytesOut is the response payload size relayed to the client.
	BytesOut int64 `json:"bytes_out"`

	// Duration is the upstream exchange latency.
	Duration time.Duration `json:"duration"`

	// Failure is the failure class for unsuccessful exchanges, empty on
	// success.
	Failure string `json:"failure,omitempty"`

	// RecordedAt is when the exchange completed.
	RecordedAt time.Time `json:"recorded_at"`
}

// Query filters List results. Zero fields match everything.
type Query struct {
	// Kind filters by backend kind.
	Kind string

	// Since excludes records older than this.
	Since time.Time

	// Limit caps the result count; zero means no cap.
	Limit int
}

// Storage persists ledger records.
type Storage interface {
	// Store persists one record.
	Store(ctx context.Context, rec *Record) error

	// List returns records matching q, newest first.
	List(ctx context.Context, q Query) ([]*Record, error)

	// Prune deletes records recorded before cutoff and reports how many
	// were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases storage resources.
	Close() error
}

// StorageError wraps a backend failure with the operation that hit it.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
