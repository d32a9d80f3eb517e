package cli

import "fmt"

// APIError is a non-2xx answer from the gateway's admin surface, carrying
// the OpenAI-style error envelope the gateway responds with.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}
