package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AdminClient talks to a running gateway's admin endpoints.
type AdminClient struct {
	baseURL string
	client  *http.Client
}

// NewAdminClient creates a client for the gateway at baseURL
// (e.g. "http://127.0.0.1:8080").
func NewAdminClient(baseURL string, timeout time.Duration) *AdminClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// RegisteredServer is the gateway's answer to a successful registration.
type RegisteredServer struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// ListServers fetches the full registry snapshot, kind → base URLs.
func (c *AdminClient) ListServers(ctx context.Context) (map[string][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/servers", nil)
	if err != nil {
		return nil, err
	}

	var servers map[string][]string
	if err := c.do(req, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// RegisterServer registers a backend instance with the gateway.
func (c *AdminClient) RegisterServer(ctx context.Context, kind, url string) (RegisteredServer, error) {
	body, _ := json.Marshal(map[string]string{"kind": kind, "url": url})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/admin/servers/register", bytes.NewReader(body))
	if err != nil {
		return RegisteredServer{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var created RegisteredServer
	if err := c.do(req, &created); err != nil {
		return RegisteredServer{}, err
	}
	return created, nil
}

// UnregisterServer removes a backend instance, addressed either by id or by
// a (url, kind) pair.
func (c *AdminClient) UnregisterServer(ctx context.Context, id, url, kind string) error {
	payload := map[string]string{}
	if id != "" {
		payload["id"] = id
	} else {
		payload["url"] = url
		payload["kind"] = kind
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/admin/servers/unregister", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

// do executes the request and decodes a 2xx body into out (when non-nil).
// Non-2xx answers become an *APIError built from the gateway's error envelope.
func (c *AdminClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Code = envelope.Error.Code
	}
	return apiErr
}
