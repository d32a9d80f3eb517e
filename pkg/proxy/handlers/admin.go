package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"aurora-hq/nexus/pkg/proxy"
	"aurora-hq/nexus/pkg/registry"
)

// AdminConfig tunes the admin surface.
type AdminConfig struct {
	// VerifyOnRegister, when set, probes a backend's health path before
	// accepting its registration; a refused probe rejects the registration
	// with 400. Off by default so registration stays optimistic.
	VerifyOnRegister bool

	// VerifyPath is the path probed during registration verification.
	// Default: /v1/models
	VerifyPath string

	// VerifyTimeout bounds the verification probe.
	// Default: 5s
	VerifyTimeout time.Duration
}

// Admin translates the operator endpoints into registry calls. Input is
// validated here first, but the registry revalidates: it never trusts its
// callers.
type Admin struct {
	reg    *registry.Registry
	cfg    AdminConfig
	client *http.Client
}

// NewAdmin creates the admin surface handler set.
func NewAdmin(reg *registry.Registry, cfg AdminConfig) *Admin {
	if cfg.VerifyPath == "" {
		cfg.VerifyPath = "/v1/models"
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 5 * time.Second
	}
	return &Admin{
		reg:    reg,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.VerifyTimeout},
	}
}

// registerRequest is the body of POST /admin/servers/register.
type registerRequest struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// unregisterRequest is the body of POST /admin/servers/unregister.
// Either an id, or a (url, kind) pair.
type unregisterRequest struct {
	ID   string `json:"id,omitempty"`
	URL  string `json:"url,omitempty"`
	Kind string `json:"kind,omitempty"`
}

// Register handles POST /admin/servers/register.
func (a *Admin) Register(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		proxy.WriteError(w, proxy.NewErrorResponse(
			"malformed registration body", proxy.ErrorTypeInvalidRequest, "",
		))
		return
	}

	kind, err := registry.ParseKind(req.Kind)
	if err != nil {
		proxy.WriteError(w, proxy.NewErrorResponse(
			err.Error(), proxy.ErrorTypeInvalidRequest, proxy.CodeUnknownKind,
		))
		return
	}

	baseURL, err := registry.NormalizeBaseURL(req.URL)
	if err != nil {
		proxy.WriteError(w, proxy.NewErrorResponse(
			err.Error(), proxy.ErrorTypeInvalidRequest, proxy.CodeInvalidURL,
		))
		return
	}

	if a.cfg.VerifyOnRegister {
		if err := a.verify(r.Context(), baseURL); err != nil {
			slog.Warn("registration verification failed",
				"kind", kind,
				"url", baseURL,
				"error", err,
			)
			proxy.WriteError(w, proxy.NewErrorResponse(
				fmt.Sprintf("backend verification failed: %v", err),
				proxy.ErrorTypeInvalidRequest, proxy.CodeVerificationFailed,
			))
			return
		}
	}

	inst, err := a.reg.Register(kind, baseURL)
	if err != nil {
		proxy.WriteError(w, proxy.NewErrorResponse(
			err.Error(), proxy.ErrorTypeInvalidRequest, "",
		))
		return
	}

	proxy.WriteJSON(w, http.StatusCreated, map[string]string{
		"id":   inst.ID,
		"kind": string(inst.Kind),
		"url":  inst.BaseURL,
	})
}

// Unregister handles POST /admin/servers/unregister.
func (a *Admin) Unregister(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req unregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		proxy.WriteError(w, proxy.NewErrorResponse(
			"malformed unregistration body", proxy.ErrorTypeInvalidRequest, "",
		))
		return
	}

	var err error
	switch {
	case req.ID != "":
		err = a.reg.UnregisterByID(req.ID)
	case req.URL != "" && req.Kind != "":
		var kind registry.Kind
		kind, err = registry.ParseKind(req.Kind)
		if err == nil {
			err = a.reg.Unregister(kind, req.URL)
		}
	default:
		proxy.WriteError(w, proxy.NewErrorResponse(
			"unregistration needs an id or a url and kind",
			proxy.ErrorTypeInvalidRequest, "",
		))
		return
	}

	if err != nil {
		var notFound *registry.NotFoundError
		if errors.As(err, &notFound) {
			proxy.WriteError(w, proxy.NewErrorResponse(
				err.Error(), proxy.ErrorTypeNotFound, proxy.CodeInstanceNotFound,
			))
			return
		}
		proxy.WriteError(w, proxy.NewErrorResponse(
			err.Error(), proxy.ErrorTypeInvalidRequest, "",
		))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /admin/servers. Every known kind appears, with an empty
// array when nothing is registered, and map keys marshal sorted, so repeated
// calls with no intervening mutation produce identical bytes.
func (a *Admin) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		proxy.WriteErrorStatus(w, http.StatusMethodNotAllowed, proxy.NewErrorResponse(
			"server listing only supports GET",
			proxy.ErrorTypeInvalidRequest, proxy.CodeMethodNotAllowed,
		))
		return
	}

	out := make(map[string][]string)
	for kind, instances := range a.reg.ListAll() {
		urls := make([]string, 0, len(instances))
		for _, inst := range instances {
			urls = append(urls, inst.BaseURL)
		}
		out[string(kind)] = urls
	}

	proxy.WriteJSON(w, http.StatusOK, out)
}

func (a *Admin) verify(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.VerifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+a.cfg.VerifyPath, nil)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		proxy.WriteErrorStatus(w, http.StatusMethodNotAllowed, proxy.NewErrorResponse(
			"endpoint only supports POST",
			proxy.ErrorTypeInvalidRequest, proxy.CodeMethodNotAllowed,
		))
		return false
	}
	return true
}
