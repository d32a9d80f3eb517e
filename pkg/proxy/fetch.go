package proxy

import (
	"context"
	"io"
	"net/http"

	"aurora-hq/nexus/pkg/registry"
)

// Fetch performs a small idempotent GET against one healthy instance of the
// given kind and returns the response body. GETs are safe to retry, so a
// failure is retried once against a different healthy instance when one
// exists. Outcomes are reported to the registry like any other exchange.
//
// The models aggregation endpoint is the main caller.
func (f *Forwarder) Fetch(ctx context.Context, kind registry.Kind, path string) ([]byte, error) {
	attempted := make(map[string]bool)
	maxAttempts := 1 + f.cfg.MaxRetries

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		target, err := f.selectTarget(kind, attempted)
		if err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}
		attempted[target.ID] = true

		payload, err := f.fetchOnce(ctx, target, path)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Forwarder) fetchOnce(ctx context.Context, target registry.Instance, path string) ([]byte, error) {
	defer f.reg.Release(target.ID)

	url := upstreamURL(target.BaseURL, path, "")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.buffered.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			f.reg.ReportOutcome(target.ID, false)
		}
		return nil, &UpstreamError{InstanceID: target.ID, URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		f.reg.ReportOutcome(target.ID, false)
		return nil, &UpstreamError{InstanceID: target.ID, URL: url, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		f.reg.ReportOutcome(target.ID, true)
		return nil, &UpstreamError{InstanceID: target.ID, URL: url, StatusCode: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		f.reg.ReportOutcome(target.ID, false)
		return nil, &UpstreamError{InstanceID: target.ID, URL: url, Cause: err}
	}

	f.reg.ReportOutcome(target.ID, true)
	return payload, nil
}
