package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aurora-hq/nexus/pkg/registry"
)

// Default forwarder tuning.
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxRetries     = 1
	DefaultStreamBuffer   = 16

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
)

// Config contains forwarder tuning knobs.
type Config struct {
	// RequestTimeout bounds one buffered upstream exchange, and the
	// response-header wait of a streamed one. A timeout counts as an
	// upstream failure for health reporting.
	// Default: 60s
	RequestTimeout time.Duration

	// MaxRetries is how many times a failed exchange may be retried against
	// a different healthy instance of the same kind. Retries happen only
	// before any response byte has reached the client.
	// Default: 1
	MaxRetries int

	// StreamBuffer is the capacity of the chunk channel between the upstream
	// reader and the client writer. A full channel blocks the upstream read,
	// which is the backpressure that protects slow clients.
	// Default: 16
	StreamBuffer int
}

// Exchange describes one completed (or failed) forwarded exchange.
// It feeds metrics and the request ledger.
type Exchange struct {
	RequestID   string
	Kind        registry.Kind
	InstanceID  string
	InstanceURL string
	Method      string
	Path        string
	Status      int
	Streamed    bool
	BytesOut    int64
	Duration    time.Duration
	FailureKind string
}

// Forwarder relays client exchanges to registry-selected backend instances.
type Forwarder struct {
	reg *registry.Registry
	cfg Config

	// buffered bounds the whole exchange; stream only bounds the wait for
	// response headers so long-lived SSE streams are not cut off.
	buffered *http.Client
	stream   *http.Client

	tracer trace.Tracer

	// OnExchange, when set, is invoked after every upstream exchange with
	// its outcome. Must be safe for concurrent use.
	OnExchange func(Exchange)
}

// NewForwarder creates a forwarder backed by the given registry.
func NewForwarder(reg *registry.Registry, cfg Config) *Forwarder {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = DefaultStreamBuffer
	}

	transport := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}
	streamTransport := transport.Clone()
	streamTransport.ResponseHeaderTimeout = cfg.RequestTimeout

	return &Forwarder{
		reg:      reg,
		cfg:      cfg,
		buffered: &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		stream:   &http.Client{Transport: streamTransport},
		tracer:   otel.Tracer("nexus/forwarder"),
	}
}

// Forward relays one business request to a healthy instance of the given
// kind and writes the response (or an OpenAI-compatible error) to w.
//
// The request body has already been read by the handler so that a retry can
// resend it. Failed exchanges are retried against a different healthy
// instance while no response byte has been written; once streaming has begun
// a failure is terminal and the partial stream is closed as-is.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, kind registry.Kind, body []byte, streaming bool) {
	requestID := r.Header.Get("X-Request-ID")

	attempted := make(map[string]bool)
	maxAttempts := 1 + f.cfg.MaxRetries

	for attempt := 0; attempt < maxAttempts; attempt++ {
		target, err := f.selectTarget(kind, attempted)
		if err != nil {
			var noHealthy *registry.NoHealthyBackendError
			if errors.As(err, &noHealthy) && len(attempted) > 0 {
				// Retries exhausted the healthy set; the failure already
				// observed decides the response.
				break
			}
			slog.Warn("no backend available",
				"kind", kind,
				"request_id", requestID,
				"error", err,
			)
			WriteError(w, NewErrorResponse(
				fmt.Sprintf("no healthy %s backend available", kind),
				ErrorTypeServiceUnavailable, CodeNoHealthyBackend,
			))
			return
		}
		attempted[target.ID] = true

		done, retry := f.attempt(w, r, target, body, streaming, requestID)
		if done {
			return
		}
		if !retry {
			break
		}
		slog.Info("retrying on another instance",
			"kind", kind,
			"failed_instance", target.ID,
			"attempt", attempt+1,
			"request_id", requestID,
		)
	}

	WriteError(w, NewErrorResponse(
		fmt.Sprintf("all %s backends failed to serve the request", kind),
		ErrorTypeBadGateway, CodeUpstreamError,
	))
}

// selectTarget picks a healthy instance that has not been attempted yet.
// Instances the cursor lands on that were already tried are released and
// skipped, bounded by the healthy-set size.
func (f *Forwarder) selectTarget(kind registry.Kind, attempted map[string]bool) (registry.Instance, error) {
	healthy := f.reg.Stats()[kind].Healthy
	if healthy < 1 {
		healthy = 1
	}

	for i := 0; i < healthy+1; i++ {
		target, err := f.reg.SelectHealthy(kind)
		if err != nil {
			return registry.Instance{}, err
		}
		if !attempted[target.ID] {
			return target, nil
		}
		f.reg.Release(target.ID)
	}
	return registry.Instance{}, &registry.NoHealthyBackendError{Kind: kind, Registered: healthy}
}

// attempt performs one upstream exchange. It returns done=true when a
// response (success or terminal failure) has been written to the client, and
// retry=true when the failure is safe to retry on another instance.
func (f *Forwarder) attempt(w http.ResponseWriter, r *http.Request, target registry.Instance, body []byte, streaming bool, requestID string) (done, retry bool) {
	defer f.reg.Release(target.ID)

	start := time.Now()
	url := upstreamURL(target.BaseURL, r.URL.Path, r.URL.RawQuery)

	ctx, span := f.tracer.Start(r.Context(), "nexus.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("backend.kind", string(target.Kind)),
			attribute.String("backend.instance", target.ID),
			attribute.String("http.method", r.Method),
			attribute.String("http.url", url),
			attribute.Bool("nexus.streamed", streaming),
		),
	)
	defer span.End()

	exchange := Exchange{
		RequestID:   requestID,
		Kind:        target.Kind,
		InstanceID:  target.ID,
		InstanceURL: target.BaseURL,
		Method:      r.Method,
		Path:        r.URL.Path,
		Streamed:    streaming,
	}
	finish := func(status int, bytesOut int64, failureKind string) {
		exchange.Status = status
		exchange.BytesOut = bytesOut
		exchange.Duration = time.Since(start)
		exchange.FailureKind = failureKind
		if failureKind != "" {
			span.SetStatus(codes.Error, failureKind)
		}
		if f.OnExchange != nil {
			f.OnExchange(exchange)
		}
	}

	client := f.buffered
	if streaming {
		client = f.stream
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, url, bytes.NewReader(body))
	if err != nil {
		// Building the upstream request failed locally; not a backend fault.
		finish(0, 0, "internal_error")
		WriteError(w, NewErrorResponse("failed to build upstream request", ErrorTypeServerError, CodeInternalError))
		return true, false
	}
	copyProxyHeaders(req.Header, r.Header)
	if req.Header.Get("Content-Type") == "" && len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		if r.Context().Err() != nil {
			// Client gone; not a backend fault, nothing left to write.
			slog.Debug("client disconnected before upstream response",
				"instance", target.ID,
				"request_id", requestID,
			)
			finish(0, 0, "client_disconnected")
			return true, false
		}
		slog.Warn("upstream exchange failed",
			"instance", target.ID,
			"url", url,
			"request_id", requestID,
			"error", err,
		)
		f.reg.ReportOutcome(target.ID, false)
		finish(0, 0, "upstream_error")
		return false, true
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		slog.Warn("upstream returned server error",
			"instance", target.ID,
			"status", resp.StatusCode,
			"request_id", requestID,
		)
		f.reg.ReportOutcome(target.ID, false)
		finish(resp.StatusCode, 0, "upstream_status")
		return false, true
	}

	// 2xx-4xx: the backend is alive and answered; 4xx is the client's
	// problem, not the instance's.
	f.reg.ReportOutcome(target.ID, true)

	var bytesOut int64
	if streaming {
		bytesOut, err = f.relayStream(ctx, cancel, w, resp)
	} else {
		bytesOut, err = f.relayBuffered(w, resp)
	}

	switch {
	case err == nil:
		finish(resp.StatusCode, bytesOut, "")
		return true, false
	case errors.As(err, new(*ClientDisconnectedError)):
		finish(resp.StatusCode, bytesOut, "client_disconnected")
		return true, false
	case bytesOut == 0 && !streaming:
		// Upstream died while we buffered its response. Nothing reached the
		// client yet, so a retry on another instance is still safe.
		f.reg.ReportOutcome(target.ID, false)
		finish(resp.StatusCode, 0, "upstream_error")
		return false, true
	default:
		// Mid-stream upstream failure: terminal, the partial stream stands.
		f.reg.ReportOutcome(target.ID, false)
		finish(resp.StatusCode, bytesOut, "upstream_error")
		return true, false
	}
}

// relayBuffered reads the upstream response fully and writes it to the
// client in one piece. A read failure leaves the client untouched so the
// caller may retry.
func (f *Forwarder) relayBuffered(w http.ResponseWriter, resp *http.Response) (int64, error) {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &UpstreamError{URL: resp.Request.URL.String(), Cause: err}
	}

	copyProxyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	n, err := w.Write(payload)
	if err != nil {
		return int64(n), &ClientDisconnectedError{Cause: err}
	}
	return int64(n), nil
}
