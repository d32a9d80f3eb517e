package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aurora-hq/nexus/pkg/registry"
)

func newForwarderUnderTest(t *testing.T, cfg Config) (*Forwarder, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.Config{})
	return NewForwarder(reg, cfg), reg
}

func clientRequest(body string) *http.Request {
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("X-Request-ID", "req-test")
	return req
}

func decodeError(t *testing.T, body []byte) (string, string) {
	t.Helper()
	var resp struct {
		Error struct {
			Type string `json:"type"`
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("response is not an error object: %v\n%s", err, body)
	}
	return resp.Error.Type, resp.Error.Code
}

func TestForwardBuffered(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") != "req-test" {
			t.Error("request ID not propagated upstream")
		}
		if got := r.URL.RawQuery; got != "limit=2" {
			t.Errorf("query = %q, want limit=2", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Backend", "b1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"object":"chat.completion"}`))
	}))
	defer backend.Close()

	f, reg := newForwarderUnderTest(t, Config{})
	if _, err := reg.Register(registry.KindChat, backend.URL); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/v1/chat/completions?limit=2", strings.NewReader(`{}`))
	req.Header.Set("X-Request-ID", "req-test")
	rec := httptest.NewRecorder()
	f.Forward(rec, req, registry.KindChat, []byte(`{}`), false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Backend"); got != "b1" {
		t.Errorf("upstream header lost, X-Backend = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "chat.completion") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestForwardRelaysClientErrorStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"message":"bad payload"}}`))
	}))
	defer backend.Close()

	f, reg := newForwarderUnderTest(t, Config{})
	inst, err := reg.Register(registry.KindChat, backend.URL)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	f.Forward(rec, clientRequest(`{}`), registry.KindChat, []byte(`{}`), false)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 relayed", rec.Code)
	}
	// A 4xx answer proves the backend is alive; it must stay healthy.
	for _, got := range reg.List(registry.KindChat) {
		if got.ID == inst.ID && !got.Healthy {
			t.Error("backend marked unhealthy after 4xx")
		}
	}
}

func TestForwardRetriesOnServerError(t *testing.T) {
	var badCalls atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer good.Close()

	f, reg := newForwarderUnderTest(t, Config{MaxRetries: 1})
	if _, err := reg.Register(registry.KindChat, bad.URL); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(registry.KindChat, good.URL); err != nil {
		t.Fatal(err)
	}

	// Run several requests: whichever instance is selected first, every
	// request must end successfully because the bad one is retried away.
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		f.Forward(rec, clientRequest(`{}`), registry.KindChat, []byte(`{}`), false)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, body %s", i, rec.Code, rec.Body.String())
		}
	}
	if badCalls.Load() == 0 {
		t.Error("round-robin never touched the failing instance")
	}
}

func TestForwardRetriesOnConnectionError(t *testing.T) {
	// A registered URL nothing listens on.
	dead := "http://127.0.0.1:1"

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer good.Close()

	f, reg := newForwarderUnderTest(t, Config{MaxRetries: 1})
	if _, err := reg.Register(registry.KindWhisper, dead); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(registry.KindWhisper, good.URL); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		f.Forward(rec, clientRequest(`{}`), registry.KindWhisper, []byte(`{}`), false)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}

func TestForwardAllBackendsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	f, reg := newForwarderUnderTest(t, Config{MaxRetries: 2})
	if _, err := reg.Register(registry.KindChat, bad.URL); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	f.Forward(rec, clientRequest(`{}`), registry.KindChat, []byte(`{}`), false)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	errType, code := decodeError(t, rec.Body.Bytes())
	if errType != ErrorTypeBadGateway || code != CodeUpstreamError {
		t.Errorf("error = (%s, %s)", errType, code)
	}
}

func TestForwardNoBackendRegistered(t *testing.T) {
	f, _ := newForwarderUnderTest(t, Config{})

	rec := httptest.NewRecorder()
	f.Forward(rec, clientRequest(`{}`), registry.KindImage, []byte(`{}`), false)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	errType, code := decodeError(t, rec.Body.Bytes())
	if errType != ErrorTypeServiceUnavailable || code != CodeNoHealthyBackend {
		t.Errorf("error = (%s, %s)", errType, code)
	}
}

func TestForwardStripsHopByHopHeaders(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Proxy-Authorization"); got != "" {
			t.Errorf("hop-by-hop header forwarded: Proxy-Authorization = %q", got)
		}
		if got := r.Header.Get("X-Secret"); got != "" {
			t.Errorf("Connection-nominated header forwarded: X-Secret = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("end-to-end header lost: Authorization = %q", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer backend.Close()

	f, reg := newForwarderUnderTest(t, Config{})
	if _, err := reg.Register(registry.KindChat, backend.URL); err != nil {
		t.Fatal(err)
	}

	req := clientRequest(`{}`)
	req.Header.Set("Proxy-Authorization", "creds")
	req.Header.Set("Connection", "X-Secret")
	req.Header.Set("X-Secret", "hidden")
	req.Header.Set("Authorization", "Bearer token")

	rec := httptest.NewRecorder()
	f.Forward(rec, req, registry.KindChat, []byte(`{}`), false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestForwardStreamRelaysSSE(t *testing.T) {
	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
		"data: [DONE]\n\n",
	}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprint(w, c)
			flusher.Flush()
		}
	}))
	defer backend.Close()

	f, reg := newForwarderUnderTest(t, Config{})
	if _, err := reg.Register(registry.KindChat, backend.URL); err != nil {
		t.Fatal(err)
	}

	var exchange Exchange
	f.OnExchange = func(ex Exchange) { exchange = ex }

	rec := httptest.NewRecorder()
	f.Forward(rec, clientRequest(`{"stream":true}`), registry.KindChat, []byte(`{"stream":true}`), true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Body.String(); got != strings.Join(chunks, "") {
		t.Errorf("stream body = %q", got)
	}
	if !rec.Flushed {
		t.Error("response never flushed")
	}
	if !exchange.Streamed || exchange.FailureKind != "" {
		t.Errorf("exchange = %+v", exchange)
	}
}

func TestForwardStreamUpstreamTruncation(t *testing.T) {
	// The backend promises more bytes than it sends, then dies; the client
	// read fails mid-stream. The partial stream must stand and the failure
	// must be terminal (no retry writes to the same response).
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte("data: {\"choices\":[]}\n\n"))
		w.(http.Flusher).Flush()
	}))
	defer backend.Close()

	f, reg := newForwarderUnderTest(t, Config{MaxRetries: 3})
	if _, err := reg.Register(registry.KindChat, backend.URL); err != nil {
		t.Fatal(err)
	}

	var exchanges []Exchange
	f.OnExchange = func(ex Exchange) { exchanges = append(exchanges, ex) }

	rec := httptest.NewRecorder()
	f.Forward(rec, clientRequest(`{"stream":true}`), registry.KindChat, []byte(`{"stream":true}`), true)

	if !strings.Contains(rec.Body.String(), "choices") {
		t.Errorf("partial chunk lost: body = %q", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "backends failed") {
		t.Error("error body appended to a started stream")
	}
	if len(exchanges) != 1 {
		t.Fatalf("exchange count = %d, want 1 (mid-stream failure is terminal)", len(exchanges))
	}
	if exchanges[0].FailureKind != "upstream_error" {
		t.Errorf("failure = %q", exchanges[0].FailureKind)
	}
}

// brokenPipeWriter accepts the first write and fails every write after it,
// the way a client connection behaves once the peer has gone away.
type brokenPipeWriter struct {
	header http.Header
	body   strings.Builder
	writes int
}

func (w *brokenPipeWriter) Header() http.Header { return w.header }
func (w *brokenPipeWriter) WriteHeader(int)     {}
func (w *brokenPipeWriter) Flush()              {}

func (w *brokenPipeWriter) Write(b []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("write: broken pipe")
	}
	w.body.Write(b)
	return len(b), nil
}

func TestForwardStreamClientDisconnectKeepsBackendHealthy(t *testing.T) {
	// The backend keeps producing; the client drops mid-stream. That is the
	// client's doing, so the instance must keep its clean health record.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, "data: {\"seq\":%d}\n\n", i)
			flusher.Flush()
			time.Sleep(20 * time.Millisecond)
		}
	}))
	defer backend.Close()

	f, reg := newForwarderUnderTest(t, Config{MaxRetries: 3})
	inst, err := reg.Register(registry.KindChat, backend.URL)
	if err != nil {
		t.Fatal(err)
	}

	var exchanges []Exchange
	f.OnExchange = func(ex Exchange) { exchanges = append(exchanges, ex) }

	client := &brokenPipeWriter{header: make(http.Header)}
	f.Forward(client, clientRequest(`{"stream":true}`), registry.KindChat, []byte(`{"stream":true}`), true)

	if !strings.Contains(client.body.String(), "seq") {
		t.Errorf("first chunk never reached the client: %q", client.body.String())
	}
	if len(exchanges) != 1 {
		t.Fatalf("exchange count = %d, want 1 (disconnect is terminal, not retried)", len(exchanges))
	}
	if exchanges[0].FailureKind != "client_disconnected" {
		t.Errorf("failure = %q, want client_disconnected", exchanges[0].FailureKind)
	}

	for _, got := range reg.List(registry.KindChat) {
		if got.ID != inst.ID {
			continue
		}
		if !got.Healthy {
			t.Error("backend marked unhealthy after client disconnect")
		}
		if got.ConsecutiveFailures != 0 {
			t.Errorf("consecutive failures = %d, want 0", got.ConsecutiveFailures)
		}
	}
	if got := reg.Stats()[registry.KindChat].InFlight; got != 0 {
		t.Errorf("in-flight after disconnect = %d, want 0", got)
	}
}

func TestForwardConcurrentSpreadsLoad(t *testing.T) {
	var aCalls, bCalls atomic.Int32
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		aCalls.Add(1)
		w.Write([]byte(`{"served_by":"a"}`))
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bCalls.Add(1)
		w.Write([]byte(`{"served_by":"b"}`))
	}))
	defer b.Close()

	f, reg := newForwarderUnderTest(t, Config{})
	if _, err := reg.Register(registry.KindChat, a.URL); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(registry.KindChat, b.URL); err != nil {
		t.Fatal(err)
	}

	const requests = 10
	statuses := make([]int, requests)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			f.Forward(rec, clientRequest(`{}`), registry.KindChat, []byte(`{}`), false)
			statuses[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for i, code := range statuses {
		if code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, code)
		}
	}
	if aCalls.Load() == 0 || bCalls.Load() == 0 {
		t.Errorf("load not spread: a = %d, b = %d", aCalls.Load(), bCalls.Load())
	}
	if total := aCalls.Load() + bCalls.Load(); total != requests {
		t.Errorf("total upstream calls = %d, want %d", total, requests)
	}
	if got := reg.Stats()[registry.KindChat].InFlight; got != 0 {
		t.Errorf("in-flight after completion = %d, want 0", got)
	}
}

func TestForwardReleasesInFlight(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer backend.Close()

	f, reg := newForwarderUnderTest(t, Config{})
	if _, err := reg.Register(registry.KindChat, backend.URL); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		f.Forward(rec, clientRequest(`{}`), registry.KindChat, []byte(`{}`), false)
	}

	if got := reg.Stats()[registry.KindChat].InFlight; got != 0 {
		t.Fatalf("in-flight after completion = %d, want 0", got)
	}
}

func TestFetchAggregationSource(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/models" {
			t.Errorf("fetch sent %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"object":"list","data":[{"id":"llama"}]}`))
	}))
	defer backend.Close()

	f, reg := newForwarderUnderTest(t, Config{})
	if _, err := reg.Register(registry.KindChat, backend.URL); err != nil {
		t.Fatal(err)
	}

	payload, err := f.Fetch(clientRequest("").Context(), registry.KindChat, "/v1/models")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(string(payload), "llama") {
		t.Errorf("payload = %s", payload)
	}
	if got := reg.Stats()[registry.KindChat].InFlight; got != 0 {
		t.Errorf("in-flight after Fetch = %d", got)
	}
}

func TestFetchNoBackend(t *testing.T) {
	f, _ := newForwarderUnderTest(t, Config{})
	if _, err := f.Fetch(clientRequest("").Context(), registry.KindTTS, "/v1/models"); err == nil {
		t.Fatal("Fetch succeeded with no backends")
	}
}
