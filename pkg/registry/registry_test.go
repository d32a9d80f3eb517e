package registry

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: "http://10.0.0.1:8080", want: "http://10.0.0.1:8080"},
		{name: "trailing slash stripped", raw: "http://10.0.0.1:8080/", want: "http://10.0.0.1:8080"},
		{name: "https with path", raw: "https://backend.local/llama/", want: "https://backend.local/llama"},
		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace only", raw: "   ", wantErr: true},
		{name: "missing scheme", raw: "10.0.0.1:8080", wantErr: true},
		{name: "bad scheme", raw: "ftp://10.0.0.1", wantErr: true},
		{name: "missing host", raw: "http://", wantErr: true},
		{name: "query rejected", raw: "http://host:80?x=1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.raw)
			if tt.wantErr {
				var invalid *InvalidURLError
				if !errors.As(err, &invalid) {
					t.Fatalf("NormalizeBaseURL(%q) error = %v, want InvalidURLError", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeBaseURL(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range AllKinds() {
		got, err := ParseKind(string(kind))
		if err != nil {
			t.Errorf("ParseKind(%q) unexpected error: %v", kind, err)
		}
		if got != kind {
			t.Errorf("ParseKind(%q) = %q", kind, got)
		}
	}

	if _, err := ParseKind("mystery"); err == nil {
		t.Error("ParseKind(\"mystery\") should fail")
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := New(Config{})

	first, err := r.Register(KindChat, "http://10.0.0.1:8080/")
	if err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	// Same normalized URL, different surface form.
	second, err := r.Register(KindChat, "http://10.0.0.1:8080")
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("duplicate registration returned different ids: %q vs %q", first.ID, second.ID)
	}
	if got := len(r.List(KindChat)); got != 1 {
		t.Errorf("List(chat) has %d instances, want 1", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New(Config{})

	if _, err := r.Register(KindChat, "not a url"); err == nil {
		t.Error("Register with malformed URL should fail")
	}
	if _, err := r.Register(Kind("bogus"), "http://host:80"); err == nil {
		t.Error("Register with unknown kind should fail")
	}
	var unknown *UnknownKindError
	_, err := r.Register(Kind("bogus"), "http://host:80")
	if !errors.As(err, &unknown) {
		t.Errorf("Register error = %v, want UnknownKindError", err)
	}
}

func TestUnregister(t *testing.T) {
	r := New(Config{})

	inst, err := r.Register(KindImage, "http://img:9090")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := r.Unregister(KindImage, "http://img:9090/"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if got := len(r.List(KindImage)); got != 0 {
		t.Errorf("List(image) has %d instances after unregister, want 0", got)
	}

	var notFound *NotFoundError
	if err := r.Unregister(KindImage, "http://img:9090"); !errors.As(err, &notFound) {
		t.Errorf("second Unregister error = %v, want NotFoundError", err)
	}
	if err := r.UnregisterByID(inst.ID); !errors.As(err, &notFound) {
		t.Errorf("UnregisterByID after removal error = %v, want NotFoundError", err)
	}
}

func TestUnregisterByID(t *testing.T) {
	r := New(Config{})

	inst, err := r.Register(KindTTS, "http://tts:7000")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.UnregisterByID(inst.ID); err != nil {
		t.Fatalf("UnregisterByID failed: %v", err)
	}
	if got := len(r.List(KindTTS)); got != 0 {
		t.Errorf("List(tts) has %d instances, want 0", got)
	}
}

func TestSelectHealthySkipsUnhealthy(t *testing.T) {
	r := New(Config{FailureThreshold: 1})

	a, _ := r.Register(KindChat, "http://a:1")
	b, _ := r.Register(KindChat, "http://b:2")

	r.ReportOutcome(a.ID, false) // threshold 1: immediately unhealthy

	for i := 0; i < 10; i++ {
		inst, err := r.SelectHealthy(KindChat)
		if err != nil {
			t.Fatalf("SelectHealthy failed: %v", err)
		}
		if inst.ID != b.ID {
			t.Fatalf("SelectHealthy returned unhealthy instance %q", inst.ID)
		}
		r.Release(inst.ID)
	}
}

func TestSelectHealthyNoBackend(t *testing.T) {
	r := New(Config{})

	var noHealthy *NoHealthyBackendError
	if _, err := r.SelectHealthy(KindImage); !errors.As(err, &noHealthy) {
		t.Fatalf("SelectHealthy on empty kind error = %v, want NoHealthyBackendError", err)
	}

	inst, _ := r.Register(KindImage, "http://img:1")
	r.ReportOutcome(inst.ID, false)
	r.ReportOutcome(inst.ID, false)
	r.ReportOutcome(inst.ID, false)

	_, err := r.SelectHealthy(KindImage)
	if !errors.As(err, &noHealthy) {
		t.Fatalf("SelectHealthy with all-unhealthy error = %v, want NoHealthyBackendError", err)
	}
	if noHealthy.Registered != 1 {
		t.Errorf("NoHealthyBackendError.Registered = %d, want 1", noHealthy.Registered)
	}
}

func TestSelectHealthyRoundRobinBalance(t *testing.T) {
	r := New(Config{})

	urls := []string{"http://a:1", "http://b:2", "http://c:3"}
	for _, u := range urls {
		if _, err := r.Register(KindChat, u); err != nil {
			t.Fatalf("Register(%q) failed: %v", u, err)
		}
	}

	const selections = 300
	counts := make(map[string]int)
	for i := 0; i < selections; i++ {
		inst, err := r.SelectHealthy(KindChat)
		if err != nil {
			t.Fatalf("SelectHealthy failed: %v", err)
		}
		counts[inst.BaseURL]++
		r.Release(inst.ID)
	}

	mean := selections / len(urls)
	for url, n := range counts {
		if n < mean-1 || n > mean+1 {
			t.Errorf("instance %s selected %d times, want ~%d", url, n, mean)
		}
	}
}

func TestSelectHealthyLeastLoaded(t *testing.T) {
	r := New(Config{})

	busy, _ := r.Register(KindChat, "http://busy:1")
	idle, _ := r.Register(KindChat, "http://idle:2")

	// Leave requests open on the busy instance so it carries in-flight load.
	for i := 0; i < 3; i++ {
		inst, err := r.SelectHealthy(KindChat)
		if err != nil {
			t.Fatalf("SelectHealthy failed: %v", err)
		}
		if inst.ID == idle.ID {
			r.Release(inst.ID)
		}
	}

	// With busy carrying in-flight requests, idle must win every time.
	for i := 0; i < 5; i++ {
		inst, err := r.SelectHealthy(KindChat)
		if err != nil {
			t.Fatalf("SelectHealthy failed: %v", err)
		}
		if inst.ID != idle.ID {
			t.Fatalf("selected loaded instance %q over idle %q", busy.ID, idle.ID)
		}
		r.Release(inst.ID)
	}
}

func TestReportOutcomeFlapAndRecover(t *testing.T) {
	r := New(Config{FailureThreshold: 3})

	inst, _ := r.Register(KindWhisper, "http://w:1")

	r.ReportOutcome(inst.ID, false)
	r.ReportOutcome(inst.ID, false)
	if got := r.List(KindWhisper)[0]; !got.Healthy {
		t.Fatal("instance flipped unhealthy below threshold")
	}

	r.ReportOutcome(inst.ID, false)
	if got := r.List(KindWhisper)[0]; got.Healthy {
		t.Fatal("instance still healthy after reaching threshold")
	}

	// A single success self-heals without waiting for the next probe cycle.
	r.ReportOutcome(inst.ID, true)
	got := r.List(KindWhisper)[0]
	if !got.Healthy {
		t.Fatal("instance did not recover on success")
	}
	if got.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d after recovery, want 0", got.ConsecutiveFailures)
	}
}

func TestReportProbe(t *testing.T) {
	r := New(Config{FailureThreshold: 2})

	inst, _ := r.Register(KindChat, "http://c:1")

	failures, err := r.ReportProbe(inst.ID, false, 0)
	if err != nil {
		t.Fatalf("ReportProbe failed: %v", err)
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}

	if _, err := r.ReportProbe(inst.ID, true, 12*time.Millisecond); err != nil {
		t.Fatalf("ReportProbe failed: %v", err)
	}
	got := r.List(KindChat)[0]
	if got.LastLatency != 12*time.Millisecond {
		t.Errorf("LastLatency = %v, want 12ms", got.LastLatency)
	}
	if got.LastCheckedAt.IsZero() {
		t.Error("LastCheckedAt not recorded")
	}

	if _, err := r.ReportProbe("ghost", true, 0); err == nil {
		t.Error("ReportProbe on unknown id should fail")
	}
}

func TestListAllIncludesEmptyKinds(t *testing.T) {
	r := New(Config{})
	r.Register(KindChat, "http://c:1")

	all := r.ListAll()
	if len(all) != len(AllKinds()) {
		t.Fatalf("ListAll returned %d kinds, want %d", len(all), len(AllKinds()))
	}
	for _, kind := range AllKinds() {
		instances, ok := all[kind]
		if !ok {
			t.Errorf("ListAll missing kind %q", kind)
		}
		if instances == nil {
			t.Errorf("ListAll[%q] is nil, want empty slice", kind)
		}
	}
	if len(all[KindChat]) != 1 {
		t.Errorf("ListAll[chat] has %d instances, want 1", len(all[KindChat]))
	}
}

func TestStats(t *testing.T) {
	r := New(Config{FailureThreshold: 1})

	a, _ := r.Register(KindChat, "http://a:1")
	r.Register(KindChat, "http://b:2")
	r.ReportOutcome(a.ID, false)

	stats := r.Stats()
	if stats[KindChat].Registered != 2 {
		t.Errorf("Registered = %d, want 2", stats[KindChat].Registered)
	}
	if stats[KindChat].Healthy != 1 {
		t.Errorf("Healthy = %d, want 1", stats[KindChat].Healthy)
	}
}

func TestConcurrentRegisterSelect(t *testing.T) {
	r := New(Config{})

	var wg sync.WaitGroup
	urls := []string{"http://a:1", "http://b:2", "http://c:3", "http://d:4"}

	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := r.Register(KindChat, u); err != nil {
					t.Errorf("Register(%q) failed: %v", u, err)
					return
				}
			}
		}(u)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			inst, err := r.SelectHealthy(KindChat)
			if err != nil {
				// Acceptable while registration races selection.
				var noHealthy *NoHealthyBackendError
				if !errors.As(err, &noHealthy) {
					t.Errorf("SelectHealthy failed: %v", err)
				}
				continue
			}
			r.ReportOutcome(inst.ID, true)
			r.Release(inst.ID)
		}
	}()

	wg.Wait()

	if got := len(r.List(KindChat)); got != len(urls) {
		t.Errorf("List(chat) has %d instances, want %d", got, len(urls))
	}
}
