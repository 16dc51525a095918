package dialer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"aquaguard/internal/config"
)

func testDialerConfig(url string) config.DialerConfig {
	return config.DialerConfig{
		ProviderURL:   url,
		APIKey:        "test-key",
		AssistantID:   "asst-1",
		PhoneNumberID: "pn-1",
		Timeout:       2 * time.Second,
		MaxRetries:    2,
		RetryBackoff:  5 * time.Millisecond,
	}
}

func TestCallSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		if body["assistantId"] != "asst-1" {
			t.Errorf("missing assistantId in payload: %v", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(testDialerConfig(srv.URL), nil)
	if !c.Call(context.Background(), "+15550001111", 0.9) {
		t.Fatalf("expected call to succeed")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one attempt on success, got %d", hits.Load())
	}
}

func TestCallRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testDialerConfig(srv.URL), nil)
	if !c.Call(context.Background(), "+15550001111", 0.9) {
		t.Fatalf("expected call to succeed within retry budget")
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestCallExhaustsRetryBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testDialerConfig(srv.URL), nil)
	if c.Call(context.Background(), "+15550001111", 0.5) {
		t.Fatalf("expected call to fail after exhausting retries")
	}
	if hits.Load() != 3 {
		t.Fatalf("expected max_retries+1 attempts, got %d", hits.Load())
	}
}

func TestCallTransportErrorIsFailure(t *testing.T) {
	cfg := testDialerConfig("http://127.0.0.1:1") // nothing listening
	cfg.MaxRetries = 0
	c := NewClient(cfg, nil)
	if c.Call(context.Background(), "+15550001111", 0.5) {
		t.Fatalf("expected transport error to fold into failure")
	}
}

func TestCallHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testDialerConfig(srv.URL)
	cfg.RetryBackoff = time.Hour
	c := NewClient(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- c.Call(ctx, "+15550001111", 0.5) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("cancelled call must not report success")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled call did not return promptly")
	}
}
