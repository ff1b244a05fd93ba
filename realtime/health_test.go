package realtime

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	if err := NewHealthPoller(nil, healthy.URL).Check(); err != nil {
		t.Fatalf("healthy endpoint: %v", err)
	}
	if err := NewHealthPoller(nil, unhealthy.URL).Check(); err == nil {
		t.Fatal("unhealthy endpoint reported healthy")
	}
}

func TestHealthCheckRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer flaky.Close()

	if err := NewHealthPoller(nil, flaky.URL).Check(); err != nil {
		t.Fatalf("flaky endpoint: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestHealthPollForcesDisconnectWhenUnhealthy(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	completeHandshake(t, c, factory.conn(0))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	p := NewHealthPoller(c, down.URL)
	p.poll()

	// The socket still looked open at the transport layer; the poller
	// overrides it.
	if c.State() != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", c.State())
	}
}

func TestHealthPollRequestsConnectWhenHealthy(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	p := NewHealthPoller(c, up.URL)
	p.poll()

	if c.State() != StateConnecting {
		t.Fatalf("state = %s, want connecting", c.State())
	}
	if factory.conn(0) == nil {
		t.Fatal("no connect attempt made")
	}

	// A healthy report while already connecting must not dial again.
	p.poll()
	factory.mu.Lock()
	conns := len(factory.conns)
	factory.mu.Unlock()
	if conns != 1 {
		t.Fatalf("transports created = %d, want 1", conns)
	}
}

func TestHealthPollerStartStop(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	p := NewHealthPoller(c, up.URL, WithHealthPeriod(10*time.Millisecond))
	p.Start()
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for factory.conn(0) == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if factory.conn(0) == nil {
		t.Fatal("poller never requested a connect")
	}

	p.Stop()
	p.Stop()
}
