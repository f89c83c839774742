package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(rpm int) (*Limiter, *time.Time) {
	rl := NewLimiter(Config{RequestsPerMinute: rpm, CleanupInterval: time.Hour})
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, wait := rl.Allow("1.2.3.4")
	if ok {
		t.Fatal("4th request should be rejected")
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want 1m", wait)
	}

	// other clients are independent
	if ok, _ := rl.Allow("5.6.7.8"); !ok {
		t.Error("other client should be allowed")
	}

	*now = now.Add(time.Minute)
	if ok, _ := rl.Allow("1.2.3.4"); !ok {
		t.Error("new window should allow requests")
	}
	if rl.Rejected() != 1 {
		t.Errorf("Rejected() = %d, want 1", rl.Rejected())
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(10)
	defer rl.Stop()

	rl.Allow("a")
	*now = now.Add(11 * time.Minute)
	rl.Allow("b")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Errorf("cleanupStaleEntries() = %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(1)
	defer rl.Stop()

	h := rl.Middleware(func(r *http.Request) string { return "k" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rr.Header().Get("Retry-After"))
	}

	rl.Stop()
}
