package server

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bobmcallan/folio/internal/common"
)

func TestUserContextMiddleware_Header(t *testing.T) {
	handler := userContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uc := common.UserContextFromContext(r.Context())
		if uc == nil {
			t.Fatal("Expected UserContext to be present")
		}
		if uc.UserID != "alice@example.com" {
			t.Errorf("Expected user alice@example.com, got %s", uc.UserID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	req.Header.Set(UserIDHeader, "  alice@example.com ")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}
}

func TestUserContextMiddleware_NoHeader(t *testing.T) {
	handler := userContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uc := common.UserContextFromContext(r.Context()); uc != nil {
			t.Error("Expected nil UserContext when no header present")
		}
		if got := common.ResolveUserID(r.Context()); got != common.DefaultUserID {
			t.Errorf("Expected default user, got %s", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}
}

func TestUserContextMiddleware_RejectsInvalid(t *testing.T) {
	called := false
	handler := userContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, bad := range []string{"../etc", "a b", "user;drop", strings.Repeat("x", 129)} {
		req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
		req.Header.Set(UserIDHeader, bad)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("header %q: expected 400, got %d", bad, rr.Code)
		}
	}
	if called {
		t.Error("handler must not run for an invalid user header")
	}
}

func TestCorsMiddleware_Preflight(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/trade", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), UserIDHeader) {
		t.Errorf("Expected %s in allowed headers, got %q", UserIDHeader, rr.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "req-42" {
		t.Errorf("Expected propagated id req-42, got %q", got)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if got := rr.Header().Get("X-Correlation-ID"); len(got) != 8 {
		t.Errorf("Expected generated 8-char id, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := common.NewLoggerWithOutput("error", &buf)
	handler := recoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/portfolio", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rr.Code)
	}
	if !strings.Contains(buf.String(), "kaboom") {
		t.Errorf("Expected panic to be logged, got %q", buf.String())
	}
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	tests := []struct {
		status  int
		level   string
		wantLog bool
	}{
		{http.StatusOK, "info", false},
		{http.StatusUnprocessableEntity, "info", true},
		{http.StatusInternalServerError, "warn", true},
		{http.StatusOK, "trace", true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := common.NewLoggerWithOutput(tt.level, &buf)
		handler := loggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/trade", nil))

		logged := strings.Contains(buf.String(), "HTTP request")
		if logged != tt.wantLog {
			t.Errorf("status %d at level %s: logged=%v, want %v (%q)", tt.status, tt.level, logged, tt.wantLog, buf.String())
		}
	}
}

func TestTradeRateLimit_PerUser(t *testing.T) {
	handler := userContextMiddleware(tradeRateLimitMiddleware(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	send := func(method, path, user string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set(UserIDHeader, user)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	// burst of 2 per user
	if code := send(http.MethodPost, "/trade", "alice"); code != http.StatusOK {
		t.Fatalf("first trade: expected 200, got %d", code)
	}
	if code := send(http.MethodPost, "/api/trade", "alice"); code != http.StatusOK {
		t.Fatalf("second trade: expected 200, got %d", code)
	}
	if code := send(http.MethodPost, "/trade", "alice"); code != http.StatusTooManyRequests {
		t.Errorf("third trade: expected 429, got %d", code)
	}

	if code := send(http.MethodPost, "/trade", "bob"); code != http.StatusOK {
		t.Errorf("other user: expected 200, got %d", code)
	}
	if code := send(http.MethodGet, "/api/positions", "alice"); code != http.StatusOK {
		t.Errorf("reads are not limited: expected 200, got %d", code)
	}
}

func TestUserLimiter_BoundedByLRU(t *testing.T) {
	u := newUserLimiter(1, 2)

	if !u.allow("alice") {
		t.Fatal("alice: first write should be allowed")
	}
	if u.allow("alice") {
		t.Fatal("alice: bucket should be empty")
	}

	for i := 0; i < 50; i++ {
		u.allow(fmt.Sprintf("minted-%d", i))
	}
	if n := u.limiters.Len(); n != 2 {
		t.Errorf("tracked limiters = %d, want 2", n)
	}

	// alice was evicted and starts over with a full bucket
	if !u.allow("alice") {
		t.Error("alice: expected a fresh bucket after eviction")
	}
}
