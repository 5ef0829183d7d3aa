package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/folio/internal/common"
)

// UserIDHeader names the caller. There is no authentication in front of it.
const UserIDHeader = "X-Folio-User-ID"

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// recoveryMiddleware catches panics and returns 500.
func recoveryMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("panic", fmt.Sprintf("%v", rec)).
						Str("path", r.URL.Path).
						Msg("Panic recovered in HTTP handler")
					WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers for the chart UI.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Correlation-ID, "+UserIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// correlationIDMiddleware extracts or generates a correlation ID.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Request-ID")
		if corrID == "" {
			corrID = r.Header.Get("X-Correlation-ID")
		}
		if corrID == "" {
			corrID = uuid.New().String()[:8]
		}
		w.Header().Set("X-Correlation-ID", corrID)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			event := logger.Trace()
			if rw.statusCode >= 500 {
				event = logger.Error()
			} else if rw.statusCode >= 400 {
				event = logger.Info()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", rw.statusCode).
				Int("bytes", rw.bytesWritten).
				Dur("duration", time.Since(start)).
				Str("correlation_id", w.Header().Get("X-Correlation-ID")).
				Str("user_id", common.ResolveUserID(r.Context())).
				Msg("HTTP request")
		})
	}
}

// userContextMiddleware puts the X-Folio-User-ID header into the request
// context. A missing header leaves the context empty so handlers fall back to
// common.DefaultUserID; a malformed one is rejected.
func userContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if strings.TrimSpace(raw) != "" {
			id := common.NormalizeUserID(raw)
			if id == "" {
				WriteErrorWithCode(w, http.StatusBadRequest, "invalid_user", "Invalid "+UserIDHeader+" header")
				return
			}
			r = r.WithContext(common.WithUserContext(r.Context(), &common.UserContext{UserID: id}))
		}
		next.ServeHTTP(w, r)
	})
}

// maxTrackedUsers bounds the per-user limiters held in memory. The least
// recently seen user is evicted first and starts with a full bucket again.
const maxTrackedUsers = 10000

// userLimiter hands out one token bucket per user.
type userLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func newUserLimiter(perSecond, maxUsers int) *userLimiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	if maxUsers <= 0 {
		maxUsers = maxTrackedUsers
	}
	cache, _ := lru.New[string, *rate.Limiter](maxUsers)
	return &userLimiter{
		limiters: cache,
		limit:    rate.Limit(perSecond),
		burst:    perSecond,
	}
}

func (u *userLimiter) allow(userID string) bool {
	u.mu.Lock()
	l, ok := u.limiters.Get(userID)
	if !ok {
		l = rate.NewLimiter(u.limit, u.burst)
		u.limiters.Add(userID, l)
	}
	u.mu.Unlock()
	return l.Allow()
}

// tradeRateLimitMiddleware caps ledger writes per user. Reads are not limited.
func tradeRateLimitMiddleware(perSecond int) func(http.Handler) http.Handler {
	limiter := newUserLimiter(perSecond, maxTrackedUsers)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && isLedgerWrite(r.URL.Path) {
				if !limiter.allow(common.ResolveUserID(r.Context())) {
					w.Header().Set("Retry-After", "1")
					WriteErrorWithCode(w, http.StatusTooManyRequests, "rate_limited", "Too many ledger writes")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLedgerWrite(path string) bool {
	switch path {
	case "/trade", "/api/trade", "/api/wallet/deposit", "/api/wallet/withdraw":
		return true
	}
	return false
}

// applyMiddleware wraps a handler with the middleware stack.
func applyMiddleware(handler http.Handler, logger *common.Logger, config *common.Config) http.Handler {
	// Apply in reverse order (last applied = first executed)
	handler = loggingMiddleware(logger)(handler)
	handler = tradeRateLimitMiddleware(config.Server.TradeRate)(handler)
	handler = userContextMiddleware(handler)
	handler = correlationIDMiddleware(handler)
	handler = corsMiddleware(handler)
	handler = recoveryMiddleware(logger)(handler)
	return handler
}
