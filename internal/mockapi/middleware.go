package mockapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talentview/sessionkit/internal/http/response"
	"github.com/talentview/sessionkit/internal/security"
)

type contextKey string

const userIDKey contextKey = "mockapi.user_id"

func userIDFrom(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDKey).(uint)
	return id, ok
}

// authMiddleware rejects requests without a valid bearer access token.
// Expired and malformed tokens both come back as 401 so the client's
// refresh-and-replay path gets exercised.
func authMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				response.Error(w, r, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := jwtMgr.ParseAccessToken(token)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			userID, err := strconv.ParseUint(claims.Subject, 10, 64)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "malformed subject claim")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, uint(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// fixedWindowLimiter is a small per-client fixed window, enough to keep
// a runaway loop from hammering the auth endpoints of the mock backend.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	hits    map[string][]time.Time
	cleanup time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration) *fixedWindowLimiter {
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		hits:    make(map[string][]time.Time),
		cleanup: time.Now().Add(window),
	}
}

func (l *fixedWindowLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.cleanup) {
		for k, hits := range l.hits {
			if len(hits) == 0 || now.Sub(hits[len(hits)-1]) > 2*l.window {
				delete(l.hits, k)
			}
		}
		l.cleanup = now.Add(l.window)
	}

	cutoff := now.Add(-l.window)
	pruned := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(cutoff) {
			pruned = append(pruned, hit)
		}
	}
	if len(pruned) >= l.limit {
		l.hits[key] = pruned
		return false
	}
	l.hits[key] = append(pruned, now)
	return true
}

func (l *fixedWindowLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		}
		if !l.allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			response.Error(w, r, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
