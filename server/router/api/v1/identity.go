package v1

import (
	"hash/fnv"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// userIDHeader identifies the caller. Authentication proper is handled by
// the deployment's reverse proxy; the server only needs a stable identity
// to partition conversations and rate limits.
const userIDHeader = "X-User-ID"

const defaultUser = "default"

// userKey returns the caller's identity string.
func userKey(c echo.Context) string {
	if id := c.Request().Header.Get(userIDHeader); id != "" {
		return id
	}
	return defaultUser
}

// userID folds the identity string into the store's numeric user id.
func userID(c echo.Context) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userKey(c)))
	// Clear the sign bit so ids stay positive in SQL.
	return int32(h.Sum32() & 0x7fffffff)
}

// userLimiters holds one token bucket per caller.
type userLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newUserLimiters() *userLimiters {
	return &userLimiters{limiters: make(map[string]*rate.Limiter)}
}

// get returns the caller's limiter: 1 request/sec sustained, burst of 5.
func (l *userLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(1), 5)
		l.limiters[key] = limiter
	}
	return limiter
}

// rateLimit guards generation endpoints against per-user request floods.
func (s *APIV1Service) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.limiters.get(userKey(c)).Allow() {
			return errorResponse(c, http.StatusTooManyRequests, "too many requests, slow down")
		}
		return next(c)
	}
}
