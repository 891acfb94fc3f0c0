package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"samples-backend/internal/apperr"
	"samples-backend/internal/httpx"
)

const (
	AuthPathPrefix = "/api/auth/"
	authKeyPrefix  = "auth:"

	MsgTooManyRequests = "Too many requests. Please try again later."
)

type Logger interface {
	Warn(message string, fields map[string]any)
}

// Admission applies the standard policy to every request and the auth policy
// instead of it on the auth path prefix.
type Admission struct {
	standard *Limiter
	auth     *Limiter
	logger   Logger
}

func NewAdmission(standard, auth *Limiter, logger Logger) *Admission {
	return &Admission{standard: standard, auth: auth, logger: logger}
}

func (a *Admission) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpx.ClientIP(r)

		limiter, key := a.standard, ip
		if strings.HasPrefix(r.URL.Path, AuthPathPrefix) {
			limiter, key = a.auth, authKeyPrefix+ip
		}

		allowed, retryAfter := limiter.Consume(key)
		if !allowed {
			if a.logger != nil {
				a.logger.Warn("rate_limit_exceeded", map[string]any{
					"ip":     ip,
					"path":   r.URL.Path,
					"policy": limiter.Policy().Name,
				})
			}

			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			writeRejection(w, apperr.RateLimited(MsgTooManyRequests))
			return
		}

		next.ServeHTTP(w, r)
	})
}

type rejection struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// writeRejection renders a rate limit error without the path field the
// regular error body carries.
func writeRejection(w http.ResponseWriter, err *apperr.Error) {
	status := apperr.Status(err.Kind)
	httpx.WriteJSON(w, status, rejection{
		Status:    status,
		Message:   err.Message,
		Timestamp: httpx.Now(),
	})
}
