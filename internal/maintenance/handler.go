package maintenance

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"samples-backend/internal/apperr"
	"samples-backend/internal/httpx"
	"samples-backend/internal/ratelimit"
)

// maxRounds bounds one cleanup call so a large backlog is drained over
// several cron invocations.
const maxRounds = 10

type TokenPurger interface {
	PurgeExpired(ctx context.Context, batchSize int) (int64, error)
}

type Logger interface {
	Info(message string, fields map[string]any)
	Error(message string, fields map[string]any)
}

type Result struct {
	DeletedRefreshTokens int64 `json:"deletedRefreshTokens"`
	SweptRateLimitKeys   int   `json:"sweptRateLimitKeys"`
}

type CleanupHandler struct {
	purger     TokenPurger
	limiters   []*ratelimit.Limiter
	idle       time.Duration
	logger     Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(
	purger TokenPurger,
	logger Logger,
	cronSecret string,
	batchSize int,
	idle time.Duration,
	limiters ...*ratelimit.Limiter,
) *CleanupHandler {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &CleanupHandler{
		purger:     purger,
		limiters:   limiters,
		idle:       idle,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		httpx.WriteError(w, r, apperr.NotFound("Not found"))
		return
	}

	token, ok := httpx.BearerToken(r)
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) != 1 {
		httpx.WriteError(w, r, apperr.Unauthorized("Unauthorized"))
		return
	}

	result, err := h.Run(r.Context())
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

// Run purges expired refresh tokens batch by batch and drops idle rate limit
// buckets.
func (h *CleanupHandler) Run(ctx context.Context) (Result, error) {
	var result Result

	for round := 0; round < maxRounds; round++ {
		deleted, err := h.purger.PurgeExpired(ctx, h.batchSize)
		if err != nil {
			return result, err
		}
		result.DeletedRefreshTokens += deleted
		if deleted < int64(h.batchSize) {
			break
		}
	}

	for _, limiter := range h.limiters {
		result.SweptRateLimitKeys += limiter.Sweep(h.idle)
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens": result.DeletedRefreshTokens,
		"swept_rate_limit_keys":  result.SweptRateLimitKeys,
	})

	return result, nil
}
