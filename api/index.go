package api

import (
	"net/http"
	"sync"

	"samples-backend/internal/app"
	"samples-backend/internal/apperr"
	"samples-backend/internal/httpx"
	"samples-backend/internal/observability"
)

var (
	initOnce   sync.Once
	apiRuntime *app.Runtime
	initErr    error
)

// Handler is the serverless entrypoint. The runtime is built once per
// instance and reused across invocations.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		apiRuntime, initErr = app.Build(app.Options{Serverless: true})
		if initErr != nil {
			observability.NewLogger().Error("bootstrap_failed", map[string]any{"error": initErr.Error()})
		}
	})

	if initErr != nil {
		httpx.WriteError(w, r, apperr.Unexpected(initErr))
		return
	}

	apiRuntime.Handler.ServeHTTP(w, r)
}
