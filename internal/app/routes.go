package app

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/cors"

	"samples-backend/internal/auth"
	"samples-backend/internal/httpx"
	"samples-backend/internal/maintenance"
	"samples-backend/internal/observability"
	"samples-backend/internal/ratelimit"
	"samples-backend/internal/sample"
	"samples-backend/internal/user"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the constructed components NewHandler routes to.
type Deps struct {
	Logger    *observability.Logger
	Tokens    *auth.TokenService
	Users     auth.UserLookup
	Admission *ratelimit.Admission
	CORS      *cors.Cors
	Database  Pinger

	Auth    *auth.Handler
	Samples *sample.Handler
	Profile *user.Handler
	Cleanup *maintenance.CleanupHandler
}

func NewCORS(allowedOrigins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           3600,
	})
}

// NewHandler builds the request pipeline. From the outside in: panic recovery,
// request logging, CORS (preflights end here), rate limiting, bearer
// authentication, then routing. Everything under /api outside /api/auth
// requires an authenticated caller.
func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	protected := func(h http.HandlerFunc) http.Handler {
		return auth.RequireUser(h)
	}

	mux.HandleFunc("POST /api/auth/register", deps.Auth.Register)
	mux.HandleFunc("POST /api/auth/login", deps.Auth.Login)
	mux.HandleFunc("POST /api/auth/refresh", deps.Auth.Refresh)
	mux.HandleFunc("POST /api/auth/logout", deps.Auth.Logout)

	mux.Handle("POST /api/samples", protected(deps.Samples.Create))
	mux.Handle("GET /api/samples", protected(deps.Samples.List))
	mux.Handle("GET /api/samples/my-samples", protected(deps.Samples.Mine))
	mux.Handle("GET /api/samples/user/{userId}", protected(deps.Samples.ByUser))
	mux.Handle("GET /api/samples/{id}", protected(deps.Samples.Get))
	mux.Handle("PUT /api/samples/{id}", protected(deps.Samples.Update))
	mux.Handle("DELETE /api/samples/{id}", protected(deps.Samples.Delete))

	mux.Handle("GET /api/users/me", protected(deps.Profile.Me))
	mux.Handle("PATCH /api/users/me", protected(deps.Profile.UpdateProfile))
	mux.Handle("DELETE /api/users/me", protected(deps.Profile.DeleteAccount))
	mux.Handle("POST /api/users/me/change-password", protected(deps.Profile.ChangePassword))
	mux.Handle("GET /api/users/profile/{username}", protected(deps.Profile.ByUsername))

	mux.HandleFunc("GET /health", healthHandler(deps.Database))
	if deps.Cleanup != nil {
		mux.HandleFunc("GET /internal/maintenance/cleanup", deps.Cleanup.Handle)
		mux.HandleFunc("POST /internal/maintenance/cleanup", deps.Cleanup.Handle)
	}

	var handler http.Handler = auth.Authenticate(deps.Tokens, deps.Users)(mux)
	handler = deps.Admission.Middleware(handler)
	handler = deps.CORS.Handler(handler)
	handler = observability.RequestLoggingMiddleware(deps.Logger, handler)
	return observability.RecoverMiddleware(deps.Logger, handler)
}

func healthHandler(database Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		httpx.WriteJSON(w, status, body)
	}
}
