package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bubblehq/bubble-backend/internal/application"
)

// Handler is the HTTP adapter entrypoint.
type Handler struct {
	service   *application.Service
	readiness func(ctx context.Context) error
}

// NewHandler constructs an HTTP handler bound to the application service.
// readiness may be nil; it backs /readyz when set.
func NewHandler(service *application.Service, readiness func(ctx context.Context) error) *Handler {
	return &Handler{service: service, readiness: readiness}
}

// NewRouter registers routes and the middleware stack. Authentication is not
// attached per route group: the facade middleware sees every request and the
// route-class table decides which checks apply.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	r.Use(handler.authenticateMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/.well-known/jwks.json", handler.jwks)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/refresh", handler.refresh)
		r.Post("/logout", handler.logout)
		r.Post("/magic-link/request", handler.magicLinkRequest)
		r.Post("/magic-link/verify", handler.magicLinkVerify)
		r.Post("/federated/{provider}", handler.federatedLogin)
		r.Post("/password/reset-request", handler.passwordResetRequest)
		r.Post("/password/reset", handler.passwordReset)
		r.Get("/sessions", handler.listSessions)
		r.Delete("/sessions/{session_id}", handler.revokeSession)
		r.Delete("/sessions", handler.revokeAllSessions)
		r.Get("/login-history", handler.loginHistory)
	})

	return r
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
