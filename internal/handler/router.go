package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/openclaw/userbot-server-go/internal/config"
	"github.com/openclaw/userbot-server-go/internal/middleware"
)

type RouterDeps struct {
	Auth     *AuthHandler
	Sessions *SessionsHandler
	Health   *HealthHandler
	Admin    *AdminHandler

	BodyLimit       *middleware.BodyLimitMiddleware
	SecurityHeaders *middleware.SecurityHeadersMiddleware
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(d.SecurityHeaders.Handler)
	r.Use(d.BodyLimit.Handler)

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/health", d.Health.ServeHTTP)

	r.Mount("/sessions", d.Sessions.Routes())

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Mount("/auth", d.Auth.Routes())
		r.Mount("/admin", d.Admin.Routes())
	})

	return r
}
