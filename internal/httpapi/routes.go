package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DoyleJ11/arena-harness/internal/arena"
	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/ws"
)

const ServerName = "arena-stub"

type Options struct {
	APIPrefix string // e.g. "/api"
	WSPath    string // e.g. "/game"
}

func SetupRoutes(a *arena.Arena, log logging.Logger, opts Options) http.Handler {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	if opts.WSPath == "" {
		opts.WSPath = "/game"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/", Healthz)
	r.Get("/health", Healthz)
	r.Route(opts.APIPrefix, func(r chi.Router) {
		r.Get("/", Healthz)
		r.Get("/health", Healthz)
		r.Get("/status", Status(a))
		r.Post("/players/register", RegisterPlayer(a))
		r.Get("/server/info", ServerInfo(a, ServerName, opts.WSPath))
	})

	wsHandler := ws.Handler(a, log)
	r.Get(opts.WSPath, wsHandler)
	r.Get(opts.WSPath+"/{playerID}", wsHandler)
	return r
}
