package router

import (
	"github.com/bravo68web/tableidentity/internal/injectable"
	"github.com/bravo68web/tableidentity/internal/server"
	"github.com/bravo68web/tableidentity/internal/transport/http/middleware"
)

type Router struct {
	server *server.Server
	Deps   *injectable.Dependencies
	auth   *middleware.AuthMiddleware
}

// NewRouter creates a new Router instance.
func NewRouter(s *server.Server) *Router {
	return &Router{
		server: s,
		Deps:   s.Deps,
		auth:   middleware.NewAuthMiddleware(s.Deps.SessionService),
	}
}

// RegisterRoutes sets up the routes of the server. The docs routes come
// last so the generated document covers every other route.
func (r *Router) RegisterRoutes() {
	r.server.OpenAPIGenerator.RequireBearer("/api/v1/auth/me", "/api/v1/users", "/api/v1/admin")

	r.healthRouter()
	r.authRouter()
	r.userRouter()
	r.adminRouter()
	r.docsRouter()
}
