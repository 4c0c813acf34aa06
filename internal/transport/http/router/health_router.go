package router

import (
	"github.com/bravo68web/tableidentity/internal/transport/http/handler"
)

func (r *Router) healthRouter() {
	r.server.GET("/health", handler.HealthHandler())
	r.server.GET("/ready", handler.ReadyHandler(r.Deps.Backend.Client, r.Deps.Store.TableNames().Names()))
}
