package router

import (
	"net/http"

	"github.com/bravo68web/tableidentity/internal/application/dto"
	"github.com/bravo68web/tableidentity/internal/transport/http/handler"
	"github.com/bravo68web/tableidentity/pkg/openapi"
)

func (r *Router) authRouter() {
	v1 := r.server.Group("/api/v1")
	authHandler := handler.NewAuthHandler(r.Deps.SessionService, r.Deps.UserService)

	docs := r.server.OpenAPIGenerator
	docs.RegisterDocs("POST", "/api/v1/auth/token", openapi.RouteDocs{
		Summary:     "Sign in",
		Description: "Exchanges a username and password for a session token",
		Tags:        []string{"Auth"},
		RequestBody: dto.LoginRequest{},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusOK:           {Description: "Session issued", Model: dto.LoginResponse{}},
			http.StatusUnauthorized: {Description: "Invalid username or password"},
			http.StatusLocked:       {Description: "User is locked out"},
		},
	})
	docs.RegisterDocs("GET", "/api/v1/auth/me", openapi.RouteDocs{
		Summary: "Current user",
		Tags:    []string{"Auth"},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusOK:           {Description: "Profile of the signed-in user", Model: dto.UserProfile{}},
			http.StatusUnauthorized: {Description: "Authentication required"},
		},
	})
	docs.RegisterDocs("PUT", "/api/v1/auth/me/password", openapi.RouteDocs{
		Summary:     "Change password",
		Description: "Replaces the password and revokes every session of the user",
		Tags:        []string{"Auth"},
		RequestBody: dto.ChangePasswordRequest{},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusNoContent:    {Description: "Password changed"},
			http.StatusUnauthorized: {Description: "Current password is wrong"},
		},
	})

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/token", authHandler.Login)
		authGroup.POST("/password/check", r.auth.RequireAdmin(), authHandler.CheckPassword)

		me := authGroup.Group("/me", r.auth.RequireAuth())
		me.GET("", authHandler.Me)
		me.PUT("/password", authHandler.ChangePassword)
	}
}
