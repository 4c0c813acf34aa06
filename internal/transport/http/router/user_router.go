package router

import (
	"net/http"

	"github.com/bravo68web/tableidentity/internal/application/dto"
	"github.com/bravo68web/tableidentity/internal/transport/http/handler"
	"github.com/bravo68web/tableidentity/pkg/openapi"
)

func (r *Router) userRouter() {
	v1 := r.server.Group("/api/v1")
	userHandler := handler.NewUserHandler(r.Deps.UserService)
	membershipHandler := handler.NewMembershipHandler(r.Deps.UserService)

	docs := r.server.OpenAPIGenerator
	docs.RegisterDocs("POST", "/api/v1/users", openapi.RouteDocs{
		Summary:     "Create user",
		Description: "Creates a user with its username, email and login index rows",
		Tags:        []string{"Users"},
		RequestBody: dto.CreateUserRequest{},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusCreated:    {Description: "User created", Model: dto.UserInfo{}},
			http.StatusBadRequest: {Description: "Invalid username, email or password"},
			http.StatusConflict:   {Description: "Username or email already taken"},
		},
	})
	docs.RegisterDocs("GET", "/api/v1/users", openapi.RouteDocs{
		Summary:     "Search usernames",
		Description: "Lists usernames starting with the prefix query parameter",
		Tags:        []string{"Users"},
		Query: []openapi.QueryParam{
			{Name: "prefix", Description: "Username prefix; empty lists every username"},
			{Name: "limit", Type: "integer", Description: "Maximum number of usernames (default 50, at most 1000)"},
		},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusOK: {Description: "Matching usernames", Model: dto.SearchUsersResponse{}},
		},
	})
	docs.RegisterDocs("GET", "/api/v1/users/lookup", openapi.RouteDocs{
		Summary:     "Find user",
		Description: "Finds a user by username, email, or provider and key",
		Tags:        []string{"Users"},
		Query: []openapi.QueryParam{
			{Name: "username"},
			{Name: "email"},
			{Name: "provider", Description: "External login provider, used together with key"},
			{Name: "key", Description: "Provider key of the external login"},
		},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusOK:       {Description: "User found", Model: dto.UserInfo{}},
			http.StatusNotFound: {Description: "No user matches"},
		},
	})
	docs.RegisterDocs("GET", "/api/v1/users/:id", openapi.RouteDocs{
		Summary: "Get user",
		Tags:    []string{"Users"},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusOK:       {Description: "User with roles, claims and logins", Model: dto.UserProfile{}},
			http.StatusNotFound: {Description: "User not found"},
		},
	})
	docs.RegisterDocs("PATCH", "/api/v1/users/:id", openapi.RouteDocs{
		Summary:     "Update user",
		Description: "Applies a partial profile update; a new email moves the email index entry",
		Tags:        []string{"Users"},
		RequestBody: dto.UpdateUserRequest{},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusOK:       {Description: "User updated", Model: dto.UserInfo{}},
			http.StatusConflict: {Description: "Email taken or user modified concurrently"},
		},
	})
	docs.RegisterDocs("PUT", "/api/v1/users/:id/password", openapi.RouteDocs{
		Summary:     "Reset password",
		Tags:        []string{"Users"},
		RequestBody: dto.ResetPasswordRequest{},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusNoContent: {Description: "Password reset and lockout lifted"},
		},
	})

	users := v1.Group("/users", r.auth.RequireAdmin())
	{
		users.POST("", userHandler.CreateUser)
		users.GET("", userHandler.SearchUsers)
		users.GET("/lookup", userHandler.LookupUser)
		users.GET("/:id", userHandler.GetUser)
		users.PATCH("/:id", userHandler.UpdateUser)
		users.DELETE("/:id", userHandler.DeleteUser)
		users.POST("/:id/unlock", userHandler.UnlockUser)
		users.PUT("/:id/password", userHandler.ResetPassword)

		users.GET("/:id/roles", membershipHandler.ListRoles)
		users.POST("/:id/roles", membershipHandler.AddRole)
		users.DELETE("/:id/roles/:role", membershipHandler.RemoveRole)
		users.POST("/:id/claims", membershipHandler.AddClaim)
		users.DELETE("/:id/claims", membershipHandler.RemoveClaim)
		users.POST("/:id/logins", membershipHandler.AddLogin)
		users.DELETE("/:id/logins", membershipHandler.RemoveLogin)
	}
}
