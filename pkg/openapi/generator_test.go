package openapi

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name   string   `json:"name" binding:"required,max=64"`
	Tags   []string `json:"tags,omitempty"`
	Secret string   `json:"-"`
	Count  int      `json:"count"`
}

type auditFields struct {
	CreatedAt time.Time `json:"created_at"`
}

type samplePatch struct {
	auditFields
	Email  *string           `json:"email"`
	Claims map[string]string `json:"claims"`
	Stamp  []byte            `json:"stamp"`
	TTL    time.Duration     `json:"ttl"`
}

func TestGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	noop := func(*gin.Context) {}
	engine.GET("/api/v1/users/:id", noop)
	engine.POST("/api/v1/users", noop)
	engine.GET("/api/v1/users", noop)

	g := NewGenerator(engine, Info{Title: "test", Version: "1"}, nil, nil)
	g.RegisterDocs("POST", "/api/v1/users", RouteDocs{
		Summary:     "Create",
		Tags:        []string{"Users"},
		RequestBody: sampleRequest{},
		Responses:   map[int]ResponseDoc{201: {Description: "created", Model: sampleRequest{}}},
	})
	g.RegisterDocs("GET", "/api/v1/users", RouteDocs{
		Query: []QueryParam{{Name: "limit", Type: "integer"}, {Name: "prefix"}},
	})

	spec := g.Generate()
	require.Contains(t, spec.Paths, "/api/v1/users/{id}")

	get := spec.Paths["/api/v1/users/{id}"].Get
	require.NotNil(t, get)
	require.Len(t, get.Parameters, 1)
	assert.Equal(t, "id", get.Parameters[0].Name)
	assert.Equal(t, "path", get.Parameters[0].In)
	assert.Contains(t, get.Responses, "200")

	post := spec.Paths["/api/v1/users"].Post
	require.NotNil(t, post)
	assert.Equal(t, "Create", post.Summary)
	body := post.RequestBody.Content["application/json"].Schema
	assert.Equal(t, "object", body.Type)
	assert.Equal(t, "array", body.Properties["tags"].Type)
	assert.Equal(t, "integer", body.Properties["count"].Type)
	assert.NotContains(t, body.Properties, "Secret")
	assert.Equal(t, []string{"name"}, body.Required)
	assert.Contains(t, post.Responses, "201")
	require.Contains(t, post.Responses, "400")
	assert.Equal(t, errorSchemaRef, post.Responses["400"].Content["application/json"].Schema.Ref)

	search := spec.Paths["/api/v1/users"].Get
	require.Len(t, search.Parameters, 2)
	assert.Equal(t, "query", search.Parameters[0].In)
	assert.Equal(t, "integer", search.Parameters[0].Schema.Type)

	out, err := spec.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "openapi: 3.0.3")
}

func TestGenerateSecurity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	noop := func(*gin.Context) {}
	engine.POST("/api/v1/auth/token", noop)
	engine.GET("/api/v1/auth/me", noop)
	engine.PUT("/api/v1/auth/me/password", noop)
	engine.DELETE("/api/v1/admin/users/:id", noop)
	engine.GET("/api/v1/administrators", noop)

	g := NewGenerator(engine, Info{Title: "test", Version: "1"}, nil, nil)
	g.RequireBearer("/api/v1/auth/me", "/api/v1/admin")
	g.RegisterDocs("DELETE", "/api/v1/admin/users/:id", RouteDocs{
		Responses: map[int]ResponseDoc{
			204: {Description: "Deleted"},
			404: {Description: "No such user"},
		},
	})

	spec := g.Generate()
	assert.Empty(t, spec.Paths["/api/v1/auth/token"].Post.Security)
	assert.Empty(t, spec.Paths["/api/v1/administrators"].Get.Security)
	assert.NotEmpty(t, spec.Paths["/api/v1/auth/me"].Get.Security)
	assert.NotEmpty(t, spec.Paths["/api/v1/auth/me/password"].Put.Security)

	del := spec.Paths["/api/v1/admin/users/{id}"].Delete
	require.NotNil(t, del)
	assert.Equal(t, []SecurityRequirement{{BearerAuth: {}}}, del.Security)
	assert.Contains(t, del.Responses, "401")
	assert.Nil(t, del.Responses["204"].Content)
	assert.Equal(t, errorSchemaRef, del.Responses["404"].Content["application/json"].Schema.Ref)

	require.Contains(t, spec.Components.SecuritySchemes, BearerAuth)
	assert.Equal(t, "bearer", spec.Components.SecuritySchemes[BearerAuth].Scheme)
	assert.Contains(t, spec.Components.Schemas, "Error")
}

func TestGenerateSchema(t *testing.T) {
	s := GenerateSchema(samplePatch{})
	require.NotNil(t, s)

	assert.Equal(t, "date-time", s.Properties["created_at"].Format)
	assert.True(t, s.Properties["email"].Nullable)
	assert.Equal(t, "string", s.Properties["email"].Type)
	assert.Equal(t, "object", s.Properties["claims"].Type)
	assert.Equal(t, "string", s.Properties["claims"].AdditionalProperties.Type)
	assert.Equal(t, "byte", s.Properties["stamp"].Format)
	assert.Equal(t, "integer", s.Properties["ttl"].Type)
	assert.Empty(t, s.Required)

	assert.Nil(t, GenerateSchema(nil))
}

func TestParsePath(t *testing.T) {
	path, params := parsePath("/api/v1/users/:id/roles/:role")
	assert.Equal(t, "/api/v1/users/{id}/roles/{role}", path)
	require.Len(t, params, 2)
	assert.Equal(t, "role", params[1].Name)

	path, params = parsePath("/healthz")
	assert.Equal(t, "/healthz", path)
	assert.Empty(t, params)
}

func TestGetOperationID(t *testing.T) {
	id := getOperationID("github.com/bravo68web/tableidentity/internal/transport/http/handler.(*UserHandler).GetUser-fm")
	assert.Equal(t, "handler_UserHandler_GetUser", id)
}
