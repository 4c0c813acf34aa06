package router

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/bravo68web/tableidentity/pkg/openapi"
)

func (r *Router) docsRouter() {
	// The document is generated once, on first request, after every route is registered.
	spec := sync.OnceValue(func() *openapi.OpenAPI {
		return r.server.OpenAPIGenerator.Generate()
	})

	r.server.GET("/openapi.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, spec())
	})
	r.server.GET("/openapi.yaml", func(c *gin.Context) {
		out, err := spec().YAML()
		if err != nil {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "application/yaml", out)
	})
}
