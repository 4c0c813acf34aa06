package openapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	jsonContent = "application/json"

	// BearerAuth is the security scheme name used for protected routes
	BearerAuth = "bearerAuth"

	errorSchemaRef = "#/components/schemas/Error"
)

type RouteDocs struct {
	Summary     string
	Description string
	Tags        []string
	Query       []QueryParam
	RequestBody interface{} // Struct for request body schema
	Responses   map[int]ResponseDoc
}

// QueryParam documents one query string parameter
type QueryParam struct {
	Name        string
	Description string
	Type        string // defaults to string
	Required    bool
}

type ResponseDoc struct {
	Description string
	Model       interface{} // Struct for response schema
	Example     interface{} // Example value
}

type Generator struct {
	engine    *gin.Engine
	info      Info
	servers   []Server
	tags      []Tag
	routeDocs map[string]RouteDocs
	secured   []string
}

func NewGenerator(engine *gin.Engine, info Info, servers []Server, tags []Tag) *Generator {
	return &Generator{
		engine:    engine,
		info:      info,
		servers:   servers,
		tags:      tags,
		routeDocs: make(map[string]RouteDocs),
	}
}

// RegisterDocs registers documentation for a specific route
// method: GET, POST, etc.
// path: /api/v1/users/:id
func (g *Generator) RegisterDocs(method, path string, docs RouteDocs) {
	g.routeDocs[method+" "+path] = docs
}

// RequireBearer marks every route under the given path prefixes as
// requiring a bearer token, documented or not.
func (g *Generator) RequireBearer(prefixes ...string) {
	g.secured = append(g.secured, prefixes...)
}

func (g *Generator) Generate() *OpenAPI {
	doc := &OpenAPI{
		OpenAPI: "3.0.3",
		Info:    g.info,
		Servers: g.servers,
		Tags:    g.tags,
		Paths:   make(map[string]*PathItem),
		Components: Components{
			Schemas: map[string]*Schema{"Error": errorSchema()},
		},
	}

	for _, route := range g.engine.Routes() {
		path, params := parsePath(route.Path)
		item, ok := doc.Paths[path]
		if !ok {
			item = &PathItem{}
			doc.Paths[path] = item
		}

		op := &Operation{
			OperationID: getOperationID(route.Handler),
			Parameters:  params,
			Responses:   make(map[string]Response),
		}
		op.Summary = op.OperationID
		if docs, ok := g.routeDocs[route.Method+" "+route.Path]; ok {
			applyDocs(op, docs)
		}
		if len(op.Responses) == 0 {
			op.Responses["200"] = Response{Description: "Successful response"}
		}
		if g.isSecured(route.Path) {
			op.Security = []SecurityRequirement{{BearerAuth: {}}}
			if _, ok := op.Responses["401"]; !ok {
				op.Responses["401"] = errorResponse("Missing, invalid or revoked token")
			}
			if doc.Components.SecuritySchemes == nil {
				doc.Components.SecuritySchemes = map[string]SecurityScheme{
					BearerAuth: {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
				}
			}
		}

		setOperation(item, route.Method, op)
	}

	return doc
}

func (g *Generator) isSecured(path string) bool {
	for _, prefix := range g.secured {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func applyDocs(op *Operation, docs RouteDocs) {
	if docs.Summary != "" {
		op.Summary = docs.Summary
	}
	op.Description = docs.Description
	op.Tags = docs.Tags

	for _, q := range docs.Query {
		typ := q.Type
		if typ == "" {
			typ = "string"
		}
		op.Parameters = append(op.Parameters, Parameter{
			Name:        q.Name,
			In:          "query",
			Description: q.Description,
			Required:    q.Required,
			Schema:      &Schema{Type: typ},
		})
	}

	if docs.RequestBody != nil {
		op.RequestBody = &RequestBody{
			Content:  map[string]MediaType{jsonContent: {Schema: GenerateSchema(docs.RequestBody)}},
			Required: true,
		}
		if _, ok := docs.Responses[http.StatusBadRequest]; !ok {
			op.Responses["400"] = errorResponse("Malformed request body")
		}
	}

	for status, rd := range docs.Responses {
		op.Responses[strconv.Itoa(status)] = buildResponse(status, rd)
	}
}

// buildResponse renders one documented response. Error statuses without a
// model share the Error component.
func buildResponse(status int, rd ResponseDoc) Response {
	if rd.Model == nil && status >= http.StatusBadRequest {
		return errorResponse(rd.Description)
	}
	resp := Response{Description: rd.Description}
	if rd.Model == nil && rd.Example == nil {
		return resp
	}

	var schema *Schema
	if rd.Model != nil {
		schema = GenerateSchema(rd.Model)
	} else {
		schema = &Schema{}
	}
	schema.Example = rd.Example
	resp.Content = map[string]MediaType{jsonContent: {Schema: schema}}
	return resp
}

func errorResponse(description string) Response {
	return Response{
		Description: description,
		Content:     map[string]MediaType{jsonContent: {Schema: &Schema{Ref: errorSchemaRef}}},
	}
}

// errorSchema matches the body written by the HTTP error handler
func errorSchema() *Schema {
	return &Schema{
		Type:     "object",
		Required: []string{"error", "message"},
		Properties: map[string]*Schema{
			"error":   {Type: "string", Description: "Machine readable code such as not_found or duplicate_email"},
			"message": {Type: "string"},
			"details": {Type: "object", AdditionalProperties: &Schema{}},
		},
	}
}

func setOperation(item *PathItem, method string, op *Operation) {
	switch method {
	case http.MethodGet:
		item.Get = op
	case http.MethodPost:
		item.Post = op
	case http.MethodPut:
		item.Put = op
	case http.MethodDelete:
		item.Delete = op
	case http.MethodPatch:
		item.Patch = op
	case http.MethodHead:
		item.Head = op
	case http.MethodOptions:
		item.Options = op
	}
}

// parsePath converts a gin path to an OpenAPI path and lists its path
// parameters, e.g. /users/:id/roles/:role -> /users/{id}/roles/{role}.
func parsePath(ginPath string) (string, []Parameter) {
	var params []Parameter
	parts := strings.Split(ginPath, "/")
	for i, part := range parts {
		if part == "" || (part[0] != ':' && part[0] != '*') {
			continue
		}
		name := part[1:]
		parts[i] = "{" + name + "}"
		params = append(params, Parameter{
			Name:     name,
			In:       "path",
			Required: true,
			Schema:   &Schema{Type: "string"},
		})
	}
	return strings.Join(parts, "/"), params
}

func getOperationID(handlerName string) string {
	// handlerName looks like ".../internal/transport/http/handler.(*UserHandler).GetUser-fm";
	// the result is "handler_UserHandler_GetUser".
	name := handlerName[strings.LastIndex(handlerName, "/")+1:]
	name = strings.TrimSuffix(name, "-fm")
	return strings.NewReplacer("(", "", ")", "", "*", "", ".", "_").Replace(name)
}
