package router

import (
	"net/http"

	"github.com/bravo68web/tableidentity/internal/application/dto"
	"github.com/bravo68web/tableidentity/internal/transport/http/handler"
	"github.com/bravo68web/tableidentity/pkg/openapi"
)

func (r *Router) adminRouter() {
	v1 := r.server.Group("/api/v1")
	adminHandler := handler.NewAdminHandler(r.Deps.Indexes, r.Deps.Snapshots)

	docs := r.server.OpenAPIGenerator
	docs.RegisterDocs("POST", "/api/v1/admin/indexes/rebuild", openapi.RouteDocs{
		Summary:     "Rebuild indexes",
		Description: "Rewrites the username, email and login indexes from the source tables",
		Tags:        []string{"Admin"},
		RequestBody: dto.RebuildIndexRequest{},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusOK: {Description: "Rebuild stats", Model: dto.RebuildIndexResponse{}},
		},
	})
	docs.RegisterDocs("POST", "/api/v1/admin/snapshots", openapi.RouteDocs{
		Summary:     "Create snapshot",
		Tags:        []string{"Admin"},
		RequestBody: dto.CreateSnapshotRequest{},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusCreated: {Description: "Snapshot written", Model: dto.SnapshotManifest{}},
		},
	})
	docs.RegisterDocs("POST", "/api/v1/admin/snapshots/restore", openapi.RouteDocs{
		Summary:     "Restore snapshot",
		Tags:        []string{"Admin"},
		RequestBody: dto.CreateSnapshotRequest{},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusOK:                  {Description: "Snapshot restored", Model: dto.SnapshotManifest{}},
			http.StatusNotFound:            {Description: "Snapshot not found"},
			http.StatusUnprocessableEntity: {Description: "Snapshot is corrupt"},
		},
	})
	docs.RegisterDocs("DELETE", "/api/v1/admin/snapshots", openapi.RouteDocs{
		Summary: "Delete snapshot",
		Tags:    []string{"Admin"},
		Query: []openapi.QueryParam{
			{Name: "name", Description: "Snapshot to delete", Required: true},
		},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusNoContent: {Description: "Snapshot deleted"},
			http.StatusNotFound:  {Description: "Snapshot not found"},
		},
	})
	docs.RegisterDocs("POST", "/api/v1/admin/snapshots/prune", openapi.RouteDocs{
		Summary:     "Prune snapshots",
		Description: "Deletes all but the newest snapshots by modification time",
		Tags:        []string{"Admin"},
		RequestBody: dto.PruneSnapshotsRequest{},
		Responses: map[int]openapi.ResponseDoc{
			http.StatusOK: {Description: "Removed snapshots", Model: dto.PruneSnapshotsResponse{}},
		},
	})

	admin := v1.Group("/admin", r.auth.RequireAdmin())
	{
		admin.POST("/indexes/rebuild", adminHandler.RebuildIndexes)
		admin.GET("/snapshots", adminHandler.ListSnapshots)
		admin.POST("/snapshots", adminHandler.CreateSnapshot)
		admin.DELETE("/snapshots", adminHandler.DeleteSnapshot)
		admin.POST("/snapshots/restore", adminHandler.RestoreSnapshot)
		admin.POST("/snapshots/prune", adminHandler.PruneSnapshots)
	}
}
