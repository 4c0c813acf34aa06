package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bravo68web/tableidentity/internal/application/dto"
	"github.com/bravo68web/tableidentity/internal/indexing"
	"github.com/bravo68web/tableidentity/internal/snapshot"
)

// AdminHandler handles index maintenance and snapshots
type AdminHandler struct {
	indexes   *indexing.Builder
	snapshots *snapshot.Manager
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(indexes *indexing.Builder, snapshots *snapshot.Manager) *AdminHandler {
	return &AdminHandler{indexes: indexes, snapshots: snapshots}
}

// RebuildIndexes rebuilds the requested secondary indexes from the users and logins tables
func (h *AdminHandler) RebuildIndexes(c *gin.Context) {
	var req dto.RebuildIndexRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}

	targets := indexing.AllIndexes
	if len(req.Indexes) > 0 {
		targets = make([]indexing.Index, 0, len(req.Indexes))
		for _, name := range req.Indexes {
			idx, err := indexing.ParseIndex(name)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			targets = append(targets, idx)
		}
	}

	resp := dto.RebuildIndexResponse{Indexes: make([]dto.IndexStats, 0, len(targets))}
	for _, idx := range targets {
		stats, err := h.indexes.Rebuild(c.Request.Context(), idx)
		if err != nil {
			respondError(c, err)
			return
		}
		resp.Indexes = append(resp.Indexes, dto.NewIndexStats(stats))
	}
	c.JSON(http.StatusOK, resp)
}

// ListSnapshots lists stored snapshots
func (h *AdminHandler) ListSnapshots(c *gin.Context) {
	infos, err := h.snapshots.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	resp := dto.ListSnapshotsResponse{Snapshots: make([]dto.SnapshotInfo, 0, len(infos)), Total: len(infos)}
	for _, info := range infos {
		resp.Snapshots = append(resp.Snapshots, dto.SnapshotInfo{Name: info.Name, Size: info.Size, ModTime: info.ModTime})
	}
	c.JSON(http.StatusOK, resp)
}

// CreateSnapshot exports every identity table
func (h *AdminHandler) CreateSnapshot(c *gin.Context) {
	var req dto.CreateSnapshotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}

	manifest, err := h.snapshots.Export(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toManifestDTO(manifest))
}

// RestoreSnapshot upserts the rows of a snapshot into the identity tables
func (h *AdminHandler) RestoreSnapshot(c *gin.Context) {
	var req dto.CreateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		badRequest(c, "name is required")
		return
	}

	manifest, err := h.snapshots.Restore(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toManifestDTO(manifest))
}

// DeleteSnapshot removes the snapshot given by the name query parameter
func (h *AdminHandler) DeleteSnapshot(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		badRequest(c, "name is required")
		return
	}
	if err := h.snapshots.Delete(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PruneSnapshots deletes all but the newest snapshots
func (h *AdminHandler) PruneSnapshots(c *gin.Context) {
	var req dto.PruneSnapshotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "keep must be a positive number")
		return
	}
	removed, err := h.snapshots.Prune(c.Request.Context(), req.Keep)
	if err != nil {
		respondError(c, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	c.JSON(http.StatusOK, dto.PruneSnapshotsResponse{Removed: removed, Kept: req.Keep})
}

func toManifestDTO(m *snapshot.Manifest) dto.SnapshotManifest {
	return dto.SnapshotManifest{
		Name:      m.Name,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		Counts:    m.Counts,
	}
}
