package dto

import (
	"time"

	"github.com/bravo68web/tableidentity/internal/indexing"
)

// RebuildIndexRequest selects the indexes to rebuild; empty means all
type RebuildIndexRequest struct {
	Indexes []string `json:"indexes"`
}

// IndexStats summarises the rebuild of one index
type IndexStats struct {
	Index      string `json:"index"`
	Scanned    int    `json:"scanned"`
	Written    int    `json:"written"`
	Skipped    int    `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
}

// NewIndexStats converts rebuild stats to their response form
func NewIndexStats(s *indexing.Stats) IndexStats {
	return IndexStats{
		Index:      string(s.Index),
		Scanned:    s.Scanned,
		Written:    s.Written,
		Skipped:    s.Skipped,
		DurationMS: s.Duration.Milliseconds(),
	}
}

// RebuildIndexResponse lists the stats of every rebuilt index
type RebuildIndexResponse struct {
	Indexes []IndexStats `json:"indexes"`
}

// CreateSnapshotRequest optionally names a new snapshot
type CreateSnapshotRequest struct {
	Name string `json:"name"`
}

// SnapshotManifest describes an exported or restored snapshot
type SnapshotManifest struct {
	Name      string         `json:"name"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Counts    map[string]int `json:"counts"`
}

// SnapshotInfo describes a stored snapshot
type SnapshotInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListSnapshotsResponse lists stored snapshots
type ListSnapshotsResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
	Total     int            `json:"total"`
}

// PruneSnapshotsRequest sets how many of the newest snapshots survive
type PruneSnapshotsRequest struct {
	Keep int `json:"keep" binding:"required,min=1"`
}

// PruneSnapshotsResponse names the snapshots a prune removed
type PruneSnapshotsResponse struct {
	Removed []string `json:"removed"`
	Kept    int      `json:"kept"`
}

// TableStatus reports whether a table was provisioned
type TableStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}
