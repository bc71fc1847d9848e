package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VersionSource records what triggered a snapshot.
type VersionSource string

const (
	VersionSourceAI     VersionSource = "ai"
	VersionSourceManual VersionSource = "manual"
)

// Version is one link in a project's append-only snapshot chain. The root
// version (BaseVersionID == nil) stores the full project state; every later
// version stores only the delta against its base. Versions are never mutated
// or deleted; the chain changes only by growing a new tail.
//
// Seq counts the version's position in the chain (root = 0) and is the tip
// selector: created-at timestamps can collide, seq cannot.
type Version struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ProjectID     uuid.UUID       `db:"project_id" json:"projectId"`
	Seq           int64           `db:"seq" json:"seq"`
	Snapshot      json.RawMessage `db:"snapshot" json:"snapshot"`
	Source        VersionSource   `db:"source" json:"source"`
	BaseVersionID *uuid.UUID      `db:"base_version_id" json:"baseVersionId"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// IsRoot reports whether this version stores a full state rather than a delta.
func (v *Version) IsRoot() bool {
	return v.BaseVersionID == nil
}
