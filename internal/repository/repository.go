// Package repository defines the persistence boundary of the plot service.
// The core never touches a shared database client directly; every consumer
// receives one of these interfaces, which keeps the engine testable with
// in-memory fakes.
package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"plot-server/internal/models"
)

// DBTX abstracts a pgx pool or transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PlotRepository persists plot documents (workflow/metadata JSONB columns).
type PlotRepository interface {
	Create(ctx context.Context, plot *models.Plot) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plot, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Plot, error)
	Update(ctx context.Context, plot *models.Plot) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// VersionRepository persists the append-only version chain per project.
// Create surfaces a chain fork (two versions claiming the same base or
// chain position) as models.ErrVersionConflict. GetLatest selects the tip
// by seq, the chain position counter.
type VersionRepository interface {
	Create(ctx context.Context, version *models.Version) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Version, error)
	GetLatest(ctx context.Context, projectID uuid.UUID) (*models.Version, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Version, error)
}

// ProjectStateRepository stores the live mutable state blob per project.
type ProjectStateRepository interface {
	Get(ctx context.Context, projectID uuid.UUID) (json.RawMessage, error)
	Save(ctx context.Context, projectID uuid.UUID, state json.RawMessage) error
}
