package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"plot-server/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

// Compile-time check
var _ VersionRepository = (*pgVersionRepository)(nil)

type pgVersionRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgVersionRepository creates a PostgreSQL-backed VersionRepository.
func NewPgVersionRepository(db DBTX, logger *zap.Logger) VersionRepository {
	return &pgVersionRepository{
		db:     db,
		logger: logger.Named("PgVersionRepo"),
	}
}

// Create appends a version to the chain. The UNIQUE (project_id,
// base_version_id) constraint rejects a second version claiming the same
// base, which is surfaced as models.ErrVersionConflict for the caller to
// retry.
func (r *pgVersionRepository) Create(ctx context.Context, version *models.Version) error {
	query := `
        INSERT INTO versions
            (id, project_id, seq, snapshot, source, base_version_id, created_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7)
    `
	logFields := []zap.Field{
		zap.String("versionID", version.ID.String()),
		zap.String("projectID", version.ProjectID.String()),
		zap.String("source", string(version.Source)),
	}
	r.logger.Debug("Creating version", logFields...)

	_, err := r.db.Exec(ctx, query,
		version.ID, version.ProjectID, version.Seq, []byte(version.Snapshot), version.Source, version.BaseVersionID, version.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			r.logger.Warn("Version chain conflict on insert", append(logFields, zap.Error(err))...)
			return models.ErrVersionConflict
		}
		r.logger.Error("Failed to create version", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create version: %w", err)
	}
	r.logger.Info("Version created successfully", logFields...)
	return nil
}

func (r *pgVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Version, error) {
	query := `
        SELECT id, project_id, seq, snapshot, source, base_version_id, created_at
        FROM versions
        WHERE id = $1
    `
	version := &models.Version{}
	logFields := []zap.Field{zap.String("versionID", id.String())}

	err := r.db.QueryRow(ctx, query, id).Scan(
		&version.ID, &version.ProjectID, &version.Seq, &version.Snapshot, &version.Source, &version.BaseVersionID, &version.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Version not found by ID", logFields...)
			return nil, models.ErrVersionNotFound
		}
		r.logger.Error("Failed to get version by ID", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to get version %s: %w", id, err)
	}
	return version, nil
}

func (r *pgVersionRepository) GetLatest(ctx context.Context, projectID uuid.UUID) (*models.Version, error) {
	query := `
        SELECT id, project_id, seq, snapshot, source, base_version_id, created_at
        FROM versions
        WHERE project_id = $1
        ORDER BY seq DESC
        LIMIT 1
    `
	version := &models.Version{}
	logFields := []zap.Field{zap.String("projectID", projectID.String())}

	err := r.db.QueryRow(ctx, query, projectID).Scan(
		&version.ID, &version.ProjectID, &version.Seq, &version.Snapshot, &version.Source, &version.BaseVersionID, &version.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("No versions yet for project", logFields...)
			return nil, models.ErrVersionNotFound
		}
		r.logger.Error("Failed to get latest version", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to get latest version for project %s: %w", projectID, err)
	}
	return version, nil
}

func (r *pgVersionRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Version, error) {
	query := `
        SELECT id, project_id, seq, snapshot, source, base_version_id, created_at
        FROM versions
        WHERE project_id = $1
        ORDER BY seq DESC
    `
	var versions []*models.Version
	if err := pgxscan.Select(ctx, r.db, &versions, query, projectID); err != nil {
		r.logger.Error("Failed to list versions", zap.String("projectID", projectID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list versions for project %s: %w", projectID, err)
	}
	return versions, nil
}
