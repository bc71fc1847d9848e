package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"plot-server/internal/models"
)

// Compile-time check
var _ ProjectStateRepository = (*pgProjectStateRepository)(nil)

type pgProjectStateRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgProjectStateRepository creates a PostgreSQL-backed ProjectStateRepository.
func NewPgProjectStateRepository(db DBTX, logger *zap.Logger) ProjectStateRepository {
	return &pgProjectStateRepository{
		db:     db,
		logger: logger.Named("PgProjectStateRepo"),
	}
}

func (r *pgProjectStateRepository) Get(ctx context.Context, projectID uuid.UUID) (json.RawMessage, error) {
	var state []byte
	err := r.db.QueryRow(ctx, `SELECT state FROM project_states WHERE project_id = $1`, projectID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Project state not found", zap.String("projectID", projectID.String()))
			return nil, models.ErrProjectNotFound
		}
		r.logger.Error("Failed to get project state", zap.String("projectID", projectID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get project state %s: %w", projectID, err)
	}
	return state, nil
}

func (r *pgProjectStateRepository) Save(ctx context.Context, projectID uuid.UUID, state json.RawMessage) error {
	query := `
        INSERT INTO project_states (project_id, state, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (project_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
    `
	_, err := r.db.Exec(ctx, query, projectID, []byte(state), time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to save project state", zap.String("projectID", projectID.String()), zap.Error(err))
		return fmt.Errorf("failed to save project state %s: %w", projectID, err)
	}
	r.logger.Debug("Project state saved", zap.String("projectID", projectID.String()))
	return nil
}
