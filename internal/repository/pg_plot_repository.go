package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"plot-server/internal/models"
)

// Compile-time check
var _ PlotRepository = (*pgPlotRepository)(nil)

type pgPlotRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgPlotRepository creates a PostgreSQL-backed PlotRepository.
func NewPgPlotRepository(db DBTX, logger *zap.Logger) PlotRepository {
	return &pgPlotRepository{
		db:     db,
		logger: logger.Named("PgPlotRepo"),
	}
}

func (r *pgPlotRepository) Create(ctx context.Context, plot *models.Plot) error {
	query := `
        INSERT INTO plots
            (id, project_id, workflow, metadata, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6)
    `
	workflow, metadata, err := marshalPlotColumns(plot)
	if err != nil {
		return err
	}
	logFields := []zap.Field{zap.String("plotID", plot.ID.String()), zap.String("projectID", plot.ProjectID.String())}
	r.logger.Debug("Creating plot", logFields...)

	_, err = r.db.Exec(ctx, query,
		plot.ID, plot.ProjectID, workflow, metadata, plot.CreatedAt, plot.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create plot", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create plot: %w", err)
	}
	r.logger.Info("Plot created successfully", logFields...)
	return nil
}

func (r *pgPlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Plot, error) {
	query := `
        SELECT id, project_id, workflow, metadata, created_at, updated_at
        FROM plots
        WHERE id = $1
    `
	logFields := []zap.Field{zap.String("plotID", id.String())}
	r.logger.Debug("Getting plot by ID", logFields...)

	plot, err := r.scanPlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Plot not found by ID", logFields...)
			return nil, models.ErrPlotNotFound
		}
		r.logger.Error("Failed to get plot by ID", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to get plot %s: %w", id, err)
	}
	return plot, nil
}

func (r *pgPlotRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Plot, error) {
	query := `
        SELECT id, project_id, workflow, metadata, created_at, updated_at
        FROM plots
        WHERE project_id = $1
        ORDER BY created_at ASC
    `
	logFields := []zap.Field{zap.String("projectID", projectID.String())}
	r.logger.Debug("Listing plots by project", logFields...)

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list plots", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to list plots for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var plots []*models.Plot
	for rows.Next() {
		plot, err := r.scanPlot(rows)
		if err != nil {
			r.logger.Error("Failed to scan plot row", append(logFields, zap.Error(err))...)
			return nil, fmt.Errorf("failed to scan plot row: %w", err)
		}
		plots = append(plots, plot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plot rows: %w", err)
	}
	return plots, nil
}

func (r *pgPlotRepository) Update(ctx context.Context, plot *models.Plot) error {
	query := `
        UPDATE plots SET
            workflow = $1, metadata = $2, updated_at = $3
        WHERE id = $4
    `
	workflow, metadata, err := marshalPlotColumns(plot)
	if err != nil {
		return err
	}
	logFields := []zap.Field{zap.String("plotID", plot.ID.String())}
	r.logger.Debug("Updating plot", logFields...)

	commandTag, err := r.db.Exec(ctx, query, workflow, metadata, plot.UpdatedAt, plot.ID)
	if err != nil {
		r.logger.Error("Failed to update plot", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to update plot %s: %w", plot.ID, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Plot not found for update", logFields...)
		return models.ErrPlotNotFound
	}
	r.logger.Debug("Plot updated successfully", logFields...)
	return nil
}

func (r *pgPlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	logFields := []zap.Field{zap.String("plotID", id.String())}
	r.logger.Debug("Deleting plot", logFields...)

	commandTag, err := r.db.Exec(ctx, `DELETE FROM plots WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete plot", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to delete plot %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Plot not found for delete", logFields...)
		return models.ErrPlotNotFound
	}
	r.logger.Info("Plot deleted successfully", logFields...)
	return nil
}

func (r *pgPlotRepository) scanPlot(row pgx.Row) (*models.Plot, error) {
	plot := &models.Plot{}
	var workflow, metadata []byte
	err := row.Scan(
		&plot.ID, &plot.ProjectID, &workflow, &metadata, &plot.CreatedAt, &plot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(workflow, &plot.Workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow column: %w", err)
	}
	if err := json.Unmarshal(metadata, &plot.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata column: %w", err)
	}
	return plot, nil
}

func marshalPlotColumns(plot *models.Plot) ([]byte, []byte, error) {
	workflow, err := json.Marshal(plot.Workflow)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode workflow column: %w", err)
	}
	metadata, err := json.Marshal(plot.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode metadata column: %w", err)
	}
	return workflow, metadata, nil
}
