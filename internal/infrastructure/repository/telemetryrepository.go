package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"meshbridge/internal/domain/record"
	"meshbridge/internal/infrastructure/persistence/mappers"
	"meshbridge/internal/infrastructure/persistence/models"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/logger"
)

// TelemetryRepositoryImpl implements the record.TelemetryRepository interface
type TelemetryRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.TelemetryMapper
	logger logger.Interface
}

// NewTelemetryRepository creates a new telemetry repository instance
func NewTelemetryRepository(database *gorm.DB, logger logger.Interface) record.TelemetryRepository {
	return &TelemetryRepositoryImpl{
		db:     database,
		mapper: mappers.NewTelemetryMapper(),
		logger: logger,
	}
}

// Create inserts a new telemetry row.
func (r *TelemetryRepositoryImpl) Create(ctx context.Context, t *record.Telemetry) error {
	model, err := r.mapper.ToModel(t)
	if err != nil {
		r.logger.Errorw("failed to map telemetry", "node", t.NodePublicKey(), "error", err)
		return fmt.Errorf("failed to map telemetry: %w", err)
	}

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Create(model).Error; err != nil {
		r.logger.Errorw("failed to create telemetry", "node", t.NodePublicKey(), "error", err)
		return fmt.Errorf("failed to create telemetry: %w", err)
	}
	return nil
}

// List returns a filtered telemetry page, newest first, plus the total.
func (r *TelemetryRepositoryImpl) List(ctx context.Context, filter record.TelemetryFilter) ([]*record.Telemetry, int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	query := tx.Model(&models.TelemetryModel{})

	if filter.NodePublicKey != nil {
		query = query.Where("node_public_key = ?", *filter.NodePublicKey)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count telemetry: %w", err)
	}

	var ms []*models.TelemetryModel
	if err := query.
		Scopes(db.Paginate(filter.Page, filter.PageSize)).
		Order("received_at DESC, id DESC").
		Find(&ms).Error; err != nil {
		r.logger.Errorw("failed to list telemetry", "error", err)
		return nil, 0, fmt.Errorf("failed to list telemetry: %w", err)
	}

	rows, err := r.mapper.ToDomains(ms)
	if err != nil {
		r.logger.Errorw("failed to map telemetry rows", "error", err)
		return nil, 0, fmt.Errorf("failed to map telemetry rows: %w", err)
	}
	return rows, total, nil
}

// DeleteOlderThan removes telemetry received before the cutoff.
func (r *TelemetryRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Scopes(db.OlderThan("received_at", cutoff)).Delete(&models.TelemetryModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete old telemetry", "cutoff", cutoff, "error", result.Error)
		return 0, fmt.Errorf("failed to delete old telemetry: %w", result.Error)
	}
	return result.RowsAffected, nil
}
