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

// TracePathRepositoryImpl implements the record.TracePathRepository interface
type TracePathRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.TracePathMapper
	logger logger.Interface
}

// NewTracePathRepository creates a new trace path repository instance
func NewTracePathRepository(database *gorm.DB, logger logger.Interface) record.TracePathRepository {
	return &TracePathRepositoryImpl{
		db:     database,
		mapper: mappers.NewTracePathMapper(),
		logger: logger,
	}
}

// Create inserts a new trace path row.
func (r *TracePathRepositoryImpl) Create(ctx context.Context, t *record.TracePath) error {
	model, err := r.mapper.ToModel(t)
	if err != nil {
		r.logger.Errorw("failed to map trace path", "initiator_tag", t.InitiatorTag(), "error", err)
		return fmt.Errorf("failed to map trace path: %w", err)
	}

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Create(model).Error; err != nil {
		r.logger.Errorw("failed to create trace path", "initiator_tag", t.InitiatorTag(), "error", err)
		return fmt.Errorf("failed to create trace path: %w", err)
	}
	return nil
}

// List returns a filtered trace page, newest first, plus the total.
func (r *TracePathRepositoryImpl) List(ctx context.Context, filter record.TracePathFilter) ([]*record.TracePath, int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	query := tx.Model(&models.TracePathModel{})

	if filter.InitiatorTag != nil {
		query = query.Where("initiator_tag = ?", *filter.InitiatorTag)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count trace paths: %w", err)
	}

	var ms []*models.TracePathModel
	if err := query.
		Scopes(db.Paginate(filter.Page, filter.PageSize)).
		Order("completed_at DESC, id DESC").
		Find(&ms).Error; err != nil {
		r.logger.Errorw("failed to list trace paths", "error", err)
		return nil, 0, fmt.Errorf("failed to list trace paths: %w", err)
	}

	traces, err := r.mapper.ToDomains(ms)
	if err != nil {
		r.logger.Errorw("failed to map trace paths", "error", err)
		return nil, 0, fmt.Errorf("failed to map trace paths: %w", err)
	}
	return traces, total, nil
}

// DeleteOlderThan removes traces completed before the cutoff.
func (r *TracePathRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Scopes(db.OlderThan("completed_at", cutoff)).Delete(&models.TracePathModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete old trace paths", "cutoff", cutoff, "error", result.Error)
		return 0, fmt.Errorf("failed to delete old trace paths: %w", result.Error)
	}
	return result.RowsAffected, nil
}
