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

// EventLogRepositoryImpl implements the record.EventLogRepository interface
type EventLogRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.EventLogMapper
	logger logger.Interface
}

// NewEventLogRepository creates a new event log repository instance
func NewEventLogRepository(database *gorm.DB, logger logger.Interface) record.EventLogRepository {
	return &EventLogRepositoryImpl{
		db:     database,
		mapper: mappers.NewEventLogMapper(),
		logger: logger,
	}
}

// Append inserts one raw event row.
func (r *EventLogRepositoryImpl) Append(ctx context.Context, e *record.EventLogEntry) error {
	model := r.mapper.ToModel(e)

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Create(model).Error; err != nil {
		r.logger.Errorw("failed to append event log entry", "event_type", e.EventType(), "error", err)
		return fmt.Errorf("failed to append event log entry: %w", err)
	}
	return nil
}

// List returns a filtered event log page, newest first, plus the total.
func (r *EventLogRepositoryImpl) List(ctx context.Context, filter record.EventLogFilter) ([]*record.EventLogEntry, int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	query := tx.Model(&models.EventLogModel{})

	if filter.EventType != nil {
		query = query.Where("event_type = ?", *filter.EventType)
	}
	if filter.Since != nil {
		query = query.Scopes(db.Since("created_at", *filter.Since))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count event log: %w", err)
	}

	var ms []*models.EventLogModel
	if err := query.
		Scopes(db.Paginate(filter.Page, filter.PageSize)).
		Order("created_at DESC, id DESC").
		Find(&ms).Error; err != nil {
		r.logger.Errorw("failed to list event log", "error", err)
		return nil, 0, fmt.Errorf("failed to list event log: %w", err)
	}
	return r.mapper.ToDomains(ms), total, nil
}

// DeleteOlderThan removes log rows created before the cutoff.
func (r *EventLogRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Scopes(db.OlderThan("created_at", cutoff)).Delete(&models.EventLogModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete old event log entries", "cutoff", cutoff, "error", result.Error)
		return 0, fmt.Errorf("failed to delete old event log entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
