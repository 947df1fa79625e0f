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

// AdvertisementRepositoryImpl implements the record.AdvertisementRepository interface
type AdvertisementRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.AdvertisementMapper
	logger logger.Interface
}

// NewAdvertisementRepository creates a new advertisement repository instance
func NewAdvertisementRepository(database *gorm.DB, logger logger.Interface) record.AdvertisementRepository {
	return &AdvertisementRepositoryImpl{
		db:     database,
		mapper: mappers.NewAdvertisementMapper(),
		logger: logger,
	}
}

// Create inserts a new advertisement row.
func (r *AdvertisementRepositoryImpl) Create(ctx context.Context, a *record.Advertisement) error {
	model := r.mapper.ToModel(a)

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Create(model).Error; err != nil {
		r.logger.Errorw("failed to create advertisement", "public_key", a.PublicKey(), "error", err)
		return fmt.Errorf("failed to create advertisement: %w", err)
	}
	return nil
}

// List returns a filtered advertisement page, newest first, plus the total.
func (r *AdvertisementRepositoryImpl) List(ctx context.Context, filter record.AdvertisementFilter) ([]*record.Advertisement, int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	query := tx.Model(&models.AdvertisementModel{})

	if filter.PublicKey != nil {
		query = query.Where("public_key = ?", *filter.PublicKey)
	}
	if filter.Since != nil {
		query = query.Scopes(db.Since("received_at", *filter.Since))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count advertisements: %w", err)
	}

	var ms []*models.AdvertisementModel
	if err := query.
		Scopes(db.Paginate(filter.Page, filter.PageSize)).
		Order("received_at DESC, id DESC").
		Find(&ms).Error; err != nil {
		r.logger.Errorw("failed to list advertisements", "error", err)
		return nil, 0, fmt.Errorf("failed to list advertisements: %w", err)
	}
	return r.mapper.ToDomains(ms), total, nil
}

// DeleteOlderThan removes advertisements received before the cutoff.
func (r *AdvertisementRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Scopes(db.OlderThan("received_at", cutoff)).Delete(&models.AdvertisementModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete old advertisements", "cutoff", cutoff, "error", result.Error)
		return 0, fmt.Errorf("failed to delete old advertisements: %w", result.Error)
	}
	return result.RowsAffected, nil
}
