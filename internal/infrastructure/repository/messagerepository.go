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

// MessageRepositoryImpl implements the record.MessageRepository interface
type MessageRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.MessageMapper
	logger logger.Interface
}

// NewMessageRepository creates a new message repository instance
func NewMessageRepository(database *gorm.DB, logger logger.Interface) record.MessageRepository {
	return &MessageRepositoryImpl{
		db:     database,
		mapper: mappers.NewMessageMapper(),
		logger: logger,
	}
}

// Create inserts a new message row.
func (r *MessageRepositoryImpl) Create(ctx context.Context, m *record.Message) error {
	model := r.mapper.ToModel(m)

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Create(model).Error; err != nil {
		r.logger.Errorw("failed to create message", "type", m.MessageType(), "error", err)
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// List returns a filtered message page, newest first, plus the total.
func (r *MessageRepositoryImpl) List(ctx context.Context, filter record.MessageFilter) ([]*record.Message, int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	query := tx.Model(&models.MessageModel{})

	if filter.MessageType != nil {
		query = query.Where("message_type = ?", string(*filter.MessageType))
	}
	if filter.ChannelIdx != nil {
		query = query.Where("channel_idx = ?", *filter.ChannelIdx)
	}
	if filter.Prefix != nil {
		query = query.Where("pubkey_prefix LIKE ?", *filter.Prefix+"%")
	}
	if filter.Since != nil {
		query = query.Scopes(db.Since("received_at", *filter.Since))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var ms []*models.MessageModel
	if err := query.
		Scopes(db.Paginate(filter.Page, filter.PageSize)).
		Order("received_at DESC, id DESC").
		Find(&ms).Error; err != nil {
		r.logger.Errorw("failed to list messages", "error", err)
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return r.mapper.ToDomains(ms), total, nil
}

// DeleteOlderThan removes messages received before the cutoff.
func (r *MessageRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Scopes(db.OlderThan("received_at", cutoff)).Delete(&models.MessageModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete old messages", "cutoff", cutoff, "error", result.Error)
		return 0, fmt.Errorf("failed to delete old messages: %w", result.Error)
	}
	return result.RowsAffected, nil
}
