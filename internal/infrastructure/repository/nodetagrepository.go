package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"meshbridge/internal/domain/node"
	"meshbridge/internal/infrastructure/persistence/mappers"
	"meshbridge/internal/infrastructure/persistence/models"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
)

// NodeTagRepositoryImpl implements the node.NodeTagRepository interface
type NodeTagRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.NodeTagMapper
	logger logger.Interface
}

// NewNodeTagRepository creates a new node tag repository instance
func NewNodeTagRepository(database *gorm.DB, logger logger.Interface) node.NodeTagRepository {
	return &NodeTagRepositoryImpl{
		db:     database,
		mapper: mappers.NewNodeTagMapper(),
		logger: logger,
	}
}

// Create inserts a new tag row. The (node, key) pair is unique.
func (r *NodeTagRepositoryImpl) Create(ctx context.Context, tag *node.NodeTag) error {
	model := r.mapper.ToModel(tag)

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return errors.NewConflictError("tag already exists for this node and key")
		}
		r.logger.Errorw("failed to create node tag",
			"node", tag.NodePublicKey(), "key", tag.Key(), "error", err)
		return fmt.Errorf("failed to create node tag: %w", err)
	}
	return nil
}

// Update rewrites the value columns of an existing tag. All slots are
// assigned so a type change clears the previously populated one.
func (r *NodeTagRepositoryImpl) Update(ctx context.Context, tag *node.NodeTag) error {
	model := r.mapper.ToModel(tag)

	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Model(&models.NodeTagModel{}).
		Where("node_public_key = ? AND key = ?", model.NodePublicKey, model.Key).
		Updates(map[string]interface{}{
			"value_type":    model.ValueType,
			"value_string":  model.ValueString,
			"value_number":  model.ValueNumber,
			"value_boolean": model.ValueBoolean,
			"latitude":      model.Latitude,
			"longitude":     model.Longitude,
			"updated_at":    model.UpdatedAt,
		})
	if result.Error != nil {
		r.logger.Errorw("failed to update node tag",
			"node", tag.NodePublicKey(), "key", tag.Key(), "error", result.Error)
		return fmt.Errorf("failed to update node tag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFoundError("tag not found")
	}
	return nil
}

// GetByNodeAndKey returns the tag for (node, key), or nil when absent.
func (r *NodeTagRepositoryImpl) GetByNodeAndKey(ctx context.Context, nodePublicKey, key string) (*node.NodeTag, error) {
	var model models.NodeTagModel

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Where("node_public_key = ? AND key = ?", nodePublicKey, key).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		r.logger.Errorw("failed to get node tag", "node", nodePublicKey, "key", key, "error", err)
		return nil, fmt.Errorf("failed to get node tag: %w", err)
	}
	return r.mapper.ToDomain(&model), nil
}

// ListByNode returns all tags on a node ordered by key.
func (r *NodeTagRepositoryImpl) ListByNode(ctx context.Context, nodePublicKey string) ([]*node.NodeTag, error) {
	var ms []*models.NodeTagModel

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Where("node_public_key = ?", nodePublicKey).Order("key ASC").Find(&ms).Error; err != nil {
		r.logger.Errorw("failed to list node tags", "node", nodePublicKey, "error", err)
		return nil, fmt.Errorf("failed to list node tags: %w", err)
	}
	return r.mapper.ToDomains(ms), nil
}

// Delete removes the tag for (node, key).
func (r *NodeTagRepositoryImpl) Delete(ctx context.Context, nodePublicKey, key string) error {
	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Where("node_public_key = ? AND key = ?", nodePublicKey, key).Delete(&models.NodeTagModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete node tag", "node", nodePublicKey, "key", key, "error", result.Error)
		return fmt.Errorf("failed to delete node tag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFoundError("tag not found")
	}
	return nil
}
