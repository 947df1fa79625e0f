package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"meshbridge/internal/domain/node"
	"meshbridge/internal/infrastructure/persistence/mappers"
	"meshbridge/internal/infrastructure/persistence/models"
	"meshbridge/internal/shared/constants"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
)

// NodeRepositoryImpl implements the node.NodeRepository interface
type NodeRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.NodeMapper
	logger logger.Interface
}

// NewNodeRepository creates a new node repository instance
func NewNodeRepository(database *gorm.DB, logger logger.Interface) node.NodeRepository {
	return &NodeRepositoryImpl{
		db:     database,
		mapper: mappers.NewNodeMapper(),
		logger: logger,
	}
}

// Create inserts a new node row.
func (r *NodeRepositoryImpl) Create(ctx context.Context, n *node.Node) error {
	model := r.mapper.ToModel(n)

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return errors.NewConflictError("node already exists")
		}
		r.logger.Errorw("failed to create node", "public_key", n.PublicKey(), "error", err)
		return fmt.Errorf("failed to create node: %w", err)
	}
	return nil
}

// Update rewrites the mutable node columns.
func (r *NodeRepositoryImpl) Update(ctx context.Context, n *node.Node) error {
	model := r.mapper.ToModel(n)

	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Model(&models.NodeModel{}).
		Where("public_key = ?", model.PublicKey).
		Updates(map[string]interface{}{
			"node_type": model.NodeType,
			"name":      model.Name,
			"last_seen": model.LastSeen,
		})
	if result.Error != nil {
		r.logger.Errorw("failed to update node", "public_key", n.PublicKey(), "error", result.Error)
		return fmt.Errorf("failed to update node: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFoundError("node not found")
	}
	return nil
}

// GetByPublicKey returns the node with the given full key, or nil when absent.
func (r *NodeRepositoryImpl) GetByPublicKey(ctx context.Context, publicKey string) (*node.Node, error) {
	var model models.NodeModel

	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Where("public_key = ?", publicKey).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		r.logger.Errorw("failed to get node", "public_key", publicKey, "error", err)
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return r.mapper.ToDomain(&model), nil
}

// FindByPrefix resolves a lowercase hex prefix against the indexed prefix
// columns: exact match on prefix_2 or prefix_8, a prefix match on prefix_8
// for lengths in between, and a key range scan past eight characters.
func (r *NodeRepositoryImpl) FindByPrefix(ctx context.Context, prefix string) ([]*node.Node, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	query := tx.Model(&models.NodeModel{})

	switch {
	case len(prefix) == constants.Prefix2Length:
		query = query.Where("prefix2 = ?", prefix)
	case len(prefix) == constants.Prefix8Length:
		query = query.Where("prefix8 = ?", prefix)
	case len(prefix) < constants.Prefix8Length:
		query = query.Where("prefix8 LIKE ?", prefix+"%")
	default:
		query = query.Where("public_key LIKE ?", prefix+"%")
	}

	var ms []*models.NodeModel
	if err := query.Order("public_key ASC").Find(&ms).Error; err != nil {
		r.logger.Errorw("failed to find nodes by prefix", "prefix", prefix, "error", err)
		return nil, fmt.Errorf("failed to find nodes by prefix: %w", err)
	}
	return r.mapper.ToDomains(ms), nil
}

// List returns a filtered node page plus the unpaginated total.
func (r *NodeRepositoryImpl) List(ctx context.Context, filter node.NodeFilter) ([]*node.Node, int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	query := tx.Model(&models.NodeModel{})

	if filter.Prefix != nil {
		p := *filter.Prefix
		switch {
		case len(p) == constants.Prefix2Length:
			query = query.Where("prefix2 = ?", p)
		case len(p) <= constants.Prefix8Length:
			query = query.Where("prefix8 LIKE ?", p+"%")
		default:
			query = query.Where("public_key LIKE ?", p+"%")
		}
	}
	if filter.NodeType != nil {
		query = query.Where("node_type = ?", string(*filter.NodeType))
	}
	if filter.Name != nil {
		query = query.Where("name LIKE ? ESCAPE '\\'", "%"+escapeLike(*filter.Name)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count nodes: %w", err)
	}

	var ms []*models.NodeModel
	if err := query.
		Scopes(db.Paginate(filter.Page, filter.PageSize)).
		Order("last_seen DESC, public_key ASC").
		Find(&ms).Error; err != nil {
		r.logger.Errorw("failed to list nodes", "error", err)
		return nil, 0, fmt.Errorf("failed to list nodes: %w", err)
	}
	return r.mapper.ToDomains(ms), total, nil
}

// Count returns the total number of known nodes.
func (r *NodeRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var total int64
	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Model(&models.NodeModel{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return total, nil
}

// escapeLike neutralizes LIKE wildcards in user-supplied substrings.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
