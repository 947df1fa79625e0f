// Package tag manages operator-assigned node metadata: single tag writes
// from the API and bulk imports from JSON files. Tags never originate from
// the radio; the ingestion path does not touch them.
package tag

import (
	"context"
	"strings"

	"meshbridge/internal/domain/node"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
	"meshbridge/internal/shared/utils"
)

// Service implements tag CRUD on top of the node store.
type Service struct {
	nodes     node.NodeRepository
	tags      node.NodeTagRepository
	txManager *db.TransactionManager
	logger    logger.Interface
}

// NewService creates a tag service.
func NewService(
	nodes node.NodeRepository,
	tags node.NodeTagRepository,
	txManager *db.TransactionManager,
	log logger.Interface,
) *Service {
	return &Service{
		nodes:     nodes,
		tags:      tags,
		txManager: txManager,
		logger:    log.Named("tag"),
	}
}

// Set upserts one tag on a node identified by its full public key. The node
// is created lazily on the first tag write, so operators can annotate nodes
// before they are ever heard on air. Returns the stored tag and whether it
// was newly created rather than updated.
func (s *Service) Set(ctx context.Context, nodeKey, tagKey string, rawValue any) (*node.NodeTag, bool, error) {
	nodeKey = strings.ToLower(strings.TrimSpace(nodeKey))
	if err := utils.ValidatePublicKey(nodeKey); err != nil {
		return nil, false, err
	}

	value, err := node.InferTagValue(rawValue)
	if err != nil {
		if errors.IsAppError(err) {
			return nil, false, err
		}
		return nil, false, errors.NewValidationError("invalid tag value", err.Error())
	}

	var (
		stored  *node.NodeTag
		created bool
	)
	err = s.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ensureNode(txCtx, nodeKey); err != nil {
			return err
		}

		existing, err := s.tags.GetByNodeAndKey(txCtx, nodeKey, tagKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := existing.UpdateValue(value); err != nil {
				return errors.NewValidationError("invalid tag value", err.Error())
			}
			if err := s.tags.Update(txCtx, existing); err != nil {
				return err
			}
			stored = existing
			return nil
		}

		tag, err := node.NewNodeTag(nodeKey, tagKey, value)
		if err != nil {
			if errors.IsAppError(err) {
				return err
			}
			return errors.NewValidationError("invalid tag", err.Error())
		}
		if err := s.tags.Create(txCtx, tag); err != nil {
			return err
		}
		stored = tag
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Infow("tag set",
		"node", nodeKey,
		"key", tagKey,
		"type", string(stored.Value().Type()),
		"created", created,
	)
	return stored, created, nil
}

// Delete removes one tag. Missing tags report a not-found error.
func (s *Service) Delete(ctx context.Context, nodeKey, tagKey string) error {
	nodeKey = strings.ToLower(strings.TrimSpace(nodeKey))
	if err := utils.ValidatePublicKey(nodeKey); err != nil {
		return err
	}
	if err := s.tags.Delete(ctx, nodeKey, tagKey); err != nil {
		return err
	}
	s.logger.Infow("tag deleted", "node", nodeKey, "key", tagKey)
	return nil
}

// List returns all tags on a node ordered by key. The node must exist.
func (s *Service) List(ctx context.Context, nodeKey string) ([]*node.NodeTag, error) {
	nodeKey = strings.ToLower(strings.TrimSpace(nodeKey))
	if err := utils.ValidatePublicKey(nodeKey); err != nil {
		return nil, err
	}
	n, err := s.nodes.GetByPublicKey(ctx, nodeKey)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, errors.NewNotFoundError("node not found")
	}
	return s.tags.ListByNode(ctx, nodeKey)
}

// ensureNode creates a placeholder node row when the key was never seen.
func (s *Service) ensureNode(ctx context.Context, nodeKey string) error {
	existing, err := s.nodes.GetByPublicKey(ctx, nodeKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	n, err := node.NewNode(nodeKey, timeutil.NowUTC())
	if err != nil {
		return err
	}
	return s.nodes.Create(ctx, n)
}
