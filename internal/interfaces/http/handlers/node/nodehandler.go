// Package node provides HTTP handlers for the node and tag surface.
package node

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"meshbridge/internal/application/query"
	"meshbridge/internal/application/tag"
	"meshbridge/internal/domain/node"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/utils"
)

type NodeHandler struct {
	queries *query.Service
	tags    *tag.Service
	logger  logger.Interface
}

func NewNodeHandler(queries *query.Service, tags *tag.Service, log logger.Interface) *NodeHandler {
	return &NodeHandler{
		queries: queries,
		tags:    tags,
		logger:  log.Named("node-handler"),
	}
}

type nodeResponse struct {
	PublicKey string    `json:"public_key"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

func toNodeResponse(n *node.Node) nodeResponse {
	return nodeResponse{
		PublicKey: n.PublicKey(),
		Name:      n.DisplayName(),
		Type:      string(n.NodeType()),
		FirstSeen: n.FirstSeen(),
		LastSeen:  n.LastSeen(),
	}
}

type tagResponse struct {
	Key       string    `json:"key"`
	Type      string    `json:"type"`
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toTagResponse(t *node.NodeTag) tagResponse {
	return tagResponse{
		Key:       t.Key(),
		Type:      string(t.Value().Type()),
		Value:     t.Value().Raw(),
		CreatedAt: t.CreatedAt(),
		UpdatedAt: t.UpdatedAt(),
	}
}

// ListNodes handles GET /nodes
func (h *NodeHandler) ListNodes(c *gin.Context) {
	pagination := utils.ParsePagination(c)
	q := query.NodesQuery{
		Prefix:   c.Query("prefix"),
		NodeType: c.Query("type"),
		Name:     c.Query("name"),
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
	}

	nodes, total, err := h.queries.ListNodes(c.Request.Context(), q)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items := make([]nodeResponse, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, toNodeResponse(n))
	}

	utils.ListSuccessResponse(c, items, total, pagination.Page, pagination.PageSize)
}

// GetNode handles GET /nodes/:key where :key is a full public key or a
// prefix of at least two hex characters.
func (h *NodeHandler) GetNode(c *gin.Context) {
	n, err := h.queries.GetNode(c.Request.Context(), c.Param("key"))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", toNodeResponse(n))
}

// ListTags handles GET /nodes/:key/tags
func (h *NodeHandler) ListTags(c *gin.Context) {
	tags, err := h.tags.List(c.Request.Context(), c.Param("key"))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items := make([]tagResponse, 0, len(tags))
	for _, t := range tags {
		items = append(items, toTagResponse(t))
	}

	utils.SuccessResponse(c, http.StatusOK, "", items)
}

type putTagRequest struct {
	Value any `json:"value"`
}

// PutTag handles PUT /nodes/:key/tags/:tag. The node is created on first
// write when it has not been heard on air yet.
func (h *NodeHandler) PutTag(c *gin.Context) {
	var req putTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for put tag",
			"node_key", c.Param("key"),
			"error", err)
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	t, created, err := h.tags.Set(c.Request.Context(), c.Param("key"), c.Param("tag"), req.Value)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.SuccessResponse(c, status, "", toTagResponse(t))
}

// DeleteTag handles DELETE /nodes/:key/tags/:tag
func (h *NodeHandler) DeleteTag(c *gin.Context) {
	if err := h.tags.Delete(c.Request.Context(), c.Param("key"), c.Param("tag")); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.NoContentResponse(c)
}
