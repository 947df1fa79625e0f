// Package command provides HTTP handlers for the outbound command pipeline.
package command

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"meshbridge/internal/application/command"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/utils"
)

// maxWaitSeconds caps how long a result poll may block.
const maxWaitSeconds = 30

type CommandHandler struct {
	pipeline *command.Pipeline
	logger   logger.Interface
}

func NewCommandHandler(pipeline *command.Pipeline, log logger.Interface) *CommandHandler {
	return &CommandHandler{
		pipeline: pipeline,
		logger:   log.Named("command-handler"),
	}
}

type enqueueRequest struct {
	Type   string         `json:"type" binding:"required"`
	Params map[string]any `json:"params"`
}

// Enqueue handles POST /commands. The command is accepted for asynchronous
// execution; the receipt reports queue position or debounce metadata.
func (h *CommandHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for enqueue command", "error", err)
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	cmdType, err := command.ParseType(req.Type)
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("unknown command type", req.Type))
		return
	}

	receipt, err := h.pipeline.Enqueue(cmdType, req.Params)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.AcceptedResponse(c, receipt)
}

// Stats handles GET /commands/stats
func (h *CommandHandler) Stats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "", h.pipeline.Stats())
}

// GetResult handles GET /commands/:hash. With wait_s the call blocks until
// the command completes or the wait elapses.
func (h *CommandHandler) GetResult(c *gin.Context) {
	hash := c.Param("hash")

	var (
		result *command.Result
		ok     bool
	)
	if raw := c.Query("wait_s"); raw != "" {
		waitSeconds, err := strconv.Atoi(raw)
		if err != nil || waitSeconds < 0 {
			utils.ErrorResponseWithError(c, errors.NewValidationError("invalid wait_s", "must be a non-negative integer"))
			return
		}
		if waitSeconds > maxWaitSeconds {
			waitSeconds = maxWaitSeconds
		}
		result, ok = h.pipeline.WaitForResult(hash, time.Duration(waitSeconds)*time.Second)
	} else {
		result, ok = h.pipeline.Result(hash)
	}

	if !ok {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("command result not available", hash))
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}
