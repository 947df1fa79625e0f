// Package handlers provides process-level HTTP handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"meshbridge/internal/domain/device"
	"meshbridge/internal/shared/version"
)

type SystemHandler struct {
	database *gorm.DB
	port     device.Port
}

func NewSystemHandler(database *gorm.DB, port device.Port) *SystemHandler {
	return &SystemHandler{
		database: database,
		port:     port,
	}
}

// HealthCheck handles GET /health. Device state is reported but only a
// store failure makes the process unhealthy; the serial link may be mid
// reconnect while the rest of the bridge keeps serving.
func (h *SystemHandler) HealthCheck(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	databaseOK := true
	if sqlDB, err := h.database.DB(); err != nil || sqlDB.Ping() != nil {
		databaseOK = false
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":           status,
		"service":          "meshbridge",
		"database":         databaseOK,
		"device_connected": h.port.IsConnected(),
	})
}

// Version handles GET /version to return the current application version
func (h *SystemHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    version.Version,
		"commit":     version.Commit,
		"build_date": version.BuildDate,
	})
}
