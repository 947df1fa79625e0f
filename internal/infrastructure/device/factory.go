package device

import (
	"strings"

	domain "meshbridge/internal/domain/device"
	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
)

// New builds the configured port variant.
func New(cfg *config.DeviceConfig, log logger.Interface) (domain.Port, error) {
	switch {
	case cfg.IsMock():
		return NewMockPort(cfg.Mock, cfg.EventBuffer, log)
	case strings.EqualFold(cfg.Mode, "serial"):
		return NewSerialPort(cfg.Serial, cfg.EventBuffer, log), nil
	default:
		return nil, errors.NewValidationError("device.mode must be serial or mock", cfg.Mode)
	}
}
