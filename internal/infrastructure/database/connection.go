package database

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meshbridge/internal/infrastructure/persistence/models"
	"meshbridge/internal/shared/config"
	appLogger "meshbridge/internal/shared/logger"
)

const defaultBusyTimeoutMS = 5000

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// Init opens the embedded store in WAL mode and creates the schema. The
// store is a single file; readers run concurrently while sqlite serializes
// writers.
func Init(cfg *config.DatabaseConfig) error {
	gormLogger := logger.New(
		&bridgeLogger{},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	database, err := gorm.Open(sqlite.Open(buildDSN(cfg)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := models.AutoMigrate(database); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	dbMu.Lock()
	db = database
	dbMu.Unlock()

	appLogger.Info("database opened", "path", cfg.Path)
	return nil
}

// buildDSN appends the WAL and busy-timeout pragmas unless the caller already
// supplied DSN parameters.
func buildDSN(cfg *config.DatabaseConfig) string {
	path := cfg.Path
	if path == "" {
		path = "meshbridge.db"
	}
	if strings.Contains(path, "?") || path == ":memory:" {
		return path
	}
	busyTimeout := cfg.BusyTimeoutMS
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeoutMS
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", path, busyTimeout)
}

// Get returns the database connection.
func Get() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}

// Close closes the database connection.
func Close() error {
	dbMu.RLock()
	currentDB := db
	dbMu.RUnlock()

	if currentDB == nil {
		return nil
	}

	sqlDB, err := currentDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	appLogger.Info("database closed")
	return nil
}

// bridgeLogger routes gorm's messages into the application logger.
type bridgeLogger struct{}

func (l *bridgeLogger) Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	if strings.Contains(msg, "[error]") || strings.Contains(msg, "ERROR") {
		appLogger.Error("database error", "details", msg)
	} else if strings.Contains(msg, "SLOW SQL") {
		appLogger.Warn("slow query", "details", msg)
	} else {
		appLogger.Debug("database query", "details", msg)
	}
}
