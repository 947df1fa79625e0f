package db

import (
	"time"

	"gorm.io/gorm"
)

// Paginate applies 1-based page / pageSize limits. pageSize is clamped to
// keep a single API call from scanning the whole event history.
func Paginate(page, pageSize int) func(db *gorm.DB) *gorm.DB {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = 50
	case pageSize > 200:
		pageSize = 200
	}
	offset := (page - 1) * pageSize
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(offset).Limit(pageSize)
	}
}

// Since filters rows whose column is at or after t. Zero t is a no-op.
func Since(column string, t time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if t.IsZero() {
			return db
		}
		return db.Where(column+" >= ?", t)
	}
}

// OlderThan filters rows whose column is strictly before t; the retention
// sweeper deletes through this scope.
func OlderThan(column string, t time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" < ?", t)
	}
}
