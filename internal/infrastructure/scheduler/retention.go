package scheduler

import (
	"context"
	"time"

	"meshbridge/internal/domain/record"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
)

// RetentionSweeper deletes record rows older than the configured retention
// window. Nodes and tags are never swept; retention applies only to the
// append-only record tables.
type RetentionSweeper struct {
	txManager *db.TransactionManager
	messages  record.MessageRepository
	adverts   record.AdvertisementRepository
	telemetry record.TelemetryRepository
	traces    record.TracePathRepository
	eventLog  record.EventLogRepository
	days      int
	logger    logger.Interface
}

// NewRetentionSweeper creates a sweeper for the given retention window in
// days. A non-positive window disables sweeping.
func NewRetentionSweeper(
	retentionDays int,
	txManager *db.TransactionManager,
	messages record.MessageRepository,
	adverts record.AdvertisementRepository,
	telemetry record.TelemetryRepository,
	traces record.TracePathRepository,
	eventLog record.EventLogRepository,
	log logger.Interface,
) *RetentionSweeper {
	return &RetentionSweeper{
		txManager: txManager,
		messages:  messages,
		adverts:   adverts,
		telemetry: telemetry,
		traces:    traces,
		eventLog:  eventLog,
		days:      retentionDays,
		logger:    log.Named("retention"),
	}
}

// Execute sweeps every record table in its own transaction so one stuck
// table never holds up the rest. Returns the total number of deleted rows
// and the first error encountered.
func (s *RetentionSweeper) Execute(ctx context.Context) (int, error) {
	if s.days <= 0 {
		return 0, nil
	}
	cutoff := timeutil.NowUTC().AddDate(0, 0, -s.days)

	tables := []struct {
		name   string
		delete func(context.Context, time.Time) (int64, error)
	}{
		{"messages", s.messages.DeleteOlderThan},
		{"advertisements", s.adverts.DeleteOlderThan},
		{"telemetry", s.telemetry.DeleteOlderThan},
		{"trace_paths", s.traces.DeleteOlderThan},
		{"event_log", s.eventLog.DeleteOlderThan},
	}

	total := 0
	var firstErr error
	for _, table := range tables {
		var count int64
		err := s.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
			var err error
			count, err = table.delete(txCtx, cutoff)
			return err
		})
		if err != nil {
			s.logger.Errorw("retention delete failed", "table", table.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if count > 0 {
			s.logger.Infow("retention removed rows",
				"table", table.name,
				"count", count,
				"cutoff", cutoff,
			)
		}
		total += int(count)
	}
	return total, firstErr
}
