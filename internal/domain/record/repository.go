package record

import (
	"context"
	"time"
)

// MessageFilter narrows message listings. Prefix matches the stored 12-char
// sender prefix by prefix match.
type MessageFilter struct {
	MessageType *MessageType
	ChannelIdx  *int
	Prefix      *string
	Since       *time.Time
	Page        int
	PageSize    int
}

type AdvertisementFilter struct {
	PublicKey *string
	Since     *time.Time
	Page      int
	PageSize  int
}

type TelemetryFilter struct {
	NodePublicKey *string
	Page          int
	PageSize      int
}

type TracePathFilter struct {
	InitiatorTag *uint32
	Page         int
	PageSize     int
}

type EventLogFilter struct {
	EventType *string
	Since     *time.Time
	Page      int
	PageSize  int
}

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	List(ctx context.Context, filter MessageFilter) ([]*Message, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type AdvertisementRepository interface {
	Create(ctx context.Context, a *Advertisement) error
	List(ctx context.Context, filter AdvertisementFilter) ([]*Advertisement, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type TelemetryRepository interface {
	Create(ctx context.Context, t *Telemetry) error
	List(ctx context.Context, filter TelemetryFilter) ([]*Telemetry, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type TracePathRepository interface {
	Create(ctx context.Context, t *TracePath) error
	List(ctx context.Context, filter TracePathFilter) ([]*TracePath, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type EventLogRepository interface {
	Append(ctx context.Context, e *EventLogEntry) error
	List(ctx context.Context, filter EventLogFilter) ([]*EventLogEntry, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
