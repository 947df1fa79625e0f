// Package query serves the read side of the API: node lookups by key or
// prefix and paged listings over the persisted record tables.
package query

import (
	"context"
	"strings"
	"time"

	"meshbridge/internal/domain/node"
	"meshbridge/internal/domain/record"
	"meshbridge/internal/shared/constants"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/utils"
)

// NodesQuery filters the node listing.
type NodesQuery struct {
	Prefix   string
	NodeType string
	Name     string
	Page     int
	PageSize int
}

// MessagesQuery filters the message listing. Kind is "contact" or "channel".
type MessagesQuery struct {
	Kind       string
	ChannelIdx *int
	Prefix     string
	Since      *time.Time
	Page       int
	PageSize   int
}

// AdvertisementsQuery filters the advertisement listing.
type AdvertisementsQuery struct {
	PublicKey string
	Since     *time.Time
	Page      int
	PageSize  int
}

// TelemetryQuery filters the telemetry listing.
type TelemetryQuery struct {
	NodePublicKey string
	Page          int
	PageSize      int
}

// TracesQuery filters the trace-path listing.
type TracesQuery struct {
	InitiatorTag *uint32
	Page         int
	PageSize     int
}

// EventsQuery filters the raw event log listing.
type EventsQuery struct {
	EventType string
	Since     *time.Time
	Page      int
	PageSize  int
}

// Service wraps the repositories behind input validation so handlers never
// hand raw query strings to the store.
type Service struct {
	nodes     node.NodeRepository
	messages  record.MessageRepository
	adverts   record.AdvertisementRepository
	telemetry record.TelemetryRepository
	traces    record.TracePathRepository
	eventLog  record.EventLogRepository
	logger    logger.Interface
}

// NewService creates a query service.
func NewService(
	nodes node.NodeRepository,
	messages record.MessageRepository,
	adverts record.AdvertisementRepository,
	telemetry record.TelemetryRepository,
	traces record.TracePathRepository,
	eventLog record.EventLogRepository,
	log logger.Interface,
) *Service {
	return &Service{
		nodes:     nodes,
		messages:  messages,
		adverts:   adverts,
		telemetry: telemetry,
		traces:    traces,
		eventLog:  eventLog,
		logger:    log.Named("query"),
	}
}

// GetNode resolves a full public key or a shorter prefix against the store.
// A prefix that matches several nodes returns the lexicographically first
// one, keeping repeated lookups deterministic.
func (s *Service) GetNode(ctx context.Context, keyOrPrefix string) (*node.Node, error) {
	input := strings.ToLower(strings.TrimSpace(keyOrPrefix))
	if len(input) == constants.PublicKeyLength {
		if err := utils.ValidatePublicKey(input); err != nil {
			return nil, err
		}
		n, err := s.nodes.GetByPublicKey(ctx, input)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, errors.NewNotFoundError("node not found")
		}
		return n, nil
	}

	prefix, err := utils.NormalizePrefix(input)
	if err != nil {
		return nil, err
	}
	matches, err := s.nodes.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.NewNotFoundError("node not found")
	}
	return matches[0], nil
}

// ListNodes returns a page of nodes plus the unpaged total.
func (s *Service) ListNodes(ctx context.Context, q NodesQuery) ([]*node.Node, int64, error) {
	filter := node.NodeFilter{}
	if q.Prefix != "" {
		prefix, err := utils.NormalizePrefix(q.Prefix)
		if err != nil {
			return nil, 0, err
		}
		filter.Prefix = &prefix
	}
	if q.NodeType != "" {
		nt, err := node.ParseNodeType(q.NodeType)
		if err != nil {
			return nil, 0, errors.NewValidationError("invalid node type", err.Error())
		}
		filter.NodeType = &nt
	}
	if name := strings.TrimSpace(q.Name); name != "" {
		filter.Name = &name
	}
	filter.Page, filter.PageSize = pageOf(q.Page, q.PageSize)
	return s.nodes.List(ctx, filter)
}

// ListMessages returns a page of messages, newest first.
func (s *Service) ListMessages(ctx context.Context, q MessagesQuery) ([]*record.Message, int64, error) {
	filter := record.MessageFilter{
		ChannelIdx: q.ChannelIdx,
		Since:      q.Since,
	}
	switch strings.ToLower(strings.TrimSpace(q.Kind)) {
	case "":
	case string(record.MessageTypeContact):
		mt := record.MessageTypeContact
		filter.MessageType = &mt
	case string(record.MessageTypeChannel):
		mt := record.MessageTypeChannel
		filter.MessageType = &mt
	default:
		return nil, 0, errors.NewValidationError("invalid message kind", "must be contact or channel")
	}
	if q.Prefix != "" {
		prefix, err := utils.NormalizePrefix(q.Prefix)
		if err != nil {
			return nil, 0, err
		}
		filter.Prefix = &prefix
	}
	filter.Page, filter.PageSize = pageOf(q.Page, q.PageSize)
	return s.messages.List(ctx, filter)
}

// ListAdvertisements returns a page of observed advertisements, newest first.
func (s *Service) ListAdvertisements(ctx context.Context, q AdvertisementsQuery) ([]*record.Advertisement, int64, error) {
	filter := record.AdvertisementFilter{Since: q.Since}
	if q.PublicKey != "" {
		key := strings.ToLower(strings.TrimSpace(q.PublicKey))
		if err := utils.ValidatePublicKey(key); err != nil {
			return nil, 0, err
		}
		filter.PublicKey = &key
	}
	filter.Page, filter.PageSize = pageOf(q.Page, q.PageSize)
	return s.adverts.List(ctx, filter)
}

// ListTelemetry returns a page of telemetry snapshots, newest first.
func (s *Service) ListTelemetry(ctx context.Context, q TelemetryQuery) ([]*record.Telemetry, int64, error) {
	filter := record.TelemetryFilter{}
	if q.NodePublicKey != "" {
		key := strings.ToLower(strings.TrimSpace(q.NodePublicKey))
		if err := utils.ValidatePublicKey(key); err != nil {
			return nil, 0, err
		}
		filter.NodePublicKey = &key
	}
	filter.Page, filter.PageSize = pageOf(q.Page, q.PageSize)
	return s.telemetry.List(ctx, filter)
}

// ListTraces returns a page of completed trace paths, newest first.
func (s *Service) ListTraces(ctx context.Context, q TracesQuery) ([]*record.TracePath, int64, error) {
	filter := record.TracePathFilter{InitiatorTag: q.InitiatorTag}
	filter.Page, filter.PageSize = pageOf(q.Page, q.PageSize)
	return s.traces.List(ctx, filter)
}

// ListEvents returns a page of raw event log entries, newest first.
func (s *Service) ListEvents(ctx context.Context, q EventsQuery) ([]*record.EventLogEntry, int64, error) {
	filter := record.EventLogFilter{Since: q.Since}
	if et := strings.ToUpper(strings.TrimSpace(q.EventType)); et != "" {
		filter.EventType = &et
	}
	filter.Page, filter.PageSize = pageOf(q.Page, q.PageSize)
	return s.eventLog.List(ctx, filter)
}

func pageOf(page, pageSize int) (int, int) {
	p := utils.ValidatePagination(page, pageSize)
	return p.Page, p.PageSize
}
