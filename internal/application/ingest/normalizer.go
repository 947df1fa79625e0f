// Package ingest turns the raw device event stream into persisted records.
// The normalizer is the single consumer of its bus subscription: it appends
// the raw event log, dispatches per-type handlers inside scoped transactions,
// and hands message and advertisement events to the webhook fan-out.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"meshbridge/internal/domain/device"
	"meshbridge/internal/domain/node"
	"meshbridge/internal/domain/record"
	"meshbridge/internal/infrastructure/metrics"
	"meshbridge/internal/infrastructure/pubsub"
	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/goroutine"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
	"meshbridge/internal/shared/utils"
)

// Dispatcher hands normalized events to the webhook fan-out without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType device.EventType, data map[string]any)
}

// Normalizer consumes raw events in FIFO order. A failed event is logged and
// skipped; it is never retried and never stalls the stream.
type Normalizer struct {
	events    <-chan device.Event
	bus       *pubsub.Bus
	port      device.Port
	txManager *db.TransactionManager
	nodes     node.NodeRepository
	messages  record.MessageRepository
	adverts   record.AdvertisementRepository
	telemetry record.TelemetryRepository
	traces    record.TracePathRepository
	eventLog  record.EventLogRepository
	fanout    Dispatcher
	metrics   *metrics.Metrics
	denied    map[device.EventType]struct{}
	logger    logger.Interface
	done      chan struct{}
}

func NewNormalizer(
	bus *pubsub.Bus,
	port device.Port,
	txManager *db.TransactionManager,
	nodes node.NodeRepository,
	messages record.MessageRepository,
	adverts record.AdvertisementRepository,
	telemetry record.TelemetryRepository,
	traces record.TracePathRepository,
	eventLog record.EventLogRepository,
	fanout Dispatcher,
	m *metrics.Metrics,
	cfg config.EventLogConfig,
	log logger.Interface,
) *Normalizer {
	denied := make(map[device.EventType]struct{}, len(cfg.DenyTypes))
	for _, t := range cfg.DenyTypes {
		denied[device.EventType(strings.ToUpper(strings.TrimSpace(t)))] = struct{}{}
	}
	return &Normalizer{
		// Subscribing here, not in Start, so no event published between
		// construction and Start is missed.
		events:    bus.Subscribe("normalizer", 0),
		bus:       bus,
		port:      port,
		txManager: txManager,
		nodes:     nodes,
		messages:  messages,
		adverts:   adverts,
		telemetry: telemetry,
		traces:    traces,
		eventLog:  eventLog,
		fanout:    fanout,
		metrics:   m,
		denied:    denied,
		logger:    log.Named("normalizer"),
		done:      make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (n *Normalizer) Start(ctx context.Context) {
	goroutine.SafeGo(n.logger, "normalizer", func() {
		n.run(ctx)
	})
}

// Done is closed once the consumer loop has exited.
func (n *Normalizer) Done() <-chan struct{} { return n.done }

func (n *Normalizer) run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			n.bus.Unsubscribe(n.events)
			return
		case ev, ok := <-n.events:
			if !ok {
				return
			}
			n.handle(ctx, ev)
		}
	}
}

func (n *Normalizer) handle(ctx context.Context, ev device.Event) {
	n.metrics.EventsIngested.WithLabelValues(string(ev.Type)).Inc()

	if err := n.appendEventLog(ctx, ev); err != nil {
		n.logger.Errorw("failed to append event log", "event_type", ev.Type, "error", err)
	}

	var err error
	switch ev.Type {
	case device.EventTypeAdvertisement, device.EventTypeNewAdvert:
		err = n.handleAdvertisement(ctx, ev)
	case device.EventTypeContactMsgRecv:
		err = n.handleContactMessage(ctx, ev)
	case device.EventTypeChannelMsgRecv:
		err = n.handleChannelMessage(ctx, ev)
	case device.EventTypeTraceData:
		err = n.handleTraceData(ctx, ev)
	case device.EventTypeTelemetryResponse:
		err = n.handleTelemetry(ctx, ev)
	case device.EventTypeContacts:
		err = n.handleContacts(ctx, ev)
	default:
		// Informational kinds land in the event log only.
	}
	if err != nil {
		n.logger.Errorw("event normalization failed", "event_type", ev.Type, "error", err)
	}
}

// appendEventLog stores the raw event unless its type is deny-listed.
func (n *Normalizer) appendEventLog(ctx context.Context, ev device.Event) error {
	if _, skip := n.denied[ev.Type]; skip {
		return nil
	}
	payload, err := ev.PayloadJSON()
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	entry, err := record.NewEventLogEntry(string(ev.Type), payload, ev.ReceivedAt)
	if err != nil {
		return err
	}
	return n.eventLog.Append(ctx, entry)
}

// handleAdvertisement upserts the announcing node and records the
// advertisement. The advertisement row keeps what was observed on air; only
// the node upsert uses contact enrichment.
func (n *Normalizer) handleAdvertisement(ctx context.Context, ev device.Event) error {
	var p device.AdvertisementPayload
	if err := device.DecodePayload(ev, &p); err != nil {
		return fmt.Errorf("decode advertisement payload: %w", err)
	}
	key := strings.ToLower(strings.TrimSpace(p.PublicKey))
	if err := utils.ValidatePublicKey(key); err != nil {
		return err
	}

	name := strings.TrimSpace(p.Name)
	advType := strings.TrimSpace(p.AdvType)
	if name == "" || advType == "" {
		n.enrichFromContacts(ctx, key, &name, &advType)
	}

	err := n.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := n.upsertNode(txCtx, key, name, node.NodeTypeFromAdvType(advType), ev.ReceivedAt); err != nil {
			return err
		}
		adv, err := record.NewAdvertisement(key, ev.ReceivedAt)
		if err != nil {
			return err
		}
		adv.SetAdvType(p.AdvType)
		adv.SetName(p.Name)
		adv.SetFlags(p.Flags)
		return n.adverts.Create(txCtx, adv)
	})
	if err != nil {
		return err
	}

	n.fanout.Dispatch(ctx, ev.Type, ev.Payload)
	return nil
}

func (n *Normalizer) handleContactMessage(ctx context.Context, ev device.Event) error {
	var p device.ContactMessagePayload
	if err := device.DecodePayload(ev, &p); err != nil {
		return fmt.Errorf("decode contact message payload: %w", err)
	}
	sender := p.PubkeyPrefix
	if sender == "" {
		sender = p.SenderPublicKey
	}

	msg, err := record.NewContactMessage(record.DirectionInbound, sender, p.Text, ev.ReceivedAt)
	if err != nil {
		return err
	}
	msg.SetTxtType(p.TxtType)
	msg.SetPathLen(p.PathLen)
	msg.SetSignature(p.Signature)
	if p.SNR != nil {
		// Contact messages carry SNR in quarter-dB wire units.
		snr := *p.SNR / 4
		msg.SetSNR(&snr)
	}
	msg.SetSenderTimestamp(timeutil.ParseSenderTimestamp(p.SenderTimestamp))

	err = n.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		return n.messages.Create(txCtx, msg)
	})
	if err != nil {
		return err
	}

	n.fanout.Dispatch(ctx, ev.Type, ev.Payload)
	return nil
}

func (n *Normalizer) handleChannelMessage(ctx context.Context, ev device.Event) error {
	var p device.ChannelMessagePayload
	if err := device.DecodePayload(ev, &p); err != nil {
		return fmt.Errorf("decode channel message payload: %w", err)
	}
	if p.ChannelIdx == nil {
		return fmt.Errorf("channel message missing channel_idx")
	}

	msg, err := record.NewChannelMessage(record.DirectionInbound, *p.ChannelIdx, p.Text, ev.ReceivedAt)
	if err != nil {
		return err
	}
	msg.SetTxtType(p.TxtType)
	msg.SetPathLen(p.PathLen)
	msg.SetSNR(p.SNR)
	msg.SetSenderTimestamp(timeutil.ParseSenderTimestamp(p.SenderTimestamp))

	err = n.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		return n.messages.Create(txCtx, msg)
	})
	if err != nil {
		return err
	}

	n.fanout.Dispatch(ctx, ev.Type, ev.Payload)
	return nil
}

func (n *Normalizer) handleTraceData(ctx context.Context, ev device.Event) error {
	var p device.TraceDataPayload
	if err := device.DecodePayload(ev, &p); err != nil {
		return fmt.Errorf("decode trace data payload: %w", err)
	}
	if p.InitiatorTag == nil {
		n.logger.Warnw("trace data missing initiator_tag, dropped")
		return nil
	}
	p.Flatten()

	tp, err := record.NewTracePath(*p.InitiatorTag, p.PathHashes, p.SNRValues, p.HopCount, ev.ReceivedAt)
	if err != nil {
		return err
	}
	return n.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		return n.traces.Create(txCtx, tp)
	})
}

func (n *Normalizer) handleTelemetry(ctx context.Context, ev device.Event) error {
	var p device.TelemetryPayload
	if err := device.DecodePayload(ev, &p); err != nil {
		return fmt.Errorf("decode telemetry payload: %w", err)
	}
	tel, err := record.NewTelemetry(p.NodePublicKey, p.Raw, p.Parsed, ev.ReceivedAt)
	if err != nil {
		return err
	}
	return n.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		return n.telemetry.Create(txCtx, tel)
	})
}

// handleContacts upserts every entry of a contact-sync aggregate in a single
// transaction. Entries with malformed keys are skipped, not fatal.
func (n *Normalizer) handleContacts(ctx context.Context, ev device.Event) error {
	var p device.ContactsPayload
	if err := device.DecodePayload(ev, &p); err != nil {
		return fmt.Errorf("decode contacts payload: %w", err)
	}
	return n.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		for _, c := range p.Contacts {
			key := strings.ToLower(strings.TrimSpace(c.PublicKey))
			if err := utils.ValidatePublicKey(key); err != nil {
				n.logger.Debugw("skipping contact with invalid key", "public_key", c.PublicKey)
				continue
			}
			if err := n.upsertNode(txCtx, key, c.Name, node.NodeTypeFromAdvType(c.Type), ev.ReceivedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// upsertNode creates the node on first observation, otherwise advances
// last_seen and applies the no-downgrade name and type rules.
func (n *Normalizer) upsertNode(ctx context.Context, key, name string, nodeType node.NodeType, observedAt time.Time) error {
	existing, err := n.nodes.GetByPublicKey(ctx, key)
	if err != nil {
		return err
	}
	if existing == nil {
		fresh, err := node.NewNode(key, observedAt)
		if err != nil {
			return err
		}
		fresh.UpdateName(name)
		fresh.UpdateType(nodeType)
		return n.nodes.Create(ctx, fresh)
	}
	existing.Observe(observedAt)
	existing.UpdateName(name)
	existing.UpdateType(nodeType)
	return n.nodes.Update(ctx, existing)
}

// enrichFromContacts fills a missing name or type from the device's contact
// book. The port serializes the underlying fetch, so concurrent demand shares
// one device round-trip. Enrichment failures are quiet; the advertisement
// still persists.
func (n *Normalizer) enrichFromContacts(ctx context.Context, key string, name, advType *string) {
	contacts, err := n.port.GetContacts(ctx)
	if err != nil {
		n.logger.Debugw("contact enrichment unavailable", "public_key", key, "error", err)
		return
	}
	for _, c := range contacts {
		if strings.EqualFold(c.PublicKey, key) {
			if *name == "" {
				*name = strings.TrimSpace(c.Name)
			}
			if *advType == "" {
				*advType = c.Type
			}
			return
		}
	}
}
