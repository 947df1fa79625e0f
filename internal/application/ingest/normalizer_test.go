package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"meshbridge/internal/domain/device"
	"meshbridge/internal/domain/node"
	"meshbridge/internal/domain/record"
	"meshbridge/internal/infrastructure/metrics"
	"meshbridge/internal/infrastructure/persistence/models"
	"meshbridge/internal/infrastructure/pubsub"
	"meshbridge/internal/infrastructure/repository"
	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/logger"
)

// stubPort serves a fixed contact book and counts fetches.
type stubPort struct {
	contacts   []device.Contact
	fetchCalls int
	events     chan device.Event
}

func (s *stubPort) Connect(ctx context.Context) error { return nil }
func (s *stubPort) Disconnect() error                 { return nil }
func (s *stubPort) IsConnected() bool                 { return true }
func (s *stubPort) Events() <-chan device.Event       { return s.events }

func (s *stubPort) SendMessage(ctx context.Context, destination, text string, textType int) (*device.Event, error) {
	return nil, nil
}
func (s *stubPort) SendChannelMessage(ctx context.Context, text string, flood bool) (*device.Event, error) {
	return nil, nil
}
func (s *stubPort) SendAdvert(ctx context.Context, flood bool) (*device.Event, error) {
	return nil, nil
}
func (s *stubPort) SendTracePath(ctx context.Context, destination string) (*device.Event, error) {
	return nil, nil
}
func (s *stubPort) Ping(ctx context.Context, destination string) (*device.Event, error) {
	return nil, nil
}
func (s *stubPort) SendTelemetryRequest(ctx context.Context, destination string) (*device.Event, error) {
	return nil, nil
}

func (s *stubPort) GetContacts(ctx context.Context) ([]device.Contact, error) {
	s.fetchCalls++
	return s.contacts, nil
}

func (s *stubPort) ResolveDestination(ctx context.Context, destination string) (string, error) {
	return destination, nil
}

// captureDispatcher records fan-out handoffs.
type captureDispatcher struct {
	mu    sync.Mutex
	calls []dispatched
}

type dispatched struct {
	eventType device.EventType
	data      map[string]any
}

func (c *captureDispatcher) Dispatch(ctx context.Context, eventType device.EventType, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, dispatched{eventType: eventType, data: data})
}

func (c *captureDispatcher) all() []dispatched {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dispatched, len(c.calls))
	copy(out, c.calls)
	return out
}

type fixture struct {
	bus     *pubsub.Bus
	port    *stubPort
	fan     *captureDispatcher
	metrics *metrics.Metrics
	n       *Normalizer

	nodes     node.NodeRepository
	messages  record.MessageRepository
	adverts   record.AdvertisementRepository
	telemetry record.TelemetryRepository
	traces    record.TracePathRepository
	eventLog  record.EventLogRepository
}

func newFixture(t *testing.T, denyTypes ...string) *fixture {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(gormDB))

	log := logger.NewLogger()
	f := &fixture{
		bus:       pubsub.NewBus(log),
		port:      &stubPort{events: make(chan device.Event)},
		fan:       &captureDispatcher{},
		metrics:   metrics.New(),
		nodes:     repository.NewNodeRepository(gormDB, log),
		messages:  repository.NewMessageRepository(gormDB, log),
		adverts:   repository.NewAdvertisementRepository(gormDB, log),
		telemetry: repository.NewTelemetryRepository(gormDB, log),
		traces:    repository.NewTracePathRepository(gormDB, log),
		eventLog:  repository.NewEventLogRepository(gormDB, log),
	}
	f.n = NewNormalizer(
		f.bus, f.port, db.NewTransactionManager(gormDB),
		f.nodes, f.messages, f.adverts, f.telemetry, f.traces, f.eventLog,
		f.fan, f.metrics, config.EventLogConfig{DenyTypes: denyTypes}, log,
	)
	return f
}

func evt(eventType device.EventType, payload map[string]any, at time.Time) device.Event {
	return device.NewEvent(eventType, payload, at)
}

func TestNormalizer_Advertisement(t *testing.T) {
	ctx := context.Background()
	key := strings.Repeat("ab", 32)
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("should create the node and the advertisement row", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeAdvertisement, map[string]any{
			"public_key": strings.ToUpper(key),
			"adv_type":   "chat",
			"name":       "Alice",
			"flags":      3,
		}, now))

		n, err := f.nodes.GetByPublicKey(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Equal(t, "Alice", n.Name())
		assert.Equal(t, node.NodeTypeCompanion, n.NodeType())
		assert.Equal(t, now.Unix(), n.FirstSeen().Unix())
		assert.Equal(t, now.Unix(), n.LastSeen().Unix())

		advs, total, err := f.adverts.List(ctx, record.AdvertisementFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.NotNil(t, advs[0].AdvType())
		assert.Equal(t, record.AdvTypeChat, *advs[0].AdvType())
		require.NotNil(t, advs[0].Name())
		assert.Equal(t, "Alice", *advs[0].Name())
		require.NotNil(t, advs[0].Flags())
		assert.Equal(t, 3, *advs[0].Flags())

		calls := f.fan.all()
		require.Len(t, calls, 1)
		assert.Equal(t, device.EventTypeAdvertisement, calls[0].eventType)
		assert.Equal(t, strings.ToUpper(key), calls[0].data["public_key"])
	})

	t.Run("should apply the no-downgrade rule on re-advertisement", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeAdvertisement, map[string]any{
			"public_key": key, "name": "Alice",
		}, now))

		// The key-prefix placeholder never overwrites a real name.
		f.n.handle(ctx, evt(device.EventTypeNewAdvert, map[string]any{
			"public_key": key, "name": key[:8],
		}, now.Add(time.Minute)))

		n, err := f.nodes.GetByPublicKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Alice", n.Name())
		assert.Equal(t, now.Add(time.Minute).Unix(), n.LastSeen().Unix())

		f.n.handle(ctx, evt(device.EventTypeAdvertisement, map[string]any{
			"public_key": key, "name": "Alice Base",
		}, now.Add(2*time.Minute)))

		n, err = f.nodes.GetByPublicKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Alice Base", n.Name())

		_, total, err := f.adverts.List(ctx, record.AdvertisementFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total, "every advertisement is recorded")
	})

	t.Run("should enrich a nameless advertisement from the contact book", func(t *testing.T) {
		f := newFixture(t)
		f.port.contacts = []device.Contact{
			{PublicKey: key, Name: "Roof Node", Type: "repeater"},
		}

		f.n.handle(ctx, evt(device.EventTypeAdvertisement, map[string]any{
			"public_key": key,
		}, now))

		n, err := f.nodes.GetByPublicKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Roof Node", n.Name())
		assert.Equal(t, node.NodeTypeRepeater, n.NodeType())
		assert.Equal(t, 1, f.port.fetchCalls)

		// The stored advertisement keeps what was observed on air.
		advs, _, err := f.adverts.List(ctx, record.AdvertisementFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Nil(t, advs[0].Name())
		assert.Nil(t, advs[0].AdvType())
	})

	t.Run("should skip enrichment when the advertisement is complete", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeAdvertisement, map[string]any{
			"public_key": key, "adv_type": "chat", "name": "Alice",
		}, now))
		assert.Equal(t, 0, f.port.fetchCalls)
	})

	t.Run("should drop advertisements with malformed keys", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeAdvertisement, map[string]any{
			"public_key": "not-a-key",
		}, now))

		count, err := f.nodes.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
		assert.Empty(t, f.fan.all())

		// The raw event still reaches the event log.
		_, total, err := f.eventLog.List(ctx, record.EventLogFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})
}

func TestNormalizer_ContactMessage(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("should insert an inbound contact message", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeContactMsgRecv, map[string]any{
			"text":             "hello mesh",
			"pubkey_prefix":    "AABBCCDDEEFF0011",
			"SNR":              29.0,
			"txt_type":         1,
			"path_len":         2,
			"signature":        "c2ln",
			"sender_timestamp": 1718000000,
		}, now))

		msgs, total, err := f.messages.List(ctx, record.MessageFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.EqualValues(t, 1, total)
		m := msgs[0]
		assert.Equal(t, record.DirectionInbound, m.Direction())
		assert.Equal(t, record.MessageTypeContact, m.MessageType())
		require.NotNil(t, m.PubkeyPrefix())
		assert.Equal(t, "aabbccddeeff", *m.PubkeyPrefix(), "prefix is lowercased and cut to 12 chars")
		assert.Equal(t, "hello mesh", m.Content())
		require.NotNil(t, m.SNR())
		assert.InDelta(t, 7.25, *m.SNR(), 0.001, "wire SNR arrives in quarter-dB units")
		require.NotNil(t, m.TxtType())
		assert.Equal(t, 1, *m.TxtType())
		require.NotNil(t, m.SenderTimestamp())
		assert.EqualValues(t, 1718000000, m.SenderTimestamp().Unix())

		calls := f.fan.all()
		require.Len(t, calls, 1)
		assert.Equal(t, device.EventTypeContactMsgRecv, calls[0].eventType)
	})

	t.Run("should fall back to the full sender key for the prefix", func(t *testing.T) {
		f := newFixture(t)
		key := strings.Repeat("cd", 32)
		f.n.handle(ctx, evt(device.EventTypeContactMsgRecv, map[string]any{
			"text":       "hi",
			"public_key": key,
		}, now))

		msgs, _, err := f.messages.List(ctx, record.MessageFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, key[:12], *msgs[0].PubkeyPrefix())
	})

	t.Run("should parse ISO sender timestamps", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeContactMsgRecv, map[string]any{
			"text":             "hi",
			"pubkey_prefix":    "aabbccddeeff",
			"sender_timestamp": "2025-06-01T12:00:00Z",
		}, now))

		msgs, _, err := f.messages.List(ctx, record.MessageFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].SenderTimestamp())
		assert.Equal(t, "2025-06-01T12:00:00Z", msgs[0].SenderTimestamp().Format(time.RFC3339))
	})

	t.Run("should drop messages without a usable sender", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeContactMsgRecv, map[string]any{
			"text": "orphan",
		}, now))

		_, total, err := f.messages.List(ctx, record.MessageFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)
		assert.Empty(t, f.fan.all())
	})
}

func TestNormalizer_ChannelMessage(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("should insert a channel broadcast", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeChannelMsgRecv, map[string]any{
			"text":        "good morning",
			"channel_idx": 2,
			"SNR":         -5.5,
		}, now))

		msgs, total, err := f.messages.List(ctx, record.MessageFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.EqualValues(t, 1, total)
		m := msgs[0]
		assert.Equal(t, record.MessageTypeChannel, m.MessageType())
		require.NotNil(t, m.ChannelIdx())
		assert.Equal(t, 2, *m.ChannelIdx())
		assert.Nil(t, m.PubkeyPrefix())
		require.NotNil(t, m.SNR())
		assert.InDelta(t, -5.5, *m.SNR(), 0.001, "channel SNR is stored as reported")

		calls := f.fan.all()
		require.Len(t, calls, 1)
		assert.Equal(t, device.EventTypeChannelMsgRecv, calls[0].eventType)
	})

	t.Run("should drop broadcasts without a channel index", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeChannelMsgRecv, map[string]any{
			"text": "nowhere",
		}, now))

		_, total, err := f.messages.List(ctx, record.MessageFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)
		assert.Empty(t, f.fan.all())
	})
}

func TestNormalizer_TraceData(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("should flatten an inline path", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeTraceData, map[string]any{
			"initiator_tag": 77,
			"path": []any{
				map[string]any{"hash": "a1", "snr": 7.5},
				map[string]any{"hash": "b2", "snr": -2.25},
			},
		}, now))

		traces, total, err := f.traces.List(ctx, record.TracePathFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.EqualValues(t, 1, total)
		tr := traces[0]
		assert.EqualValues(t, 77, tr.InitiatorTag())
		assert.Equal(t, []string{"a1", "b2"}, tr.PathHashes())
		assert.Equal(t, []float64{7.5, -2.25}, tr.SNRValues())
		require.NotNil(t, tr.HopCount())
		assert.Equal(t, 2, *tr.HopCount())
	})

	t.Run("should keep parallel arrays as-is", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeTraceData, map[string]any{
			"initiator_tag": 12,
			"path_hashes":   []any{"c3"},
			"snr_values":    []any{4.0},
			"hop_count":     1,
		}, now))

		traces, _, err := f.traces.List(ctx, record.TracePathFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, traces, 1)
		assert.Equal(t, []string{"c3"}, traces[0].PathHashes())
	})

	t.Run("should drop traces without an initiator tag", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeTraceData, map[string]any{
			"path_hashes": []any{"a1"},
		}, now))

		_, total, err := f.traces.List(ctx, record.TracePathFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)
	})
}

func TestNormalizer_Telemetry(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	key := strings.Repeat("ee", 32)

	t.Run("should insert a snapshot keyed by node key", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeTelemetryResponse, map[string]any{
			"node_public_key": key,
			"parsed":          map[string]any{"battery": 84.0, "temp_c": 21.5},
		}, now))

		rows, total, err := f.telemetry.List(ctx, record.TelemetryFilter{NodePublicKey: &key, Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.EqualValues(t, 1, total)
		assert.Equal(t, key, rows[0].NodePublicKey())
		assert.Equal(t, 84.0, rows[0].Parsed()["battery"])
	})

	t.Run("should drop snapshots with malformed keys", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeTelemetryResponse, map[string]any{
			"node_public_key": "abc",
		}, now))

		_, total, err := f.telemetry.List(ctx, record.TelemetryFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)
	})
}

func TestNormalizer_Contacts(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	k1 := strings.Repeat("11", 32)
	k2 := strings.Repeat("22", 32)

	t.Run("should upsert every contact and skip malformed ones", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeContacts, map[string]any{
			"contacts": []any{
				map[string]any{"public_key": k1, "name": "Alpha", "type": "chat"},
				map[string]any{"public_key": k2, "type": "room"},
				map[string]any{"public_key": "bogus"},
			},
		}, now))

		count, err := f.nodes.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)

		n1, err := f.nodes.GetByPublicKey(ctx, k1)
		require.NoError(t, err)
		assert.Equal(t, "Alpha", n1.Name())
		assert.Equal(t, node.NodeTypeCompanion, n1.NodeType())

		n2, err := f.nodes.GetByPublicKey(ctx, k2)
		require.NoError(t, err)
		assert.Equal(t, node.NodeTypeRepeater, n2.NodeType())
	})

	t.Run("should advance last_seen without downgrading names", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeContacts, map[string]any{
			"contacts": []any{map[string]any{"public_key": k1, "name": "Alpha"}},
		}, now))
		f.n.handle(ctx, evt(device.EventTypeContacts, map[string]any{
			"contacts": []any{map[string]any{"public_key": k1, "name": k1[:8]}},
		}, now.Add(time.Minute)))

		n1, err := f.nodes.GetByPublicKey(ctx, k1)
		require.NoError(t, err)
		assert.Equal(t, "Alpha", n1.Name())
		assert.Equal(t, now.Add(time.Minute).Unix(), n1.LastSeen().Unix())
	})
}

func TestNormalizer_EventLog(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("should append raw events including unhandled kinds", func(t *testing.T) {
		f := newFixture(t)
		f.n.handle(ctx, evt(device.EventTypeBattery, map[string]any{"level": 93}, now))

		entries, total, err := f.eventLog.List(ctx, record.EventLogFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.EqualValues(t, 1, total)
		assert.Equal(t, "BATTERY", entries[0].EventType())
		assert.JSONEq(t, `{"level":93}`, string(entries[0].Payload()))

		got := testutil.ToFloat64(f.metrics.EventsIngested.WithLabelValues("BATTERY"))
		assert.Equal(t, 1.0, got)
	})

	t.Run("should skip deny-listed types", func(t *testing.T) {
		f := newFixture(t, "RAW_DATA", "control")
		f.n.handle(ctx, evt(device.EventTypeRawData, map[string]any{"hex": "ff00"}, now))
		f.n.handle(ctx, evt(device.EventTypeControl, map[string]any{"op": "noop"}, now))
		f.n.handle(ctx, evt(device.EventTypeStatus, map[string]any{"uptime_s": 10}, now))

		entries, total, err := f.eventLog.List(ctx, record.EventLogFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, "STATUS", entries[0].EventType())
	})
}

func TestNormalizer_Stream(t *testing.T) {
	t.Run("should consume events published on the bus", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f.n.Start(ctx)

		key := strings.Repeat("ab", 32)
		f.bus.Publish(evt(device.EventTypeAdvertisement, map[string]any{
			"public_key": key, "name": "Alice",
		}, time.Now().UTC()))

		require.Eventually(t, func() bool {
			n, err := f.nodes.GetByPublicKey(context.Background(), key)
			return err == nil && n != nil
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case <-f.n.Done():
		case <-time.After(time.Second):
			t.Fatal("normalizer did not stop")
		}
	})
}
