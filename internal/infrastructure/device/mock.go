package device

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "meshbridge/internal/domain/device"
	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/goroutine"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
)

const defaultEventInterval = 1500 * time.Millisecond

// streamWeights drives the weighted-random event mix. Order is fixed so a
// seeded run replays the same sequence.
var streamWeights = []struct {
	typ    domain.EventType
	weight int
}{
	{domain.EventTypeAdvertisement, 20},
	{domain.EventTypeContactMsgRecv, 25},
	{domain.EventTypeChannelMsgRecv, 20},
	{domain.EventTypeTelemetryResponse, 10},
	{domain.EventTypeTraceData, 5},
	{domain.EventTypeBattery, 8},
	{domain.EventTypeStatus, 7},
	{domain.EventTypeDeviceInfo, 3},
	{domain.EventTypeStatistics, 2},
}

var mockPhrases = []string{
	"anyone copy?",
	"QSL, loud and clear",
	"heading up to the ridge now",
	"solar bank at 80%",
	"net check-in at 1900",
	"repeater two is back on air",
}

// mockRoster is the simulated mesh the mock port lives in. Generated events
// and the contact book both draw from it, so destination resolution works
// against keys the stream actually announces.
func mockRoster() []domain.Contact {
	return []domain.Contact{
		{PublicKey: strings.Repeat("a1", 32), Name: "Alpha Base", Type: "chat"},
		{PublicKey: strings.Repeat("b2", 32), Name: "Bravo Ridge", Type: "repeater"},
		{PublicKey: strings.Repeat("c3", 32), Name: "Cabin Room", Type: "room"},
		{PublicKey: strings.Repeat("d4", 32), Name: "Delta Mobile", Type: "chat"},
		{PublicKey: strings.Repeat("e5", 32), Name: "Echo Gateway", Type: "repeater"},
	}
}

// MockPort is the hardware-free port variant. It emits either a scripted
// scenario or a weighted-random stream, and acknowledges every command with a
// synthesized SEND_CONFIRMED event.
type MockPort struct {
	cfg    config.MockConfig
	logger logger.Interface

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	events   chan domain.Event
	contacts *ContactCache
	rnd      *renderer
	scenario *Scenario // nil means weighted stream
	roster   []domain.Contact
}

// NewMockPort builds a mock port. cfg.ScenarioFile wins over cfg.Scenario;
// an empty scenario selects the weighted-random stream.
func NewMockPort(cfg config.MockConfig, eventBuffer int, log logger.Interface) (*MockPort, error) {
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}
	m := &MockPort{
		cfg:    cfg,
		logger: log.Named("mock"),
		events: make(chan domain.Event, eventBuffer),
		rnd:    newRenderer(cfg.Seed),
		roster: mockRoster(),
	}

	switch {
	case cfg.ScenarioFile != "":
		sc, err := LoadScenarioFile(cfg.ScenarioFile)
		if err != nil {
			return nil, err
		}
		m.scenario = sc
	case cfg.Scenario != "":
		sc := builtinScenario(cfg.Scenario)
		if sc == nil {
			return nil, errors.NewValidationError("unknown mock scenario", cfg.Scenario)
		}
		m.scenario = sc
	}

	m.contacts = NewContactCache(m.fetchContacts, log)
	return m, nil
}

// Connect starts the event generator. Re-connecting is a no-op.
func (m *MockPort) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()

	goroutine.SafeGo(m.logger, "mock-event-generator", func() { m.run(runCtx) })
	m.logger.Infow("mock device connected", "scenario", m.scenarioName(), "seed", m.cfg.Seed)
	m.emit(domain.EventTypeConnected, map[string]any{"mode": "mock", "scenario": m.scenarioName()})
	return nil
}

// Disconnect stops the generator. Disconnecting an idle port is a no-op.
func (m *MockPort) Disconnect() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.emit(domain.EventTypeDisconnected, map[string]any{"mode": "mock", "reason": "disconnect requested"})
	m.logger.Infow("mock device disconnected")
	return nil
}

func (m *MockPort) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MockPort) Events() <-chan domain.Event {
	return m.events
}

func (m *MockPort) scenarioName() string {
	if m.scenario == nil {
		return "stream"
	}
	return m.scenario.Name
}

func (m *MockPort) run(ctx context.Context) {
	if m.scenario != nil {
		m.runScenario(ctx, m.scenario)
		return
	}
	m.runStream(ctx)
}

func (m *MockPort) runScenario(ctx context.Context, sc *Scenario) {
	for {
		for _, step := range sc.Events {
			if delay := time.Duration(step.DelayMS) * time.Millisecond; delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			m.emit(domain.EventType(step.Type), m.rnd.render(step.Payload))
		}
		if !sc.Loop {
			m.logger.Infow("scenario finished", "scenario", sc.Name)
			return
		}
	}
}

func (m *MockPort) runStream(ctx context.Context) {
	interval := time.Duration(m.cfg.EventIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = defaultEventInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := m.pickType()
			m.emit(t, m.synthesize(t))
		}
	}
}

func (m *MockPort) pickType() domain.EventType {
	total := 0
	for _, w := range streamWeights {
		total += w.weight
	}
	n := m.rnd.Intn(total)
	for _, w := range streamWeights {
		n -= w.weight
		if n < 0 {
			return w.typ
		}
	}
	return streamWeights[0].typ
}

func (m *MockPort) pickContact() domain.Contact {
	return m.roster[m.rnd.Intn(len(m.roster))]
}

func (m *MockPort) pickPhrase() string {
	return mockPhrases[m.rnd.Intn(len(mockPhrases))]
}

// synthesize builds a plausible wire payload for the given kind. Contact
// message SNR is in quarter-dB wire units, every other SNR is already in dB,
// matching device conventions.
func (m *MockPort) synthesize(t domain.EventType) map[string]any {
	switch t {
	case domain.EventTypeAdvertisement:
		c := m.pickContact()
		return map[string]any{
			"public_key": c.PublicKey,
			"adv_type":   c.Type,
			"name":       c.Name,
			"flags":      m.rnd.Intn(2),
		}
	case domain.EventTypeContactMsgRecv:
		c := m.pickContact()
		return map[string]any{
			"text":             m.pickPhrase(),
			"pubkey_prefix":    c.PublicKey[:12],
			"path_len":         1 + m.rnd.Intn(4),
			"txt_type":         0,
			"SNR":              m.rnd.Intn(129) - 80, // quarter-dB wire units
			"sender_timestamp": time.Now().UTC().Unix(),
		}
	case domain.EventTypeChannelMsgRecv:
		return map[string]any{
			"text":        m.pickPhrase(),
			"channel_idx": m.rnd.Intn(2),
			"SNR":         m.rnd.SNR(),
		}
	case domain.EventTypeTelemetryResponse:
		c := m.pickContact()
		return map[string]any{
			"node_public_key": c.PublicKey,
			"parsed": map[string]any{
				"battery_mv":    3500 + m.rnd.Intn(800),
				"temperature_c": float64(150+m.rnd.Intn(150)) / 10.0,
				"rssi":          m.rnd.RSSI(),
			},
		}
	case domain.EventTypeTraceData:
		hops := 1 + m.rnd.Intn(3)
		hashes := make([]any, 0, hops)
		snrs := make([]any, 0, hops)
		for i := 0; i < hops; i++ {
			hashes = append(hashes, m.pickContact().PublicKey[:2])
			snrs = append(snrs, m.rnd.SNR())
		}
		return map[string]any{
			"initiator_tag": m.rnd.Uint32(),
			"path_hashes":   hashes,
			"snr_values":    snrs,
			"hop_count":     hops,
		}
	case domain.EventTypeBattery:
		return map[string]any{
			"level":      20 + m.rnd.Intn(81),
			"millivolts": 3300 + m.rnd.Intn(900),
		}
	case domain.EventTypeStatus:
		return map[string]any{
			"state":               "ok",
			"airtime_utilization": float64(m.rnd.Intn(100)) / 10.0,
			"uptime_s":            3600 + m.rnd.Intn(86400),
		}
	case domain.EventTypeDeviceInfo:
		return map[string]any{
			"model":    "meshcore-sim",
			"firmware": "v1.8.2",
			"radio":    "sx1262",
		}
	case domain.EventTypeStatistics:
		return map[string]any{
			"rx_packets": m.rnd.Intn(5000),
			"tx_packets": m.rnd.Intn(2000),
			"airtime_ms": m.rnd.Intn(600000),
		}
	default:
		return map[string]any{}
	}
}

// push delivers an event, dropping it when the buffer is full so the
// generator never stalls.
func (m *MockPort) push(ev domain.Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warnw("event buffer full, dropping event", "event_type", ev.Type)
	}
}

func (m *MockPort) emit(t domain.EventType, payload map[string]any) {
	m.push(domain.NewEvent(t, payload, timeutil.NowUTC()))
}

// ack synthesizes the device's SEND_CONFIRMED response and mirrors it onto
// the event stream, like firmware echoing a completed command.
func (m *MockPort) ack(cmdType string, fields map[string]any) *domain.Event {
	payload := map[string]any{"command": cmdType}
	for k, v := range fields {
		payload[k] = v
	}
	ev := domain.NewEvent(domain.EventTypeSendConfirmed, payload, timeutil.NowUTC())
	m.push(ev)
	return &ev
}

func (m *MockPort) SendMessage(ctx context.Context, destination, text string, textType int) (*domain.Event, error) {
	if !m.IsConnected() {
		return nil, errors.NewUnavailableError("device not connected")
	}
	full, err := m.contacts.Resolve(ctx, destination)
	if err != nil {
		return nil, err
	}
	return m.ack("send_message", map[string]any{
		"destination": full,
		"text_len":    len(text),
		"txt_type":    textType,
	}), nil
}

func (m *MockPort) SendChannelMessage(ctx context.Context, text string, flood bool) (*domain.Event, error) {
	if !m.IsConnected() {
		return nil, errors.NewUnavailableError("device not connected")
	}
	return m.ack("send_channel_message", map[string]any{
		"text_len": len(text),
		"flood":    flood,
	}), nil
}

func (m *MockPort) SendAdvert(ctx context.Context, flood bool) (*domain.Event, error) {
	if !m.IsConnected() {
		return nil, errors.NewUnavailableError("device not connected")
	}
	return m.ack("send_advert", map[string]any{"flood": flood}), nil
}

func (m *MockPort) SendTracePath(ctx context.Context, destination string) (*domain.Event, error) {
	if !m.IsConnected() {
		return nil, errors.NewUnavailableError("device not connected")
	}
	full, err := m.contacts.Resolve(ctx, destination)
	if err != nil {
		return nil, err
	}
	return m.ack("send_trace_path", map[string]any{"destination": full}), nil
}

func (m *MockPort) Ping(ctx context.Context, destination string) (*domain.Event, error) {
	if !m.IsConnected() {
		return nil, errors.NewUnavailableError("device not connected")
	}
	full, err := m.contacts.Resolve(ctx, destination)
	if err != nil {
		return nil, err
	}
	return m.ack("ping", map[string]any{"destination": full}), nil
}

func (m *MockPort) SendTelemetryRequest(ctx context.Context, destination string) (*domain.Event, error) {
	if !m.IsConnected() {
		return nil, errors.NewUnavailableError("device not connected")
	}
	full, err := m.contacts.Resolve(ctx, destination)
	if err != nil {
		return nil, err
	}
	return m.ack("send_telemetry_request", map[string]any{"destination": full}), nil
}

func (m *MockPort) GetContacts(ctx context.Context) ([]domain.Contact, error) {
	return m.contacts.Load(ctx)
}

func (m *MockPort) ResolveDestination(ctx context.Context, destination string) (string, error) {
	return m.contacts.Resolve(ctx, destination)
}

// fetchContacts serves the fixed roster and mirrors it as a CONTACTS event,
// the way real firmware answers get_contacts.
func (m *MockPort) fetchContacts(ctx context.Context) ([]domain.Contact, error) {
	if !m.IsConnected() {
		return nil, errors.NewUnavailableError("device not connected")
	}
	out := make([]domain.Contact, len(m.roster))
	copy(out, m.roster)
	m.emit(domain.EventTypeContacts, map[string]any{"contacts": out})
	return out, nil
}
