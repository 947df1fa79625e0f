package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.bug.st/serial"

	domain "meshbridge/internal/domain/device"
	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/goroutine"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
)

const (
	defaultEventBuffer    = 1024
	defaultCommandTimeout = 5 * time.Second

	reconnectInitialInterval = 1 * time.Second
	reconnectMaxInterval     = 30 * time.Second

	// A frame larger than this is firmware garbage, not a real event.
	maxFrameBytes = 128 * 1024
)

// wireFrame is the newline-delimited JSON envelope both directions use.
type wireFrame struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// openFunc opens the underlying byte link. Tests substitute an in-memory pipe.
type openFunc func() (io.ReadWriteCloser, error)

func defaultOpener(cfg config.SerialConfig) openFunc {
	return func() (io.ReadWriteCloser, error) {
		mode := &serial.Mode{BaudRate: cfg.Baud}
		port, err := serial.Open(cfg.Port, mode)
		if err != nil {
			return nil, err
		}
		if cfg.ReadTimeoutMS > 0 {
			if err := port.SetReadTimeout(time.Duration(cfg.ReadTimeoutMS) * time.Millisecond); err != nil {
				port.Close()
				return nil, err
			}
		}
		return port, nil
	}
}

// ackWaiter captures the first event matching one of the expected types.
type ackWaiter struct {
	types map[domain.EventType]struct{}
	ch    chan domain.Event
}

// SerialPort drives a MeshCore device over a serial link. Frames are
// newline-delimited JSON envelopes; commands are serialized so only one is on
// the wire at a time, matching the half-duplex firmware protocol. A lost link
// is reopened with exponential backoff until Disconnect is called.
type SerialPort struct {
	cfg    config.SerialConfig
	open   openFunc
	logger logger.Interface

	mu      sync.Mutex
	running bool // Connect..Disconnect lifecycle
	linked  bool // link currently open
	link    io.ReadWriteCloser
	cancel  context.CancelFunc

	events   chan domain.Event
	contacts *ContactCache

	writeMu sync.Mutex // one command exchange at a time
	ackMu   sync.Mutex
	pending *ackWaiter
}

// NewSerialPort builds a port for the configured serial device.
func NewSerialPort(cfg config.SerialConfig, eventBuffer int, log logger.Interface) *SerialPort {
	return newSerialPort(cfg, eventBuffer, defaultOpener(cfg), log)
}

func newSerialPort(cfg config.SerialConfig, eventBuffer int, open openFunc, log logger.Interface) *SerialPort {
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}
	s := &SerialPort{
		cfg:    cfg,
		open:   open,
		logger: log.Named("serial"),
		events: make(chan domain.Event, eventBuffer),
	}
	s.contacts = NewContactCache(s.fetchContacts, log)
	return s
}

// Connect opens the link and starts the read loop. Connecting an already
// connected port is a no-op.
func (s *SerialPort) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	link, err := s.open()
	if err != nil {
		s.mu.Unlock()
		return errors.NewUnavailableError("failed to open serial port", err.Error())
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.linked = true
	s.link = link
	s.cancel = cancel
	s.mu.Unlock()

	goroutine.SafeGo(s.logger, "serial-read-loop", func() { s.readLoop(runCtx) })
	s.logger.Infow("serial port connected", "port", s.cfg.Port, "baud", s.cfg.Baud)
	s.emit(domain.EventTypeConnected, map[string]any{"port": s.cfg.Port})
	return nil
}

// Disconnect stops the read loop and closes the link. Disconnecting a port
// that never connected is a no-op.
func (s *SerialPort) Disconnect() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.linked = false
	link := s.link
	s.link = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	if link != nil {
		link.Close() // unblocks a pending Read
	}
	s.emit(domain.EventTypeDisconnected, map[string]any{"port": s.cfg.Port, "reason": "disconnect requested"})
	s.logger.Infow("serial port disconnected", "port", s.cfg.Port)
	return nil
}

func (s *SerialPort) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.linked
}

func (s *SerialPort) Events() <-chan domain.Event {
	return s.events
}

func (s *SerialPort) currentLink() io.ReadWriteCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

func (s *SerialPort) setLink(link io.ReadWriteCloser) {
	s.mu.Lock()
	s.link = link
	s.linked = link != nil
	s.mu.Unlock()
}

// readLoop pumps frames off the link until Disconnect. A read failure drops
// into the reconnect loop; the event stream stays open across outages.
func (s *SerialPort) readLoop(ctx context.Context) {
	for {
		link := s.currentLink()
		if link == nil {
			return
		}

		err := s.pump(ctx, link)
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			return
		}

		s.logger.Warnw("serial link lost", "port", s.cfg.Port, "error", err)
		link.Close()
		s.setLink(nil)
		s.emit(domain.EventTypeDisconnected, map[string]any{"port": s.cfg.Port, "reason": err.Error()})

		if !s.reconnect(ctx) {
			return
		}
		s.emit(domain.EventTypeConnected, map[string]any{"port": s.cfg.Port, "reconnected": true})
	}
}

// pump reads until the link errors. The serial driver's read timeout makes
// Read return (0, nil) periodically so context cancellation is observed even
// on a silent line.
func (s *SerialPort) pump(ctx context.Context, link io.ReadWriteCloser) error {
	buf := make([]byte, 4096)
	var acc []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := link.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			acc = s.drainFrames(acc)
			if len(acc) > maxFrameBytes {
				s.logger.Warnw("oversized frame discarded", "bytes", len(acc))
				acc = acc[:0]
			}
		}
		if err != nil {
			return err
		}
	}
}

// drainFrames dispatches every complete line in acc and returns the remainder.
func (s *SerialPort) drainFrames(acc []byte) []byte {
	for {
		i := bytes.IndexByte(acc, '\n')
		if i < 0 {
			return acc
		}
		line := bytes.TrimSpace(acc[:i])
		acc = acc[i+1:]
		if len(line) == 0 {
			continue
		}
		ev, err := decodeFrame(line)
		if err != nil {
			s.logger.Warnw("discarding unparseable frame", "error", err)
			continue
		}
		s.dispatch(ev)
	}
}

func decodeFrame(line []byte) (domain.Event, error) {
	var f wireFrame
	if err := json.Unmarshal(line, &f); err != nil {
		return domain.Event{}, fmt.Errorf("malformed frame: %w", err)
	}
	if f.Type == "" {
		return domain.Event{}, fmt.Errorf("frame missing type")
	}
	return domain.NewEvent(domain.EventType(f.Type), f.Payload, timeutil.NowUTC()), nil
}

// reconnect reopens the link with exponential backoff until it succeeds or
// the port is disconnected. Retries are not capped; a flaky USB adapter can
// stay down for hours.
func (s *SerialPort) reconnect(ctx context.Context) bool {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = reconnectInitialInterval
	expBackoff.MaxInterval = reconnectMaxInterval
	expBackoff.Reset()

	for attempt := 1; ; attempt++ {
		delay := expBackoff.NextBackOff()
		s.logger.Infow("reconnecting serial port", "port", s.cfg.Port, "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		link, err := s.open()
		if err != nil {
			s.logger.Warnw("serial reopen failed", "port", s.cfg.Port, "error", err)
			continue
		}
		s.setLink(link)
		s.logger.Infow("serial port reconnected", "port", s.cfg.Port, "attempts", attempt)
		return true
	}
}

// dispatch hands an event to a pending command waiter, feeds the contact
// cache, and pushes it onto the stream. A full stream buffer drops the event
// rather than stalling the read loop.
func (s *SerialPort) dispatch(ev domain.Event) {
	s.ackMu.Lock()
	if s.pending != nil {
		if _, ok := s.pending.types[ev.Type]; ok {
			s.pending.ch <- ev
			s.pending = nil
		}
	}
	s.ackMu.Unlock()

	if ev.Type == domain.EventTypeContacts {
		var cp domain.ContactsPayload
		if err := domain.DecodePayload(ev, &cp); err == nil {
			s.contacts.Replace(cp.Contacts)
		}
	}

	select {
	case s.events <- ev:
	default:
		s.logger.Warnw("event buffer full, dropping event", "event_type", ev.Type)
	}
}

func (s *SerialPort) emit(t domain.EventType, payload map[string]any) {
	s.dispatch(domain.NewEvent(t, payload, timeutil.NowUTC()))
}

// expect registers interest in the next event of one of the given types.
func (s *SerialPort) expect(types ...domain.EventType) *ackWaiter {
	w := &ackWaiter{
		types: make(map[domain.EventType]struct{}, len(types)),
		ch:    make(chan domain.Event, 1),
	}
	for _, t := range types {
		w.types[t] = struct{}{}
	}
	s.ackMu.Lock()
	s.pending = w
	s.ackMu.Unlock()
	return w
}

func (s *SerialPort) unexpect(w *ackWaiter) {
	s.ackMu.Lock()
	if s.pending == w {
		s.pending = nil
	}
	s.ackMu.Unlock()
}

// sendCommand writes a command frame and waits for the device's response. An
// error return means the frame never reached the device; a response timeout
// comes back as an ERROR event so callers can fold it into a failure result.
func (s *SerialPort) sendCommand(ctx context.Context, cmdType string, payload map[string]any, ackTypes ...domain.EventType) (*domain.Event, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	link := s.link
	up := s.running && s.linked
	s.mu.Unlock()
	if !up || link == nil {
		return nil, errors.NewUnavailableError("device not connected")
	}

	frame, err := json.Marshal(wireFrame{Type: cmdType, Payload: payload})
	if err != nil {
		return nil, errors.NewInternalError("failed to encode command frame", err.Error())
	}
	frame = append(frame, '\n')

	waiter := s.expect(ackTypes...)
	defer s.unexpect(waiter)

	if _, err := link.Write(frame); err != nil {
		return nil, errors.NewUnavailableError("failed to write command", err.Error())
	}

	timeout := s.cfg.CommandTimeout()
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-waiter.ch:
		return &ev, nil
	case <-timer.C:
		ev := domain.NewEvent(domain.EventTypeError, map[string]any{
			"detail": fmt.Sprintf("timed out after %s waiting for %s response", timeout, cmdType),
		}, timeutil.NowUTC())
		return &ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *SerialPort) SendMessage(ctx context.Context, destination, text string, textType int) (*domain.Event, error) {
	full, err := s.contacts.Resolve(ctx, destination)
	if err != nil {
		return nil, err
	}
	return s.sendCommand(ctx, "send_message", map[string]any{
		"destination": full,
		"text":        text,
		"txt_type":    textType,
	}, domain.EventTypeSendConfirmed, domain.EventTypeError)
}

func (s *SerialPort) SendChannelMessage(ctx context.Context, text string, flood bool) (*domain.Event, error) {
	return s.sendCommand(ctx, "send_channel_message", map[string]any{
		"text":  text,
		"flood": flood,
	}, domain.EventTypeSendConfirmed, domain.EventTypeError)
}

func (s *SerialPort) SendAdvert(ctx context.Context, flood bool) (*domain.Event, error) {
	return s.sendCommand(ctx, "send_advert", map[string]any{
		"flood": flood,
	}, domain.EventTypeSendConfirmed, domain.EventTypeError)
}

func (s *SerialPort) SendTracePath(ctx context.Context, destination string) (*domain.Event, error) {
	full, err := s.contacts.Resolve(ctx, destination)
	if err != nil {
		return nil, err
	}
	// The TRACE_DATA result arrives asynchronously once the probe completes.
	return s.sendCommand(ctx, "send_trace_path", map[string]any{
		"destination": full,
	}, domain.EventTypeSendConfirmed, domain.EventTypeError)
}

func (s *SerialPort) Ping(ctx context.Context, destination string) (*domain.Event, error) {
	full, err := s.contacts.Resolve(ctx, destination)
	if err != nil {
		return nil, err
	}
	return s.sendCommand(ctx, "ping", map[string]any{
		"destination": full,
	}, domain.EventTypeSendConfirmed, domain.EventTypeError)
}

func (s *SerialPort) SendTelemetryRequest(ctx context.Context, destination string) (*domain.Event, error) {
	full, err := s.contacts.Resolve(ctx, destination)
	if err != nil {
		return nil, err
	}
	return s.sendCommand(ctx, "send_telemetry_request", map[string]any{
		"destination": full,
	}, domain.EventTypeSendConfirmed, domain.EventTypeError)
}

// GetContacts serves the cached contact book, fetching from the device when
// cold. Concurrent callers share one wire exchange.
func (s *SerialPort) GetContacts(ctx context.Context) ([]domain.Contact, error) {
	return s.contacts.Load(ctx)
}

func (s *SerialPort) ResolveDestination(ctx context.Context, destination string) (string, error) {
	return s.contacts.Resolve(ctx, destination)
}

// fetchContacts is the wire exchange behind the contact cache.
func (s *SerialPort) fetchContacts(ctx context.Context) ([]domain.Contact, error) {
	ev, err := s.sendCommand(ctx, "get_contacts", nil, domain.EventTypeContacts, domain.EventTypeError)
	if err != nil {
		return nil, err
	}
	if ev.Type == domain.EventTypeError {
		detail, _ := ev.Payload["detail"].(string)
		return nil, errors.NewUnavailableError("device failed to list contacts", detail)
	}
	var cp domain.ContactsPayload
	if err := domain.DecodePayload(*ev, &cp); err != nil {
		return nil, errors.NewInternalError("failed to decode contacts payload", err.Error())
	}
	return cp.Contacts, nil
}
