package device

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "meshbridge/internal/domain/device"
	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
)

func nextEvent(t *testing.T, ch <-chan domain.Event, timeout time.Duration) domain.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out after %s waiting for an event", timeout)
		return domain.Event{}
	}
}

func waitForEvent(t *testing.T, ch <-chan domain.Event, typ domain.EventType, timeout time.Duration) domain.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out after %s waiting for %s", timeout, typ)
			return domain.Event{}
		}
	}
}

func newTestMock(t *testing.T, cfg config.MockConfig) *MockPort {
	t.Helper()
	port, err := NewMockPort(cfg, 64, logger.NewLogger())
	require.NoError(t, err)
	return port
}

func TestNewMockPort(t *testing.T) {
	t.Run("should reject an unknown builtin scenario", func(t *testing.T) {
		_, err := NewMockPort(config.MockConfig{Scenario: "chaos"}, 64, logger.NewLogger())
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("should fail on a missing scenario file", func(t *testing.T) {
		_, err := NewMockPort(config.MockConfig{ScenarioFile: "/nonexistent/sc.yaml"}, 64, logger.NewLogger())
		assert.Error(t, err)
	})

	t.Run("should prefer the scenario file over the builtin name", func(t *testing.T) {
		path := writeScenarioFile(t, "name: custom\nevents:\n  - type: BATTERY\n")
		port, err := NewMockPort(config.MockConfig{ScenarioFile: path, Scenario: "chaos"}, 64, logger.NewLogger())
		require.NoError(t, err)
		assert.Equal(t, "custom", port.scenarioName())
	})
}

func TestMockPort_Lifecycle(t *testing.T) {
	t.Run("should emit lifecycle events and tolerate repeated calls", func(t *testing.T) {
		port := newTestMock(t, config.MockConfig{Seed: 1, EventIntervalMS: 60000})
		ctx := context.Background()

		require.NoError(t, port.Connect(ctx))
		assert.True(t, port.IsConnected())

		ev := nextEvent(t, port.Events(), time.Second)
		assert.Equal(t, domain.EventTypeConnected, ev.Type)
		assert.Equal(t, "mock", ev.Payload["mode"])
		assert.Equal(t, "stream", ev.Payload["scenario"])

		require.NoError(t, port.Connect(ctx), "reconnecting is a no-op")

		require.NoError(t, port.Disconnect())
		assert.False(t, port.IsConnected())
		ev = waitForEvent(t, port.Events(), domain.EventTypeDisconnected, time.Second)
		assert.Equal(t, "disconnect requested", ev.Payload["reason"])

		require.NoError(t, port.Disconnect(), "disconnecting an idle port is a no-op")
	})
}

func TestMockPort_Stream(t *testing.T) {
	t.Run("should replay the same event sequence for the same seed", func(t *testing.T) {
		collect := func() []domain.EventType {
			port := newTestMock(t, config.MockConfig{Seed: 11, EventIntervalMS: 1})
			require.NoError(t, port.Connect(context.Background()))
			defer port.Disconnect()

			types := make([]domain.EventType, 0, 10)
			for len(types) < 10 {
				ev := nextEvent(t, port.Events(), time.Second)
				if ev.Type == domain.EventTypeConnected {
					continue
				}
				types = append(types, ev.Type)
			}
			return types
		}

		assert.Equal(t, collect(), collect())
	})

	t.Run("should stop generating after disconnect", func(t *testing.T) {
		port := newTestMock(t, config.MockConfig{Seed: 2, EventIntervalMS: 1})
		require.NoError(t, port.Connect(context.Background()))
		nextEvent(t, port.Events(), time.Second)
		require.NoError(t, port.Disconnect())

		waitForEvent(t, port.Events(), domain.EventTypeDisconnected, time.Second)
		drainDeadline := time.After(50 * time.Millisecond)
		for {
			select {
			case <-port.Events():
				// events buffered before the generator observed cancellation
			case <-drainDeadline:
				return
			}
		}
	})
}

func TestMockPort_Scenario(t *testing.T) {
	t.Run("should play a scripted scenario once when loop is off", func(t *testing.T) {
		path := writeScenarioFile(t, `
name: once
loop: false
events:
  - type: BATTERY
    delay_ms: 1
    payload:
      level: 90
  - type: STATUS
    delay_ms: 1
    payload:
      uptime_s: "{{counter}}"
`)
		port := newTestMock(t, config.MockConfig{ScenarioFile: path})
		require.NoError(t, port.Connect(context.Background()))
		defer port.Disconnect()

		waitForEvent(t, port.Events(), domain.EventTypeConnected, time.Second)

		battery := nextEvent(t, port.Events(), time.Second)
		assert.Equal(t, domain.EventTypeBattery, battery.Type)
		assert.Equal(t, 90, battery.Payload["level"])

		status := nextEvent(t, port.Events(), time.Second)
		assert.Equal(t, domain.EventTypeStatus, status.Type)
		assert.Equal(t, 2, status.Payload["uptime_s"], "counter advances once per rendered event")

		select {
		case ev := <-port.Events():
			t.Fatalf("unexpected event after scenario end: %s", ev.Type)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestMockPort_Commands(t *testing.T) {
	ctx := context.Background()

	t.Run("should refuse commands while disconnected", func(t *testing.T) {
		port := newTestMock(t, config.MockConfig{Seed: 1})
		_, err := port.SendMessage(ctx, "a1", "hello", 0)
		assert.True(t, errors.IsUnavailableError(err))
		_, err = port.SendAdvert(ctx, true)
		assert.True(t, errors.IsUnavailableError(err))
	})

	t.Run("should confirm a direct message to a resolved prefix", func(t *testing.T) {
		port := newTestMock(t, config.MockConfig{Seed: 1, EventIntervalMS: 60000})
		require.NoError(t, port.Connect(ctx))
		defer port.Disconnect()

		ack, err := port.SendMessage(ctx, "A1", "hello mesh", 0)
		require.NoError(t, err)
		assert.Equal(t, domain.EventTypeSendConfirmed, ack.Type)
		assert.Equal(t, "send_message", ack.Payload["command"])
		assert.Equal(t, strings.Repeat("a1", 32), ack.Payload["destination"])
		assert.Equal(t, len("hello mesh"), ack.Payload["text_len"])

		streamed := waitForEvent(t, port.Events(), domain.EventTypeSendConfirmed, time.Second)
		assert.Equal(t, ack.Payload["destination"], streamed.Payload["destination"],
			"the confirmation is mirrored onto the event stream")
	})

	t.Run("should surface resolution failures", func(t *testing.T) {
		port := newTestMock(t, config.MockConfig{Seed: 1, EventIntervalMS: 60000})
		require.NoError(t, port.Connect(ctx))
		defer port.Disconnect()

		_, err := port.SendMessage(ctx, "ff", "hello", 0)
		assert.True(t, errors.IsNotFoundError(err))

		_, err = port.SendMessage(ctx, "not hex", "hello", 0)
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("should acknowledge the remaining command kinds", func(t *testing.T) {
		port := newTestMock(t, config.MockConfig{Seed: 1, EventIntervalMS: 60000})
		require.NoError(t, port.Connect(ctx))
		defer port.Disconnect()

		ack, err := port.SendChannelMessage(ctx, "net check", true)
		require.NoError(t, err)
		assert.Equal(t, "send_channel_message", ack.Payload["command"])
		assert.Equal(t, true, ack.Payload["flood"])

		ack, err = port.SendAdvert(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "send_advert", ack.Payload["command"])

		full := strings.Repeat("c3", 32)
		ack, err = port.Ping(ctx, full)
		require.NoError(t, err)
		assert.Equal(t, full, ack.Payload["destination"])

		ack, err = port.SendTracePath(ctx, "b2")
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("b2", 32), ack.Payload["destination"])

		ack, err = port.SendTelemetryRequest(ctx, "d4")
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("d4", 32), ack.Payload["destination"])
	})

	t.Run("should serve the roster as the contact book", func(t *testing.T) {
		port := newTestMock(t, config.MockConfig{Seed: 1, EventIntervalMS: 60000})
		require.NoError(t, port.Connect(ctx))
		defer port.Disconnect()

		contacts, err := port.GetContacts(ctx)
		require.NoError(t, err)
		assert.Len(t, contacts, 5)

		ev := waitForEvent(t, port.Events(), domain.EventTypeContacts, time.Second)
		var cp domain.ContactsPayload
		require.NoError(t, domain.DecodePayload(ev, &cp))
		assert.Len(t, cp.Contacts, 5)

		full, err := port.ResolveDestination(ctx, "e5")
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("e5", 32), full)
	})
}
