package device

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	t.Run("should stamp type, payload and receive time", func(t *testing.T) {
		now := time.Now().UTC()
		evt := NewEvent(EventTypeBattery, map[string]any{"level": 87}, now)

		assert.Equal(t, EventTypeBattery, evt.Type)
		assert.Equal(t, 87, evt.Payload["level"])
		assert.Equal(t, now, evt.ReceivedAt)
	})

	t.Run("should default nil payload to empty map", func(t *testing.T) {
		evt := NewEvent(EventTypeStatus, nil, time.Now())

		assert.NotNil(t, evt.Payload)
		assert.Empty(t, evt.Payload)
	})
}

func TestDecodePayload(t *testing.T) {
	t.Run("should decode advertisement payload", func(t *testing.T) {
		key := strings.Repeat("01", 32)
		evt := NewEvent(EventTypeAdvertisement, map[string]any{
			"public_key": key,
			"adv_type":   "chat",
			"name":       "Alice",
			"flags":      3,
		}, time.Now())

		var p AdvertisementPayload
		require.NoError(t, DecodePayload(evt, &p))

		assert.Equal(t, key, p.PublicKey)
		assert.Equal(t, "chat", p.AdvType)
		assert.Equal(t, "Alice", p.Name)
		require.NotNil(t, p.Flags)
		assert.Equal(t, 3, *p.Flags)
	})

	t.Run("should decode contact message with scaled SNR", func(t *testing.T) {
		evt := NewEvent(EventTypeContactMsgRecv, map[string]any{
			"text":          "hi there",
			"pubkey_prefix": "aabbccddeeff",
			"SNR":           float64(34),
			"path_len":      2,
		}, time.Now())

		var p ContactMessagePayload
		require.NoError(t, DecodePayload(evt, &p))

		assert.Equal(t, "hi there", p.Text)
		assert.Equal(t, "aabbccddeeff", p.PubkeyPrefix)
		require.NotNil(t, p.SNR)
		assert.Equal(t, float64(34), *p.SNR)
		require.NotNil(t, p.PathLen)
		assert.Equal(t, 2, *p.PathLen)
	})

	t.Run("should decode contacts aggregate", func(t *testing.T) {
		evt := NewEvent(EventTypeContacts, map[string]any{
			"contacts": []any{
				map[string]any{"public_key": strings.Repeat("aa", 32), "name": "north-gw", "type": "repeater"},
				map[string]any{"public_key": strings.Repeat("bb", 32), "name": "Bob"},
			},
		}, time.Now())

		var p ContactsPayload
		require.NoError(t, DecodePayload(evt, &p))

		require.Len(t, p.Contacts, 2)
		assert.Equal(t, "north-gw", p.Contacts[0].Name)
		assert.Equal(t, "repeater", p.Contacts[0].Type)
		assert.Equal(t, strings.Repeat("bb", 32), p.Contacts[1].PublicKey)
	})
}

func TestTraceDataPayload_Flatten(t *testing.T) {
	t.Run("should flatten inline path into parallel arrays", func(t *testing.T) {
		snr1, snr2 := 8.5, -3.25
		p := TraceDataPayload{
			Path: []TraceHop{{Hash: "a1", SNR: &snr1}, {Hash: "b2", SNR: &snr2}},
		}

		p.Flatten()

		assert.Equal(t, []string{"a1", "b2"}, p.PathHashes)
		assert.Equal(t, []float64{8.5, -3.25}, p.SNRValues)
		require.NotNil(t, p.HopCount)
		assert.Equal(t, 2, *p.HopCount)
		assert.Nil(t, p.Path)
	})

	t.Run("should keep parallel arrays when both shapes present", func(t *testing.T) {
		p := TraceDataPayload{
			PathHashes: []string{"ff"},
			SNRValues:  []float64{1.0},
			Path:       []TraceHop{{Hash: "a1"}, {Hash: "b2"}},
		}

		p.Flatten()

		assert.Equal(t, []string{"ff"}, p.PathHashes)
		require.NotNil(t, p.HopCount)
		assert.Equal(t, 1, *p.HopCount)
	})

	t.Run("should omit snr values when no hop reports one", func(t *testing.T) {
		p := TraceDataPayload{Path: []TraceHop{{Hash: "a1"}, {Hash: "b2"}}}

		p.Flatten()

		assert.Equal(t, []string{"a1", "b2"}, p.PathHashes)
		assert.Nil(t, p.SNRValues)
	})

	t.Run("should respect explicit hop count", func(t *testing.T) {
		hc := 5
		p := TraceDataPayload{PathHashes: []string{"a1"}, HopCount: &hc}

		p.Flatten()

		assert.Equal(t, 5, *p.HopCount)
	})
}

func TestContactMatching(t *testing.T) {
	c := Contact{PublicKey: strings.Repeat("AB", 32), Name: "Relay-One"}

	t.Run("should match key prefix case-insensitively", func(t *testing.T) {
		assert.True(t, c.MatchesKeyPrefix("abab"))
		assert.False(t, c.MatchesKeyPrefix("ff"))
		assert.False(t, c.MatchesKeyPrefix(""))
	})

	t.Run("should match name ignoring case", func(t *testing.T) {
		assert.True(t, c.MatchesName("relay-one"))
		assert.False(t, c.MatchesName("relay-two"))
		assert.False(t, c.MatchesName(""))
	})
}
