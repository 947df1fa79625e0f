// Package device defines the mesh device boundary: the event stream a port
// emits, the command capability set a port implements, and the contact list
// used for destination resolution. Implementations live under
// infrastructure/device.
package device

import (
	"encoding/json"
	"time"
)

// EventType classifies an event emitted by the device link.
type EventType string

const (
	EventTypeAdvertisement     EventType = "ADVERTISEMENT"
	EventTypeNewAdvert         EventType = "NEW_ADVERT"
	EventTypeContactMsgRecv    EventType = "CONTACT_MSG_RECV"
	EventTypeChannelMsgRecv    EventType = "CHANNEL_MSG_RECV"
	EventTypeTraceData         EventType = "TRACE_DATA"
	EventTypeTelemetryResponse EventType = "TELEMETRY_RESPONSE"
	EventTypeContacts          EventType = "CONTACTS"
	EventTypeSendConfirmed     EventType = "SEND_CONFIRMED"
	EventTypeBattery           EventType = "BATTERY"
	EventTypeDeviceInfo        EventType = "DEVICE_INFO"
	EventTypeStatus            EventType = "STATUS"
	EventTypeStatistics        EventType = "STATISTICS"
	EventTypeRawData           EventType = "RAW_DATA"
	EventTypeControl           EventType = "CONTROL"
	EventTypeConnected         EventType = "CONNECTED"
	EventTypeDisconnected      EventType = "DISCONNECTED"
	EventTypeError             EventType = "ERROR"
)

// Event is the uniform envelope for everything the device reports. Payload
// shapes vary by firmware version, so the envelope stays schemaless and the
// typed views below decode the kinds the bridge acts on; unknown kinds are
// still valid events (they land in the event log only).
type Event struct {
	Type       EventType      `json:"type"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt time.Time      `json:"received_at"`
}

// NewEvent builds an event stamped with the given receive time.
func NewEvent(eventType EventType, payload map[string]any, receivedAt time.Time) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{Type: eventType, Payload: payload, ReceivedAt: receivedAt}
}

// PayloadJSON renders the raw payload for event-log persistence.
func (e Event) PayloadJSON() ([]byte, error) {
	return json.Marshal(e.Payload)
}

// AdvertisementPayload is the decoded view of ADVERTISEMENT / NEW_ADVERT.
type AdvertisementPayload struct {
	PublicKey string `json:"public_key"`
	AdvType   string `json:"adv_type,omitempty"`
	Name      string `json:"name,omitempty"`
	Flags     *int   `json:"flags,omitempty"`
}

// ContactMessagePayload is the decoded view of CONTACT_MSG_RECV. SNR arrives
// scaled by 4 on the wire; decode keeps the raw value and the normalizer
// divides it out.
type ContactMessagePayload struct {
	Text            string   `json:"text"`
	PubkeyPrefix    string   `json:"pubkey_prefix,omitempty"`
	SenderPublicKey string   `json:"public_key,omitempty"`
	PathLen         *int     `json:"path_len,omitempty"`
	TxtType         *int     `json:"txt_type,omitempty"`
	Signature       string   `json:"signature,omitempty"`
	SNR             *float64 `json:"SNR,omitempty"`
	SenderTimestamp any      `json:"sender_timestamp,omitempty"`
}

// ChannelMessagePayload is the decoded view of CHANNEL_MSG_RECV.
type ChannelMessagePayload struct {
	Text            string   `json:"text"`
	ChannelIdx      *int     `json:"channel_idx"`
	PathLen         *int     `json:"path_len,omitempty"`
	TxtType         *int     `json:"txt_type,omitempty"`
	SNR             *float64 `json:"SNR,omitempty"`
	SenderTimestamp any      `json:"sender_timestamp,omitempty"`
}

// TraceHop is one hop of an inline TRACE_DATA path array.
type TraceHop struct {
	Hash string   `json:"hash"`
	SNR  *float64 `json:"snr,omitempty"`
}

// TraceDataPayload is the decoded view of TRACE_DATA. Firmware emits either
// parallel path_hashes/snr_values arrays or an inline path of {hash, snr}
// objects; Flatten folds both into the parallel form.
type TraceDataPayload struct {
	InitiatorTag *uint32    `json:"initiator_tag"`
	PathHashes   []string   `json:"path_hashes,omitempty"`
	SNRValues    []float64  `json:"snr_values,omitempty"`
	HopCount     *int       `json:"hop_count,omitempty"`
	Path         []TraceHop `json:"path,omitempty"`
}

// Flatten resolves the inline path form into parallel arrays and fills a
// missing hop count. Parallel arrays win when both shapes are present.
func (p *TraceDataPayload) Flatten() {
	if len(p.PathHashes) == 0 && len(p.Path) > 0 {
		hashes := make([]string, 0, len(p.Path))
		snrs := make([]float64, 0, len(p.Path))
		haveSNR := false
		for _, hop := range p.Path {
			hashes = append(hashes, hop.Hash)
			if hop.SNR != nil {
				snrs = append(snrs, *hop.SNR)
				haveSNR = true
			} else {
				snrs = append(snrs, 0)
			}
		}
		p.PathHashes = hashes
		if haveSNR {
			p.SNRValues = snrs
		}
	}
	if p.HopCount == nil && len(p.PathHashes) > 0 {
		n := len(p.PathHashes)
		p.HopCount = &n
	}
	p.Path = nil
}

// TelemetryPayload is the decoded view of TELEMETRY_RESPONSE.
type TelemetryPayload struct {
	NodePublicKey string         `json:"node_public_key"`
	Raw           []byte         `json:"raw,omitempty"`
	Parsed        map[string]any `json:"parsed,omitempty"`
}

// ContactsPayload is the decoded view of the CONTACTS aggregate.
type ContactsPayload struct {
	Contacts []Contact `json:"contacts"`
}

// DecodePayload unmarshals an event payload into the given typed view.
func DecodePayload(e Event, out any) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
