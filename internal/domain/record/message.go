// Package record holds the persisted event records derived from the device
// stream: messages, advertisements, trace paths, telemetry snapshots, and the
// raw event log. Records are append-only; the retention sweeper is their only
// deleter.
package record

import (
	"fmt"
	"strings"
	"time"

	"meshbridge/internal/shared/constants"
	"meshbridge/internal/shared/utils"
)

// Direction marks whether the device received or transmitted a message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageType separates direct contact messages from channel broadcasts.
type MessageType string

const (
	MessageTypeContact MessageType = "contact"
	MessageTypeChannel MessageType = "channel"
)

// Message is a text message observed on the mesh. Contact messages carry the
// sender's 12-char key prefix; channel messages carry the channel index.
// Exactly one of the two is set, matching the message type.
type Message struct {
	id              uint
	direction       Direction
	messageType     MessageType
	pubkeyPrefix    *string
	channelIdx      *int
	txtType         *int
	pathLen         *int
	signature       *string
	content         string
	snr             *float64
	senderTimestamp *time.Time
	receivedAt      time.Time
}

// NewContactMessage creates a direct message record. The sender prefix is
// lowercased and truncated to the wire's 12-char form.
func NewContactMessage(direction Direction, pubkeyPrefix, content string, receivedAt time.Time) (*Message, error) {
	if err := validateDirection(direction); err != nil {
		return nil, err
	}
	prefix, err := normalizeMessagePrefix(pubkeyPrefix)
	if err != nil {
		return nil, err
	}
	return &Message{
		direction:    direction,
		messageType:  MessageTypeContact,
		pubkeyPrefix: &prefix,
		content:      content,
		receivedAt:   receivedAt,
	}, nil
}

// NewChannelMessage creates a channel broadcast record.
func NewChannelMessage(direction Direction, channelIdx int, content string, receivedAt time.Time) (*Message, error) {
	if err := validateDirection(direction); err != nil {
		return nil, err
	}
	if channelIdx < 0 {
		return nil, fmt.Errorf("channel index must not be negative")
	}
	idx := channelIdx
	return &Message{
		direction:   direction,
		messageType: MessageTypeChannel,
		channelIdx:  &idx,
		content:     content,
		receivedAt:  receivedAt,
	}, nil
}

// ReconstructMessage rebuilds a message from persistence without validation.
func ReconstructMessage(
	id uint,
	direction Direction,
	messageType MessageType,
	pubkeyPrefix *string,
	channelIdx *int,
	txtType *int,
	pathLen *int,
	signature *string,
	content string,
	snr *float64,
	senderTimestamp *time.Time,
	receivedAt time.Time,
) *Message {
	return &Message{
		id:              id,
		direction:       direction,
		messageType:     messageType,
		pubkeyPrefix:    pubkeyPrefix,
		channelIdx:      channelIdx,
		txtType:         txtType,
		pathLen:         pathLen,
		signature:       signature,
		content:         content,
		snr:             snr,
		senderTimestamp: senderTimestamp,
		receivedAt:      receivedAt,
	}
}

func (m *Message) ID() uint                    { return m.id }
func (m *Message) Direction() Direction        { return m.direction }
func (m *Message) MessageType() MessageType    { return m.messageType }
func (m *Message) PubkeyPrefix() *string       { return m.pubkeyPrefix }
func (m *Message) ChannelIdx() *int            { return m.channelIdx }
func (m *Message) TxtType() *int               { return m.txtType }
func (m *Message) PathLen() *int               { return m.pathLen }
func (m *Message) Signature() *string          { return m.signature }
func (m *Message) Content() string             { return m.content }
func (m *Message) SNR() *float64               { return m.snr }
func (m *Message) SenderTimestamp() *time.Time { return m.senderTimestamp }
func (m *Message) ReceivedAt() time.Time       { return m.receivedAt }

func (m *Message) SetTxtType(v *int)               { m.txtType = v }
func (m *Message) SetPathLen(v *int)               { m.pathLen = v }
func (m *Message) SetSNR(v *float64)               { m.snr = v }
func (m *Message) SetSenderTimestamp(v *time.Time) { m.senderTimestamp = v }

// SetSignature stores the sender signature, ignoring empty strings.
func (m *Message) SetSignature(sig string) {
	if sig != "" {
		m.signature = &sig
	}
}

func validateDirection(d Direction) error {
	if d != DirectionInbound && d != DirectionOutbound {
		return fmt.Errorf("invalid message direction: %s", d)
	}
	return nil
}

// normalizeMessagePrefix lowercases a reported sender key and keeps its first
// 12 characters, the wire form for contact message attribution.
func normalizeMessagePrefix(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if len(p) > constants.MsgPrefixLength {
		p = p[:constants.MsgPrefixLength]
	}
	if len(p) < constants.PrefixMinLength {
		return "", fmt.Errorf("sender key prefix too short: %q", p)
	}
	if !utils.IsLowerHex(p) {
		return "", fmt.Errorf("sender key prefix must be lowercase hex: %q", p)
	}
	return p, nil
}
