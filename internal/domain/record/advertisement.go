package record

import (
	"strings"
	"time"

	"meshbridge/internal/shared/utils"
)

// AdvType is the role a node announces in its advertisement.
type AdvType string

const (
	AdvTypeNone     AdvType = "none"
	AdvTypeChat     AdvType = "chat"
	AdvTypeRepeater AdvType = "repeater"
	AdvTypeRoom     AdvType = "room"
)

// ParseAdvType maps a wire adv_type string onto the known set. Unrecognized
// values report ok=false and are stored as absent.
func ParseAdvType(s string) (AdvType, bool) {
	switch AdvType(strings.ToLower(strings.TrimSpace(s))) {
	case AdvTypeNone:
		return AdvTypeNone, true
	case AdvTypeChat:
		return AdvTypeChat, true
	case AdvTypeRepeater:
		return AdvTypeRepeater, true
	case AdvTypeRoom:
		return AdvTypeRoom, true
	default:
		return "", false
	}
}

// Advertisement is one observed self-announcement. The key is always the full
// 64-char form, never a prefix.
type Advertisement struct {
	id         uint
	publicKey  string
	advType    *AdvType
	name       *string
	flags      *int
	receivedAt time.Time
}

// NewAdvertisement records an announcement from the given full public key.
func NewAdvertisement(publicKey string, receivedAt time.Time) (*Advertisement, error) {
	publicKey = strings.ToLower(strings.TrimSpace(publicKey))
	if err := utils.ValidatePublicKey(publicKey); err != nil {
		return nil, err
	}
	return &Advertisement{publicKey: publicKey, receivedAt: receivedAt}, nil
}

// ReconstructAdvertisement rebuilds an advertisement from persistence.
func ReconstructAdvertisement(id uint, publicKey string, advType *AdvType, name *string, flags *int, receivedAt time.Time) *Advertisement {
	return &Advertisement{
		id:         id,
		publicKey:  publicKey,
		advType:    advType,
		name:       name,
		flags:      flags,
		receivedAt: receivedAt,
	}
}

func (a *Advertisement) ID() uint              { return a.id }
func (a *Advertisement) PublicKey() string     { return a.publicKey }
func (a *Advertisement) AdvType() *AdvType     { return a.advType }
func (a *Advertisement) Name() *string         { return a.name }
func (a *Advertisement) Flags() *int           { return a.flags }
func (a *Advertisement) ReceivedAt() time.Time { return a.receivedAt }

// SetAdvType stores a recognized adv_type; unknown wire values stay absent.
func (a *Advertisement) SetAdvType(raw string) {
	if t, ok := ParseAdvType(raw); ok {
		a.advType = &t
	}
}

// SetName stores the advertised display name, ignoring empty strings.
func (a *Advertisement) SetName(name string) {
	name = strings.TrimSpace(name)
	if name != "" {
		a.name = &name
	}
}

func (a *Advertisement) SetFlags(flags *int) { a.flags = flags }
