package node

import (
	"fmt"
	"strings"
	"time"

	"meshbridge/internal/shared/utils"
)

// TagValueType names the populated slot of a tag value.
type TagValueType string

const (
	TagValueString     TagValueType = "string"
	TagValueNumber     TagValueType = "number"
	TagValueBoolean    TagValueType = "boolean"
	TagValueCoordinate TagValueType = "coordinate"
)

// TagValue is a typed tag payload. Exactly one slot is populated, matching
// the value type.
type TagValue struct {
	valueType TagValueType
	str       string
	num       float64
	boolean   bool
	lat       float64
	lon       float64
}

// NewStringValue builds a string tag value.
func NewStringValue(s string) TagValue {
	return TagValue{valueType: TagValueString, str: s}
}

// NewNumberValue builds a numeric tag value.
func NewNumberValue(f float64) TagValue {
	return TagValue{valueType: TagValueNumber, num: f}
}

// NewBooleanValue builds a boolean tag value.
func NewBooleanValue(b bool) TagValue {
	return TagValue{valueType: TagValueBoolean, boolean: b}
}

// NewCoordinateValue builds a coordinate tag value after range-checking
// latitude and longitude.
func NewCoordinateValue(lat, lon float64) (TagValue, error) {
	if err := utils.ValidateCoordinate(lat, lon); err != nil {
		return TagValue{}, err
	}
	return TagValue{valueType: TagValueCoordinate, lat: lat, lon: lon}, nil
}

// InferTagValue maps a decoded JSON value onto a typed tag value: bool,
// number, string, or an object carrying lat and lon.
func InferTagValue(raw any) (TagValue, error) {
	switch v := raw.(type) {
	case bool:
		return NewBooleanValue(v), nil
	case float64:
		return NewNumberValue(v), nil
	case int:
		return NewNumberValue(float64(v)), nil
	case int64:
		return NewNumberValue(float64(v)), nil
	case string:
		return NewStringValue(v), nil
	case map[string]any:
		lat, latOK := toFloat(v["lat"])
		lon, lonOK := toFloat(v["lon"])
		if !latOK || !lonOK {
			return TagValue{}, fmt.Errorf("coordinate value requires numeric lat and lon")
		}
		return NewCoordinateValue(lat, lon)
	default:
		return TagValue{}, fmt.Errorf("unsupported tag value type %T", raw)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ReconstructTagValue rebuilds a tag value from its persisted slots.
func ReconstructTagValue(valueType TagValueType, str *string, num *float64, boolean *bool, lat, lon *float64) TagValue {
	tv := TagValue{valueType: valueType}
	switch valueType {
	case TagValueString:
		if str != nil {
			tv.str = *str
		}
	case TagValueNumber:
		if num != nil {
			tv.num = *num
		}
	case TagValueBoolean:
		if boolean != nil {
			tv.boolean = *boolean
		}
	case TagValueCoordinate:
		if lat != nil {
			tv.lat = *lat
		}
		if lon != nil {
			tv.lon = *lon
		}
	}
	return tv
}

func (v TagValue) Type() TagValueType { return v.valueType }
func (v TagValue) String() string     { return v.str }
func (v TagValue) Number() float64    { return v.num }
func (v TagValue) Boolean() bool      { return v.boolean }

// Coordinate returns the latitude/longitude pair of a coordinate value.
func (v TagValue) Coordinate() (lat, lon float64) { return v.lat, v.lon }

// Raw returns the populated slot as a plain value for JSON responses.
func (v TagValue) Raw() any {
	switch v.valueType {
	case TagValueString:
		return v.str
	case TagValueNumber:
		return v.num
	case TagValueBoolean:
		return v.boolean
	case TagValueCoordinate:
		return map[string]float64{"lat": v.lat, "lon": v.lon}
	default:
		return nil
	}
}

// NodeTag is user-assigned metadata on a node, unique per (node, key). Tags
// are owned by operators; the ingestion path never writes them.
type NodeTag struct {
	id            uint
	nodePublicKey string
	key           string
	value         TagValue
	createdAt     time.Time
	updatedAt     time.Time
}

// NewNodeTag creates a tag for the given node key.
func NewNodeTag(nodePublicKey, key string, value TagValue) (*NodeTag, error) {
	nodePublicKey = strings.ToLower(strings.TrimSpace(nodePublicKey))
	if err := utils.ValidatePublicKey(nodePublicKey); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("tag key is required")
	}
	if value.valueType == "" {
		return nil, fmt.Errorf("tag value is required")
	}
	now := time.Now().UTC()
	return &NodeTag{
		nodePublicKey: nodePublicKey,
		key:           key,
		value:         value,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ReconstructNodeTag rebuilds a tag from persistence without validation.
func ReconstructNodeTag(id uint, nodePublicKey, key string, value TagValue, createdAt, updatedAt time.Time) *NodeTag {
	return &NodeTag{
		id:            id,
		nodePublicKey: nodePublicKey,
		key:           key,
		value:         value,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

func (t *NodeTag) ID() uint              { return t.id }
func (t *NodeTag) NodePublicKey() string { return t.nodePublicKey }
func (t *NodeTag) Key() string           { return t.key }
func (t *NodeTag) Value() TagValue       { return t.value }
func (t *NodeTag) CreatedAt() time.Time  { return t.createdAt }
func (t *NodeTag) UpdatedAt() time.Time  { return t.updatedAt }

// UpdateValue replaces the tag's value and bumps updated_at.
func (t *NodeTag) UpdateValue(value TagValue) error {
	if value.valueType == "" {
		return fmt.Errorf("tag value is required")
	}
	t.value = value
	t.updatedAt = time.Now().UTC()
	return nil
}
