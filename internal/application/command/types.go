// Package command implements the outbound pipeline: debounce, bounded queue,
// token-bucket pacing, and the single worker that feeds the device.
package command

import (
	"fmt"
	"time"

	"meshbridge/internal/domain/device"
)

// Type identifies an outbound command kind.
type Type string

const (
	TypeSendMessage          Type = "send_message"
	TypeSendChannelMessage   Type = "send_channel_message"
	TypeSendAdvert           Type = "send_advert"
	TypeSendTracePath        Type = "send_trace_path"
	TypePing                 Type = "ping"
	TypeSendTelemetryRequest Type = "send_telemetry_request"
)

var allTypes = map[Type]struct{}{
	TypeSendMessage:          {},
	TypeSendChannelMessage:   {},
	TypeSendAdvert:           {},
	TypeSendTracePath:        {},
	TypePing:                 {},
	TypeSendTelemetryRequest: {},
}

// ParseType validates a wire-format command type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if _, ok := allTypes[t]; !ok {
		return "", fmt.Errorf("unknown command type: %q", s)
	}
	return t, nil
}

// Request is one accepted command waiting for the worker.
type Request struct {
	ID           string         `json:"id"`
	Type         Type           `json:"type"`
	Params       map[string]any `json:"params,omitempty"`
	EnqueuedAt   time.Time      `json:"enqueued_at"`
	DebounceHash string         `json:"debounce_hash,omitempty"`
}

// Result is the terminal outcome of an executed (or failed) command.
type Result struct {
	Success     bool          `json:"success"`
	Detail      string        `json:"detail,omitempty"`
	Event       *device.Event `json:"event,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

func failure(detail string, at time.Time) *Result {
	return &Result{Success: false, Detail: detail, CompletedAt: at}
}

// Receipt is what an enqueue call returns synchronously, before the device
// has seen anything.
type Receipt struct {
	ID                  string     `json:"id,omitempty"`
	Debounced           bool       `json:"debounced"`
	DebounceHash        string     `json:"debounce_hash,omitempty"`
	OriginalRequestTime *time.Time `json:"original_request_time,omitempty"`
	QueuePosition       int        `json:"queue_position,omitempty"`
	EstimatedWaitS      float64    `json:"estimated_wait_s"`
	QueueSize           int        `json:"queue_size"`
	EvictedOldest       bool       `json:"evicted_oldest,omitempty"`
}

// Stats is the pipeline's instantaneous view for the stats endpoint.
type Stats struct {
	Processed         uint64  `json:"commands_processed_total"`
	Dropped           uint64  `json:"commands_dropped_total"`
	Debounced         uint64  `json:"commands_debounced_total"`
	QueueSize         int     `json:"queue_size"`
	QueueCapacity     int     `json:"queue_capacity"`
	TokensAvailable   float64 `json:"rate_limit_tokens_available"`
	DebounceCacheSize int     `json:"debounce_cache_size"`
}
