package device

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"meshbridge/internal/shared/timeutil"
)

// Scenario is a scripted event sequence for the mock port. Payload strings may
// carry the placeholders {{now}}, {{random_snr}}, {{random_rssi}}, {{uuid}}
// and {{counter}}, rendered at dispatch time. A placeholder that is the whole
// value keeps its native type; embedded ones substitute as text.
type Scenario struct {
	Name   string          `yaml:"name"`
	Loop   bool            `yaml:"loop"`
	Events []ScenarioEvent `yaml:"events"`
}

// ScenarioEvent is one scripted step: wait delay_ms, then emit the event.
type ScenarioEvent struct {
	Type    string         `yaml:"type"`
	DelayMS int            `yaml:"delay_ms"`
	Payload map[string]any `yaml:"payload"`
}

// LoadScenarioFile parses a scenario from a YAML file.
func LoadScenarioFile(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario file %s is missing a name", path)
	}
	if len(sc.Events) == 0 {
		return nil, fmt.Errorf("scenario %q has no events", sc.Name)
	}
	for i, ev := range sc.Events {
		if ev.Type == "" {
			return nil, fmt.Errorf("scenario %q event %d is missing a type", sc.Name, i)
		}
	}
	return &sc, nil
}

// builtinScenario returns one of the shipped scenarios, or nil.
func builtinScenario(name string) *Scenario {
	roster := mockRoster()
	switch strings.ToLower(name) {
	case "demo":
		// One pass over every kind the normalizer persists. The trace step
		// uses the inline path shape on purpose.
		return &Scenario{
			Name: "demo",
			Loop: true,
			Events: []ScenarioEvent{
				{Type: "ADVERTISEMENT", DelayMS: 600, Payload: map[string]any{
					"public_key": roster[0].PublicKey,
					"adv_type":   roster[0].Type,
					"name":       roster[0].Name,
				}},
				{Type: "CONTACT_MSG_RECV", DelayMS: 1200, Payload: map[string]any{
					"text":             "demo message {{counter}}",
					"pubkey_prefix":    roster[0].PublicKey[:12],
					"path_len":         2,
					"txt_type":         0,
					"SNR":              22, // quarter-dB wire units
					"sender_timestamp": "{{now}}",
				}},
				{Type: "CHANNEL_MSG_RECV", DelayMS: 1200, Payload: map[string]any{
					"text":        "channel demo {{counter}} ({{uuid}})",
					"channel_idx": 0,
					"SNR":         "{{random_snr}}",
				}},
				{Type: "TELEMETRY_RESPONSE", DelayMS: 1500, Payload: map[string]any{
					"node_public_key": roster[1].PublicKey,
					"parsed": map[string]any{
						"battery_mv":    4100,
						"temperature_c": 21.5,
						"rssi":          "{{random_rssi}}",
					},
				}},
				{Type: "TRACE_DATA", DelayMS: 1500, Payload: map[string]any{
					"initiator_tag": "{{counter}}",
					"path": []any{
						map[string]any{"hash": roster[1].PublicKey[:2], "snr": "{{random_snr}}"},
						map[string]any{"hash": roster[4].PublicKey[:2], "snr": "{{random_snr}}"},
					},
				}},
			},
		}
	case "quiet":
		return &Scenario{
			Name: "quiet",
			Loop: true,
			Events: []ScenarioEvent{
				{Type: "BATTERY", DelayMS: 2000, Payload: map[string]any{
					"level":      87,
					"millivolts": 4050,
				}},
				{Type: "STATUS", DelayMS: 2000, Payload: map[string]any{
					"state":    "ok",
					"uptime_s": "{{counter}}",
				}},
			},
		}
	default:
		return nil
	}
}

// renderer expands scenario placeholders and feeds the weighted stream's
// randomness. A non-zero seed makes the whole event sequence reproducible.
type renderer struct {
	mu      sync.Mutex
	rng     *rand.Rand
	counter uint64
	nowFn   func() time.Time
}

func newRenderer(seed int64) *renderer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &renderer{
		rng:   rand.New(rand.NewSource(seed)),
		nowFn: time.Now,
	}
}

// render expands a payload. The counter advances once per call, so every
// {{counter}} occurrence within one event shares the value.
func (r *renderer) render(payload map[string]any) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	out, _ := r.renderValue(payload).(map[string]any)
	return out
}

func (r *renderer) renderValue(v any) any {
	switch t := v.(type) {
	case string:
		return r.renderString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = r.renderValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.renderValue(val)
		}
		return out
	default:
		return v
	}
}

func (r *renderer) renderString(s string) any {
	switch s {
	case "{{now}}":
		return timeutil.FormatMetadataTime(r.nowFn())
	case "{{random_snr}}":
		return r.snrLocked()
	case "{{random_rssi}}":
		return r.rssiLocked()
	case "{{uuid}}":
		return uuid.NewString()
	case "{{counter}}":
		return int(r.counter)
	}
	if !strings.Contains(s, "{{") {
		return s
	}
	return strings.NewReplacer(
		"{{now}}", timeutil.FormatMetadataTime(r.nowFn()),
		"{{random_snr}}", strconv.FormatFloat(r.snrLocked(), 'f', -1, 64),
		"{{random_rssi}}", strconv.Itoa(r.rssiLocked()),
		"{{uuid}}", uuid.NewString(),
		"{{counter}}", strconv.FormatUint(r.counter, 10),
	).Replace(s)
}

// snrLocked returns an SNR in dB on the quarter-dB grid LoRa radios report.
func (r *renderer) snrLocked() float64 {
	return float64(r.rng.Intn(129)-80) / 4.0 // -20.0 .. 12.0
}

func (r *renderer) rssiLocked() int {
	return -(40 + r.rng.Intn(81)) // -40 .. -120 dBm
}

// SNR and RSSI take the lock for callers outside render.
func (r *renderer) SNR() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snrLocked()
}

func (r *renderer) RSSI() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rssiLocked()
}

// Intn exposes the seeded source for the weighted stream's choices.
func (r *renderer) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

func (r *renderer) Uint32() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Uint32()
}
