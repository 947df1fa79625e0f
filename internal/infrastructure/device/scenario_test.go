package device

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenarioFile(t *testing.T) {
	t.Run("should parse a valid scenario", func(t *testing.T) {
		path := writeScenarioFile(t, `
name: bench
loop: true
events:
  - type: BATTERY
    delay_ms: 5
    payload:
      level: 90
  - type: STATUS
    delay_ms: 10
    payload:
      uptime_s: "{{counter}}"
`)
		sc, err := LoadScenarioFile(path)
		require.NoError(t, err)
		assert.Equal(t, "bench", sc.Name)
		assert.True(t, sc.Loop)
		require.Len(t, sc.Events, 2)
		assert.Equal(t, "BATTERY", sc.Events[0].Type)
		assert.Equal(t, 5, sc.Events[0].DelayMS)
		assert.Equal(t, 90, sc.Events[0].Payload["level"])
		assert.Equal(t, "{{counter}}", sc.Events[1].Payload["uptime_s"])
	})

	t.Run("should reject a scenario without a name", func(t *testing.T) {
		path := writeScenarioFile(t, `
events:
  - type: BATTERY
`)
		_, err := LoadScenarioFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing a name")
	})

	t.Run("should reject a scenario without events", func(t *testing.T) {
		path := writeScenarioFile(t, "name: empty\nevents: []\n")
		_, err := LoadScenarioFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no events")
	})

	t.Run("should reject an event without a type", func(t *testing.T) {
		path := writeScenarioFile(t, `
name: broken
events:
  - delay_ms: 5
`)
		_, err := LoadScenarioFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing a type")
	})

	t.Run("should reject malformed yaml", func(t *testing.T) {
		path := writeScenarioFile(t, "name: [unclosed\n")
		_, err := LoadScenarioFile(path)
		assert.Error(t, err)
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, err := LoadScenarioFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestBuiltinScenario(t *testing.T) {
	t.Run("should ship demo and quiet", func(t *testing.T) {
		demo := builtinScenario("demo")
		require.NotNil(t, demo)
		assert.True(t, demo.Loop)
		assert.Len(t, demo.Events, 5)

		quiet := builtinScenario("quiet")
		require.NotNil(t, quiet)
		assert.Len(t, quiet.Events, 2)
	})

	t.Run("should match names case-insensitively", func(t *testing.T) {
		assert.NotNil(t, builtinScenario("DEMO"))
	})

	t.Run("should return nil for unknown names", func(t *testing.T) {
		assert.Nil(t, builtinScenario("chaos"))
	})
}

func TestRenderer(t *testing.T) {
	t.Run("should keep native types for whole-string placeholders", func(t *testing.T) {
		r := newRenderer(1)
		out := r.render(map[string]any{
			"tag":  "{{counter}}",
			"snr":  "{{random_snr}}",
			"rssi": "{{random_rssi}}",
		})

		assert.Equal(t, 1, out["tag"])

		snr, ok := out["snr"].(float64)
		require.True(t, ok)
		assert.GreaterOrEqual(t, snr, -20.0)
		assert.LessOrEqual(t, snr, 12.0)
		assert.Equal(t, math.Trunc(snr*4), snr*4, "SNR stays on the quarter-dB grid")

		rssi, ok := out["rssi"].(int)
		require.True(t, ok)
		assert.GreaterOrEqual(t, rssi, -120)
		assert.LessOrEqual(t, rssi, -40)
	})

	t.Run("should substitute embedded placeholders as text", func(t *testing.T) {
		r := newRenderer(1)
		out := r.render(map[string]any{"text": "msg {{counter}} of the day"})
		assert.Equal(t, "msg 1 of the day", out["text"])
	})

	t.Run("should render identifiers and timestamps", func(t *testing.T) {
		r := newRenderer(1)
		fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		r.nowFn = func() time.Time { return fixed }

		out := r.render(map[string]any{"id": "{{uuid}}", "at": "{{now}}"})

		id, ok := out["id"].(string)
		require.True(t, ok)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, "2025-06-01T12:00:00Z", out["at"])
	})

	t.Run("should share the counter within one event and advance across events", func(t *testing.T) {
		r := newRenderer(1)

		first := r.render(map[string]any{"a": "{{counter}}", "b": "tick {{counter}}"})
		assert.Equal(t, 1, first["a"])
		assert.Equal(t, "tick 1", first["b"])

		second := r.render(map[string]any{"a": "{{counter}}"})
		assert.Equal(t, 2, second["a"])
	})

	t.Run("should walk nested maps and arrays", func(t *testing.T) {
		r := newRenderer(1)
		out := r.render(map[string]any{
			"path": []any{
				map[string]any{"hash": "a1", "snr": "{{random_snr}}"},
			},
			"flags": 3,
		})
		path := out["path"].([]any)
		hop := path[0].(map[string]any)
		assert.Equal(t, "a1", hop["hash"])
		assert.IsType(t, float64(0), hop["snr"])
		assert.Equal(t, 3, out["flags"])
	})

	t.Run("should replay the same values for the same seed", func(t *testing.T) {
		a := newRenderer(42)
		b := newRenderer(42)
		for i := 0; i < 16; i++ {
			assert.Equal(t, a.SNR(), b.SNR())
			assert.Equal(t, a.RSSI(), b.RSSI())
			assert.Equal(t, a.Intn(100), b.Intn(100))
			assert.Equal(t, a.Uint32(), b.Uint32())
		}
	})
}
