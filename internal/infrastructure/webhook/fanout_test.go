package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "meshbridge/internal/domain/device"
	"meshbridge/internal/infrastructure/metrics"
	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/logger"
)

type capture struct {
	contentType string
	body        []byte
}

// captureServer records every POST and answers with the given status codes,
// repeating the last one once the list runs out.
func captureServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32, chan capture) {
	t.Helper()
	hits := &atomic.Int32{}
	got := make(chan capture, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		body, _ := io.ReadAll(r.Body)
		got <- capture{contentType: r.Header.Get("Content-Type"), body: body}
		idx := n - 1
		if idx >= len(statuses) {
			idx = len(statuses) - 1
		}
		w.WriteHeader(statuses[idx])
	}))
	t.Cleanup(srv.Close)
	return srv, hits, got
}

func newTestFanout(cfg config.WebhookConfig) (*Fanout, *metrics.Metrics, *[]time.Duration) {
	m := metrics.New()
	f := NewFanout(cfg, m, logger.NewLogger())

	var mu sync.Mutex
	delays := &[]time.Duration{}
	f.sleep = func(ctx context.Context, d time.Duration) bool {
		mu.Lock()
		*delays = append(*delays, d)
		mu.Unlock()
		return true
	}
	return f, m, delays
}

func TestFanout_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("should post the full envelope for the root projection", func(t *testing.T) {
		srv, hits, got := captureServer(t, http.StatusOK)
		f, _, _ := newTestFanout(config.WebhookConfig{
			TimeoutS:      5,
			Retries:       3,
			BackoffBaseS:  2,
			Advertisement: config.WebhookTarget{URL: srv.URL, JSONPath: "$"},
		})

		key := strings.Repeat("01", 32)
		f.Dispatch(ctx, domain.EventTypeAdvertisement, map[string]any{
			"public_key": key,
			"name":       "Alice",
		})
		f.Drain(2 * time.Second)

		require.EqualValues(t, 1, hits.Load())
		c := <-got
		assert.Equal(t, "application/json", c.contentType)

		var envelope struct {
			EventType string         `json:"event_type"`
			Data      map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(c.body, &envelope))
		assert.Equal(t, "ADVERTISEMENT", envelope.EventType)
		assert.Equal(t, key, envelope.Data["public_key"])
		assert.Equal(t, "Alice", envelope.Data["name"])
	})

	t.Run("should project a string field to plain text", func(t *testing.T) {
		srv, _, got := captureServer(t, http.StatusOK)
		f, _, _ := newTestFanout(config.WebhookConfig{
			Retries:        0,
			ContactMessage: config.WebhookTarget{URL: srv.URL, JSONPath: "$.data.text"},
		})

		f.Dispatch(ctx, domain.EventTypeContactMsgRecv, map[string]any{"text": "hi there"})
		f.Drain(2 * time.Second)

		c := <-got
		assert.Equal(t, "text/plain", c.contentType)
		assert.Equal(t, "hi there", string(c.body))
	})

	t.Run("should fall back to the envelope when the projection matches nothing", func(t *testing.T) {
		srv, _, got := captureServer(t, http.StatusOK)
		f, _, _ := newTestFanout(config.WebhookConfig{
			ChannelMessage: config.WebhookTarget{URL: srv.URL, JSONPath: "$.data.missing_field"},
		})

		f.Dispatch(ctx, domain.EventTypeChannelMsgRecv, map[string]any{"text": "net check"})
		f.Drain(2 * time.Second)

		c := <-got
		assert.Equal(t, "application/json", c.contentType)
		assert.Contains(t, string(c.body), `"event_type":"CHANNEL_MSG_RECV"`)
	})

	t.Run("should revert an invalid jsonpath to the root projection", func(t *testing.T) {
		srv, _, got := captureServer(t, http.StatusOK)
		f, _, _ := newTestFanout(config.WebhookConfig{
			Advertisement: config.WebhookTarget{URL: srv.URL, JSONPath: "not a path"},
		})

		f.Dispatch(ctx, domain.EventTypeAdvertisement, map[string]any{"name": "Alice"})
		f.Drain(2 * time.Second)

		c := <-got
		assert.Contains(t, string(c.body), `"event_type":"ADVERTISEMENT"`)
	})

	t.Run("should drop kinds without a receiver", func(t *testing.T) {
		srv, hits, _ := captureServer(t, http.StatusOK)
		f, _, _ := newTestFanout(config.WebhookConfig{
			Advertisement: config.WebhookTarget{URL: srv.URL},
		})

		f.Dispatch(ctx, domain.EventTypeContactMsgRecv, map[string]any{"text": "hi"})
		f.Drain(time.Second)
		assert.EqualValues(t, 0, hits.Load())
	})

	t.Run("should route NEW_ADVERT to the advertisement receiver", func(t *testing.T) {
		srv, hits, got := captureServer(t, http.StatusOK)
		f, _, _ := newTestFanout(config.WebhookConfig{
			Advertisement: config.WebhookTarget{URL: srv.URL},
		})

		f.Dispatch(ctx, domain.EventTypeNewAdvert, map[string]any{"name": "Bravo"})
		f.Drain(2 * time.Second)

		require.EqualValues(t, 1, hits.Load())
		c := <-got
		assert.Contains(t, string(c.body), `"event_type":"NEW_ADVERT"`)
	})
}

func TestFanout_Retries(t *testing.T) {
	ctx := context.Background()

	t.Run("should retry a failing receiver on the exponential schedule", func(t *testing.T) {
		srv, hits, _ := captureServer(t, http.StatusInternalServerError)
		f, m, delays := newTestFanout(config.WebhookConfig{
			Retries:       3,
			BackoffBaseS:  2,
			Advertisement: config.WebhookTarget{URL: srv.URL},
		})

		f.Dispatch(ctx, domain.EventTypeAdvertisement, map[string]any{"name": "Alice"})
		f.Drain(5 * time.Second)

		assert.EqualValues(t, 4, hits.Load(), "1 initial + 3 retries")
		assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, *delays)
		assert.Equal(t, float64(4), testutil.ToFloat64(m.WebhookAttempts.WithLabelValues("advertisement")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhookFailures.WithLabelValues("advertisement")))
	})

	t.Run("should stop retrying once the receiver accepts", func(t *testing.T) {
		srv, hits, _ := captureServer(t, http.StatusBadGateway, http.StatusBadGateway, http.StatusOK)
		f, m, _ := newTestFanout(config.WebhookConfig{
			Retries:       5,
			BackoffBaseS:  1,
			Advertisement: config.WebhookTarget{URL: srv.URL},
		})

		f.Dispatch(ctx, domain.EventTypeAdvertisement, map[string]any{"name": "Alice"})
		f.Drain(5 * time.Second)

		assert.EqualValues(t, 3, hits.Load())
		assert.Equal(t, float64(0), testutil.ToFloat64(m.WebhookFailures.WithLabelValues("advertisement")))
	})

	t.Run("should abandon retries when the context is cancelled", func(t *testing.T) {
		srv, hits, _ := captureServer(t, http.StatusInternalServerError)
		m := metrics.New()
		f := NewFanout(config.WebhookConfig{
			Retries:       3,
			BackoffBaseS:  2,
			Advertisement: config.WebhookTarget{URL: srv.URL},
		}, m, logger.NewLogger())
		f.sleep = func(ctx context.Context, d time.Duration) bool { return false }

		f.Dispatch(ctx, domain.EventTypeAdvertisement, map[string]any{"name": "Alice"})
		f.Drain(2 * time.Second)

		assert.EqualValues(t, 1, hits.Load(), "no further attempts after a refused sleep")
	})
}
