// Package webhook re-emits selected mesh events to configured HTTP receivers.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/oliveagle/jsonpath"

	domain "meshbridge/internal/domain/device"
	"meshbridge/internal/infrastructure/metrics"
	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/goroutine"
	"meshbridge/internal/shared/logger"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultBackoffBase = 2 * time.Second

	// Response bodies are drained so the client can reuse connections.
	maxDrainBytes = 64 << 10
)

// target is one configured receiver.
type target struct {
	kind string
	url  string
	path *jsonpath.Compiled // nil sends the whole envelope
}

// Fanout posts contact messages, channel messages and advertisements to their
// per-kind receivers. Delivery is fire-and-forget with respect to the
// normalizer: each dispatch runs on its own goroutine, retries a failing
// receiver on a fixed exponential schedule, and logs when the attempts are
// exhausted.
type Fanout struct {
	client  *http.Client
	targets map[domain.EventType]*target
	retries int
	base    time.Duration
	sleep   func(ctx context.Context, d time.Duration) bool
	metrics *metrics.Metrics
	logger  logger.Interface
	wg      sync.WaitGroup
}

// NewFanout builds the routing table from configuration. Invalid JSONPath
// expressions are reported once here and fall back to the full payload.
func NewFanout(cfg config.WebhookConfig, m *metrics.Metrics, log logger.Interface) *Fanout {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := cfg.BackoffBase()
	if base <= 0 {
		base = defaultBackoffBase
	}
	f := &Fanout{
		client:  &http.Client{Timeout: timeout},
		targets: make(map[domain.EventType]*target),
		retries: cfg.Retries,
		base:    base,
		sleep:   sleepCtx,
		metrics: m,
		logger:  log.Named("webhook"),
	}
	f.bind("contact_message", cfg.ContactMessage, domain.EventTypeContactMsgRecv)
	f.bind("channel_message", cfg.ChannelMessage, domain.EventTypeChannelMsgRecv)
	f.bind("advertisement", cfg.Advertisement, domain.EventTypeAdvertisement, domain.EventTypeNewAdvert)
	return f
}

func (f *Fanout) bind(kind string, t config.WebhookTarget, types ...domain.EventType) {
	if t.URL == "" {
		return
	}
	tgt := &target{kind: kind, url: t.URL}
	if expr := t.JSONPath; expr != "" && expr != "$" {
		compiled, err := jsonpath.Compile(expr)
		if err != nil {
			f.logger.Warnw("invalid webhook jsonpath, sending full payload",
				"kind", kind, "jsonpath", expr, "error", err)
		} else {
			tgt.path = compiled
		}
	}
	for _, et := range types {
		f.targets[et] = tgt
	}
}

// Dispatch routes one normalized event to its receiver, if any. It returns
// immediately; delivery proceeds independently.
func (f *Fanout) Dispatch(ctx context.Context, eventType domain.EventType, data map[string]any) {
	tgt, ok := f.targets[eventType]
	if !ok {
		return
	}
	body, contentType, err := f.buildBody(tgt, eventType, data)
	if err != nil {
		f.logger.Errorw("failed to build webhook body", "kind", tgt.kind, "error", err)
		return
	}
	f.wg.Add(1)
	goroutine.SafeGo(f.logger, "webhook-dispatch", func() {
		defer f.wg.Done()
		f.deliver(ctx, tgt, body, contentType)
	})
}

// Drain waits for in-flight deliveries to finish, up to the given grace.
func (f *Fanout) Drain(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		f.logger.Warnw("webhook deliveries still in flight after grace period")
	}
}

// buildBody wraps the payload in the {event_type, data} envelope, applies the
// receiver's projection, and picks the body encoding from the result shape.
func (f *Fanout) buildBody(tgt *target, eventType domain.EventType, data map[string]any) ([]byte, string, error) {
	raw, err := json.Marshal(map[string]any{
		"event_type": string(eventType),
		"data":       data,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode webhook payload: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("failed to normalize webhook payload: %w", err)
	}

	projected := doc
	if tgt.path != nil {
		res, err := tgt.path.Lookup(doc)
		if err != nil {
			// No match falls back to the whole envelope.
			f.logger.Debugw("webhook jsonpath matched nothing, sending full payload",
				"kind", tgt.kind, "error", err)
		} else {
			projected = res
		}
	}

	if s, ok := projected.(string); ok {
		return []byte(s), "text/plain", nil
	}
	body, err := json.Marshal(projected)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode projected payload: %w", err)
	}
	return body, "application/json", nil
}

// deliver runs the attempt loop: 1 + retries attempts, with delays of
// base*2^(attempt-1) between them.
func (f *Fanout) deliver(ctx context.Context, tgt *target, body []byte, contentType string) {
	attempts := 1 + f.retries
	for attempt := 1; attempt <= attempts; attempt++ {
		f.metrics.WebhookAttempts.WithLabelValues(tgt.kind).Inc()
		err := f.post(ctx, tgt.url, body, contentType)
		if err == nil {
			if attempt > 1 {
				f.logger.Infow("webhook delivered after retry",
					"kind", tgt.kind, "url", tgt.url, "attempt", attempt)
			}
			return
		}
		f.logger.Warnw("webhook attempt failed",
			"kind", tgt.kind, "url", tgt.url, "attempt", attempt, "error", err)
		if attempt == attempts {
			break
		}
		if !f.sleep(ctx, f.base<<(attempt-1)) {
			return
		}
	}
	f.metrics.WebhookFailures.WithLabelValues(tgt.kind).Inc()
	f.logger.Errorw("webhook delivery failed, giving up",
		"kind", tgt.kind, "url", tgt.url, "attempts", attempts)
}

func (f *Fanout) post(ctx context.Context, url string, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
