package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"meshbridge/internal/domain/device"
	"meshbridge/internal/infrastructure/metrics"
	"meshbridge/internal/infrastructure/ratelimit"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
)

// dequeueTimeout keeps the worker's park short so shutdown is observable.
const dequeueTimeout = time.Second

// counters back the stats endpoint; the Prometheus counters mirror them.
type counters struct {
	processed atomic.Uint64
	dropped   atomic.Uint64
	debounced atomic.Uint64
}

// Worker is the sole consumer of the bounded queue. It paces itself through
// the token bucket and serializes all device command execution.
type Worker struct {
	queue     *BoundedQueue
	limiter   *ratelimit.TokenBucket
	debouncer *Debouncer
	port      device.Port
	metrics   *metrics.Metrics
	counters  *counters
	logger    logger.Interface
	done      chan struct{}
}

// Run consumes until the context is cancelled. A request already dequeued
// when shutdown hits is completed as a failure rather than silently lost.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		if ctx.Err() != nil {
			return
		}
		req, ok := w.queue.Dequeue(ctx, dequeueTimeout)
		if !ok {
			continue
		}
		if err := w.limiter.Acquire(ctx, 1); err != nil {
			w.complete(req, failure("shutdown before dispatch", timeutil.NowUTC()))
			return
		}
		// The in-flight command finishes even during shutdown; the port's own
		// command timeout bounds it.
		w.complete(req, w.dispatch(context.WithoutCancel(ctx), req))
	}
}

// Done is closed once the worker loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// dispatch executes one request and always produces a result; a panicking
// port is converted to a failure instead of killing the loop.
func (w *Worker) dispatch(ctx context.Context, req *Request) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorw("command dispatch panicked",
				"command_id", req.ID,
				"type", req.Type,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			res = failure(fmt.Sprintf("internal error: %v", r), timeutil.NowUTC())
		}
	}()

	ev, err := w.send(ctx, req)
	now := timeutil.NowUTC()
	if err != nil {
		w.logger.Warnw("command failed before reaching the device",
			"command_id", req.ID, "type", req.Type, "error", err)
		return failure(err.Error(), now)
	}
	if ev != nil && ev.Type == device.EventTypeError {
		detail, _ := ev.Payload["detail"].(string)
		if detail == "" {
			detail = "device reported an error"
		}
		return &Result{Success: false, Detail: detail, Event: ev, CompletedAt: now}
	}
	return &Result{Success: true, Event: ev, CompletedAt: now}
}

func (w *Worker) send(ctx context.Context, req *Request) (*device.Event, error) {
	p := req.Params
	switch req.Type {
	case TypeSendMessage:
		return w.port.SendMessage(ctx, stringParam(p, "destination"), stringParam(p, "text"), intParam(p, "txt_type"))
	case TypeSendChannelMessage:
		return w.port.SendChannelMessage(ctx, stringParam(p, "text"), boolParam(p, "flood"))
	case TypeSendAdvert:
		return w.port.SendAdvert(ctx, boolParam(p, "flood"))
	case TypeSendTracePath:
		return w.port.SendTracePath(ctx, stringParam(p, "destination"))
	case TypePing:
		return w.port.Ping(ctx, stringParam(p, "destination"))
	case TypeSendTelemetryRequest:
		return w.port.SendTelemetryRequest(ctx, stringParam(p, "destination"))
	default:
		return nil, errors.NewValidationError("unknown command type", string(req.Type))
	}
}

func (w *Worker) complete(req *Request, res *Result) {
	w.counters.processed.Add(1)
	w.metrics.CommandsProcessed.Inc()
	if res.Success {
		w.logger.Infow("command executed", "command_id", req.ID, "type", req.Type)
	} else {
		w.logger.Warnw("command failed", "command_id", req.ID, "type", req.Type, "detail", res.Detail)
	}
	w.debouncer.MarkCompleted(req.DebounceHash, res)
}

// stringParam reads a string parameter, empty when absent or mistyped.
func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func boolParam(params map[string]any, key string) bool {
	b, _ := params[key].(bool)
	return b
}

// intParam tolerates JSON numbers arriving as float64.
func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
