package command

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"meshbridge/internal/domain/device"
	"meshbridge/internal/infrastructure/metrics"
	"meshbridge/internal/infrastructure/ratelimit"
	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/goroutine"
	"meshbridge/internal/shared/id"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
)

// Pipeline is the single entry point for outbound commands. Enqueue never
// blocks; execution happens on the worker goroutine.
type Pipeline struct {
	queue     *BoundedQueue
	limiter   *ratelimit.TokenBucket
	debouncer *Debouncer
	worker    *Worker
	metrics   *metrics.Metrics
	counters  *counters
	logger    logger.Interface

	accepting atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

func NewPipeline(cfg config.CommandConfig, port device.Port, m *metrics.Metrics, log logger.Interface) *Pipeline {
	log = log.Named("command")
	c := &counters{}
	queue := NewBoundedQueue(cfg.QueueCapacity, cfg.FullPolicy)
	limiter := ratelimit.NewTokenBucket(cfg.RateLimit)
	debouncer := NewDebouncer(cfg.Debounce, log)

	p := &Pipeline{
		queue:     queue,
		limiter:   limiter,
		debouncer: debouncer,
		metrics:   m,
		counters:  c,
		logger:    log,
	}
	p.worker = &Worker{
		queue:     queue,
		limiter:   limiter,
		debouncer: debouncer,
		port:      port,
		metrics:   m,
		counters:  c,
		logger:    log.Named("worker"),
	}
	p.accepting.Store(true)
	return p
}

// Start launches the worker goroutine. Calling it twice is a no-op.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	goroutine.SafeGo(p.logger, "command-worker", func() {
		p.worker.Run(runCtx)
	})
	p.logger.Infow("command pipeline started",
		"queue_capacity", p.queue.Capacity(),
		"full_policy", p.queue.Policy(),
		"rate_limit_enabled", p.limiter.Enabled(),
		"rate", p.limiter.Rate(),
	)
}

// Stop refuses new commands, lets the in-flight command finish, and fails
// everything still queued so debounce waiters are released.
func (p *Pipeline) Stop(grace time.Duration) {
	p.accepting.Store(false)

	p.mu.Lock()
	cancel := p.cancel
	started := p.started
	p.mu.Unlock()
	if started {
		if cancel != nil {
			cancel()
		}
		select {
		case <-p.worker.Done():
		case <-time.After(grace):
			p.logger.Warnw("command worker did not stop within grace period", "grace", grace)
		}
	}

	now := timeutil.NowUTC()
	for _, req := range p.queue.Drain() {
		p.counters.dropped.Add(1)
		p.metrics.CommandsDropped.Inc()
		p.debouncer.MarkCompleted(req.DebounceHash, failure("dropped: pipeline shut down", now))
	}
	p.logger.Infow("command pipeline stopped",
		"processed", p.counters.processed.Load(),
		"dropped", p.counters.dropped.Load(),
		"debounced", p.counters.debounced.Load(),
	)
}

// Enqueue validates, debounces, and queues one command. The receipt tells the
// caller where the command sits or which earlier request absorbed it.
func (p *Pipeline) Enqueue(cmdType Type, params map[string]any) (*Receipt, error) {
	if !p.accepting.Load() {
		return nil, errors.NewUnavailableError("command pipeline is shutting down")
	}
	if _, ok := allTypes[cmdType]; !ok {
		return nil, errors.NewValidationError("unknown command type", string(cmdType))
	}

	duplicate, hash, firstSeen := p.debouncer.Check(cmdType, params)
	if duplicate {
		p.counters.debounced.Add(1)
		p.metrics.CommandsDebounced.Inc()
		p.logger.Debugw("command debounced", "type", cmdType, "debounce_hash", hash)
		return &Receipt{
			Debounced:           true,
			DebounceHash:        hash,
			OriginalRequestTime: firstSeen,
			QueueSize:           p.queue.Size(),
		}, nil
	}

	now := timeutil.NowUTC()
	req := &Request{
		ID:           id.NewCommandID(),
		Type:         cmdType,
		Params:       params,
		EnqueuedAt:   now,
		DebounceHash: hash,
	}
	position, size, evicted, err := p.queue.Enqueue(req)
	if err != nil {
		// Rejected requests were never accepted, so the dropped counter
		// stays untouched; only the debounce entry is resolved.
		p.debouncer.MarkCompleted(hash, failure("rejected: queue full", now))
		p.logger.Warnw("command rejected, queue full", "type", cmdType, "queue_capacity", p.queue.Capacity())
		return nil, err
	}
	if evicted != nil {
		p.counters.dropped.Add(1)
		p.metrics.CommandsDropped.Inc()
		p.debouncer.MarkCompleted(evicted.DebounceHash, failure("evicted: queue full", now))
		p.logger.Warnw("queue full, oldest command evicted",
			"evicted_id", evicted.ID, "evicted_type", evicted.Type, "enqueued_type", cmdType)
	}

	return &Receipt{
		ID:             req.ID,
		DebounceHash:   hash,
		QueuePosition:  position,
		EstimatedWaitS: p.estimateWait(position),
		QueueSize:      size,
		EvictedOldest:  evicted != nil,
	}, nil
}

// WaitForResult blocks until the command behind hash completes or the
// timeout elapses. The bool reports whether a result was obtained.
func (p *Pipeline) WaitForResult(hash string, timeout time.Duration) (*Result, bool) {
	return p.debouncer.WaitForResult(hash, timeout)
}

// Result returns the cached outcome for hash without blocking.
func (p *Pipeline) Result(hash string) (*Result, bool) {
	return p.debouncer.Peek(hash)
}

// SweepDebounce evicts expired debounce entries; the scheduler calls this.
func (p *Pipeline) SweepDebounce() int {
	return p.debouncer.Sweep()
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:         p.counters.processed.Load(),
		Dropped:           p.counters.dropped.Load(),
		Debounced:         p.counters.debounced.Load(),
		QueueSize:         p.queue.Size(),
		QueueCapacity:     p.queue.Capacity(),
		TokensAvailable:   p.limiter.Available(),
		DebounceCacheSize: p.debouncer.Size(),
	}
}

func (p *Pipeline) estimateWait(position int) float64 {
	rate := p.limiter.Rate()
	if rate <= 0 {
		return 0
	}
	return float64(position) / rate
}
