package command

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
)

// debounceEntry tracks one canonical request within the window. waiters are
// one-shot: each channel receives the result exactly once and is then dropped.
type debounceEntry struct {
	firstSeen time.Time
	lastSeen  time.Time
	pending   bool
	result    *Result
	waiters   []chan *Result
}

// Debouncer suppresses duplicate commands inside a sliding window. The first
// request of a burst executes; the rest observe debounced=true and can await
// the first one's result by hash.
type Debouncer struct {
	enabled  bool
	window   time.Duration
	capacity int
	types    map[Type]struct{}

	mu      sync.Mutex
	entries map[string]*debounceEntry

	logger logger.Interface
	nowFn  func() time.Time
}

// NewDebouncer builds the cache from configuration. An empty type set
// debounces nothing even when enabled.
func NewDebouncer(cfg config.DebounceConfig, log logger.Interface) *Debouncer {
	types := make(map[Type]struct{}, len(cfg.Types))
	for _, s := range cfg.Types {
		types[Type(s)] = struct{}{}
	}
	return &Debouncer{
		enabled:  cfg.Enabled,
		window:   cfg.Window(),
		capacity: cfg.Capacity,
		types:    types,
		entries:  make(map[string]*debounceEntry),
		logger:   log.Named("debounce"),
		nowFn:    timeutil.NowUTC,
	}
}

// Hash returns the canonical digest for (type, params). encoding/json sorts
// map keys at every level, so equal requests hash equally regardless of
// field order.
func Hash(t Type, params map[string]any) (string, error) {
	canonical, err := json.Marshal(map[string]any{
		"type":   string(t),
		"params": params,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Check classifies a request. A duplicate inside the window refreshes
// last_seen and reports the first sighting; anything else inserts a fresh
// pending entry.
func (d *Debouncer) Check(t Type, params map[string]any) (duplicate bool, hash string, firstSeen *time.Time) {
	if !d.enabled {
		return false, "", nil
	}
	if _, ok := d.types[t]; !ok {
		return false, "", nil
	}
	h, err := Hash(t, params)
	if err != nil {
		d.logger.Errorw("failed to hash command for debounce", "type", t, "error", err)
		return false, "", nil
	}

	now := d.nowFn()
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[h]; ok {
		if now.Sub(e.lastSeen) <= d.window {
			e.lastSeen = now
			first := e.firstSeen
			return true, h, &first
		}
		delete(d.entries, h)
	}

	if d.capacity > 0 && len(d.entries) >= d.capacity {
		d.evictOldestLocked()
	}
	d.entries[h] = &debounceEntry{firstSeen: now, lastSeen: now, pending: true}
	return false, h, nil
}

// evictOldestLocked removes the non-pending entry with the oldest last_seen.
// Pending entries are never evicted; their waiters must see a result.
func (d *Debouncer) evictOldestLocked() {
	var oldestHash string
	var oldest time.Time
	for h, e := range d.entries {
		if e.pending {
			continue
		}
		if oldestHash == "" || e.lastSeen.Before(oldest) {
			oldestHash = h
			oldest = e.lastSeen
		}
	}
	if oldestHash != "" {
		delete(d.entries, oldestHash)
	}
}

// MarkCompleted transitions an entry to non-pending, caches the result, and
// resolves every waiter. Unknown hashes are a no-op.
func (d *Debouncer) MarkCompleted(hash string, result *Result) {
	if hash == "" || result == nil {
		return
	}
	d.mu.Lock()
	e, ok := d.entries[hash]
	if !ok {
		d.mu.Unlock()
		return
	}
	e.pending = false
	e.result = result
	waiters := e.waiters
	e.waiters = nil
	d.mu.Unlock()

	for _, ch := range waiters {
		ch <- result
	}
}

// WaitForResult blocks until the entry's command finishes or the timeout
// elapses. The second return is false when the hash is unknown or the wait
// timed out.
func (d *Debouncer) WaitForResult(hash string, timeout time.Duration) (*Result, bool) {
	d.mu.Lock()
	e, ok := d.entries[hash]
	if !ok {
		d.mu.Unlock()
		return nil, false
	}
	if !e.pending && e.result != nil {
		res := e.result
		d.mu.Unlock()
		return res, true
	}
	if timeout <= 0 {
		d.mu.Unlock()
		return nil, false
	}
	ch := make(chan *Result, 1)
	e.waiters = append(e.waiters, ch)
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res, true
	case <-timer.C:
		return nil, false
	}
}

// Peek returns the cached result for a hash, if the command has finished.
func (d *Debouncer) Peek(hash string) (*Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[hash]
	if !ok || e.pending || e.result == nil {
		return nil, false
	}
	return e.result, true
}

// Sweep removes expired non-pending entries and reports how many went.
func (d *Debouncer) Sweep() int {
	now := d.nowFn()
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for h, e := range d.entries {
		if !e.pending && now.Sub(e.lastSeen) > d.window {
			delete(d.entries, h)
			removed++
		}
	}
	return removed
}

// Size returns the number of cached entries.
func (d *Debouncer) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
