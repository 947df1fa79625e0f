// Package pubsub fans the device's raw event stream out to in-process
// consumers. Every subscriber gets every event on its own buffered channel; a
// full subscriber drops events instead of blocking the ingestion task.
package pubsub

import (
	"sync"
	"sync/atomic"

	"meshbridge/internal/domain/device"
	"meshbridge/internal/shared/logger"
)

// DefaultSubscriberBuffer is the channel capacity handed to subscribers that
// do not ask for a specific size.
const DefaultSubscriberBuffer = 256

// Bus is a non-blocking broadcast bus over device events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan device.Event]string
	// recvToSend maps the receive-only channel handed to a subscriber back
	// to the bidirectional channel held in subs, so Unsubscribe can accept
	// the caller's view of the channel.
	recvToSend map[<-chan device.Event]chan device.Event
	dropped    atomic.Uint64
	onDrop     func()
	log        logger.Interface
}

// NewBus creates an empty bus.
func NewBus(log logger.Interface) *Bus {
	return &Bus{
		subs:       make(map[chan device.Event]string),
		recvToSend: make(map[<-chan device.Event]chan device.Event),
		log:        log.Named("bus"),
	}
}

// OnDrop registers a callback invoked once per dropped event. Set it before
// the first Publish; it is not synchronized against concurrent publishers.
func (b *Bus) OnDrop(fn func()) { b.onDrop = fn }

// Publish delivers the event to every subscriber. Full subscribers miss the
// event; each miss advances the dropped counter.
func (b *Bus) Publish(e device.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, name := range b.subs {
		select {
		case ch <- e:
		default:
			dropped := b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop()
			}
			b.log.Warnw("subscriber buffer full, event dropped",
				"subscriber", name,
				"event_type", e.Type,
				"dropped_total", dropped,
			)
		}
	}
}

// Subscribe registers a named consumer and returns its event channel.
// bufSize <= 0 selects the default buffer.
func (b *Bus) Subscribe(name string, bufSize int) <-chan device.Event {
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBuffer
	}
	ch := make(chan device.Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = name
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Unknown
// channels are a no-op.
func (b *Bus) Unsubscribe(ch <-chan device.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// Dropped returns the number of events lost to full subscriber buffers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
