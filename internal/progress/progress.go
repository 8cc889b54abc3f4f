// Package progress is a best-effort side channel for pipeline status
// updates. The pipeline publishes without waiting; when a subscriber's
// buffer is full the update is dropped rather than stalling the run.
package progress

import "sync"

// Update is one status event during a long-running refresh.
type Update struct {
	Status  string `json:"status"`
	Percent int    `json:"progress_percent"`
}

const subscriberBuffer = 16

// Broadcaster fans updates out to subscribers. The zero value is not
// usable; construct with New.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Update]struct{}
	closed bool
}

func New() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Update]struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away; the channel is closed by it.
func (b *Broadcaster) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Publish delivers the update to every subscriber that has buffer room and
// drops it for the rest. Never blocks.
func (b *Broadcaster) Publish(status string, percent int) {
	u := Update{Status: status, Percent: percent}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Close shuts down all subscriber channels. Publish after Close is a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
