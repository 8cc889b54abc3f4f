package progress

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	b := New()
	defer b.Close()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish("scraping sources", 20)
	u := <-ch
	if u.Status != "scraping sources" || u.Percent != 20 {
		t.Errorf("got %+v", u)
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	b := New()
	defer b.Close()
	ch, cancel := b.Subscribe()
	defer cancel()

	// Overfill the buffer; the publisher must not block.
	for i := 0; i < subscriberBuffer*2; i++ {
		b.Publish("step", i)
	}
	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != subscriberBuffer {
				t.Errorf("received %d updates, want buffer size %d", received, subscriberBuffer)
			}
			return
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()
	ch, cancel := b.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// Publishing to a canceled subscriber must not panic.
	b.Publish("after cancel", 50)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	b := New()
	defer b.Close()
	b.Publish("nobody listening", 10)
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New()
	ch, _ := b.Subscribe()
	b.Close()
	b.Close()
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	b.Publish("after close", 1)
	if ch2, cancel := b.Subscribe(); true {
		cancel()
		if _, ok := <-ch2; ok {
			t.Error("subscribe after close should hand back a closed channel")
		}
	}
}
