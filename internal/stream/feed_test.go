package stream

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFeed_SubscribeUnsubscribe(t *testing.T) {
	f := NewFeed()

	id, ch := f.Subscribe()
	if f.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", f.SubscriberCount())
	}

	f.Unsubscribe(id)
	if f.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", f.SubscriberCount())
	}

	// Channel should be closed
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	default:
		t.Error("channel should be closed and readable")
	}
}

func TestFeed_Publish(t *testing.T) {
	f := NewFeed()

	id, ch := f.Subscribe()
	defer f.Unsubscribe(id)

	ev := Event{Phenomenon: "Wind", Color: 3, Sent: 12}
	f.Publish(ev)

	select {
	case received := <-ch:
		if received.Phenomenon != "Wind" || received.Sent != 12 {
			t.Errorf("unexpected event: %+v", received)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestFeed_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	f := NewFeed()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := f.Subscribe()
			time.Sleep(time.Millisecond)
			f.Unsubscribe(id)
		}()
	}

	wg.Wait()

	if f.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after cleanup, got %d", f.SubscriberCount())
	}
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	f := NewFeed()

	id, ch := f.Subscribe()
	defer f.Unsubscribe(id)

	// Buffer is 16; publishing more must not block.
	for i := 0; i < 20; i++ {
		f.Publish(Event{Color: i})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count != 16 {
				t.Errorf("expected 16 buffered events, got %d", count)
			}
			return
		}
	}
}

func TestFeed_Close(t *testing.T) {
	f := NewFeed()

	var channels []chan Event
	for i := 0; i < 5; i++ {
		_, ch := f.Subscribe()
		channels = append(channels, ch)
	}

	f.Close()

	if f.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", f.SubscriberCount())
	}

	for i, ch := range channels {
		select {
		case _, ok := <-ch:
			if ok {
				t.Errorf("channel %d should be closed", i)
			}
		default:
			t.Errorf("channel %d should be closed and readable", i)
		}
	}
}

func TestFeed_SubscribeAfterClose(t *testing.T) {
	f := NewFeed()
	f.Close()

	_, ch := f.Subscribe()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel from closed feed")
		}
	default:
		t.Error("channel should be closed and readable")
	}
	if f.SubscriberCount() != 0 {
		t.Errorf("closed feed should not retain subscribers, got %d", f.SubscriberCount())
	}
}
