// Package stream fans completed alert broadcasts out to live dashboard
// clients (served over SSE by the API layer).
package stream

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one broadcast outcome pushed to stream subscribers.
type Event struct {
	Phenomenon string    `json:"phenomenon"`
	Color      int       `json:"color"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Timestamp  time.Time `json:"timestamp"`
}

type Feed struct {
	subscribers map[uint64]chan Event
	nextID      atomic.Uint64
	mu          sync.RWMutex
	closed      bool
}

func NewFeed() *Feed {
	return &Feed{
		subscribers: make(map[uint64]chan Event),
	}
}

// Subscribe registers a listener and returns its id and event channel. The
// channel is closed by Unsubscribe or Close.
func (f *Feed) Subscribe() (uint64, chan Event) {
	id := f.nextID.Add(1)
	ch := make(chan Event, 16)

	f.mu.Lock()
	if f.closed {
		close(ch)
	} else {
		f.subscribers[id] = ch
	}
	f.mu.Unlock()

	return id, ch
}

func (f *Feed) Unsubscribe(id uint64) {
	f.mu.Lock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
	f.mu.Unlock()
}

// Publish delivers ev to every subscriber, skipping any whose buffer is full.
func (f *Feed) Publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			// Skip slow subscribers
		}
	}
}

func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Close closes all subscriber channels, causing SSE handlers to exit
// gracefully.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, id)
	}
}
