package notify

import (
	"fmt"
	"sync"
	"time"
)

// Level classifies a toast.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
	LevelInfo
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Toast is one transient feedback message.
type Toast struct {
	Level   Level
	Message string
	Time    time.Time
}

// Bus fans toasts out to subscribers. Publishing never blocks: a subscriber
// that stops draining misses toasts instead of freezing the publisher.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Toast
	nextSub int
}

// NewBus builds an empty toast bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Toast)}
}

// Subscribe registers a listener with the given buffer. The cancel func
// unregisters and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Toast, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan Toast, buffer)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers a toast to every subscriber.
func (b *Bus) Publish(level Level, format string, args ...any) {
	toast := Toast{Level: level, Message: fmt.Sprintf(format, args...), Time: time.Now()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- toast:
		default:
		}
	}
}

// Success publishes a success toast.
func (b *Bus) Success(format string, args ...any) { b.Publish(LevelSuccess, format, args...) }

// Error publishes an error toast.
func (b *Bus) Error(format string, args ...any) { b.Publish(LevelError, format, args...) }

// Info publishes an info toast.
func (b *Bus) Info(format string, args ...any) { b.Publish(LevelInfo, format, args...) }
