package session

import (
	"context"
	"sync"
	"time"
)

// EventKind enumerates session lifecycle transitions.
type EventKind string

const (
	// EventSignedIn is published when a token is installed.
	EventSignedIn EventKind = "signed-in"
	// EventSignedOut is published on an explicit logout or when a reload finds no token.
	EventSignedOut EventKind = "signed-out"
	// EventInvalidated is published when the API rejected the credential.
	EventInvalidated EventKind = "invalidated"
)

// Event describes a session transition.
type Event struct {
	Kind      EventKind
	Identity  string
	Epoch     uint64
	Timestamp time.Time
}

type broadcaster struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      int64
	bufferSize  int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subscribers: make(map[int64]chan Event),
		bufferSize:  8,
	}
}

func (b *broadcaster) subscribe(ctx context.Context) (<-chan Event, func()) {
	stream := make(chan Event, b.bufferSize)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[id] = stream
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(stream)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// publish never blocks; slow subscribers miss events.
func (b *broadcaster) publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, stream := range b.subscribers {
		select {
		case stream <- event:
		default:
		}
	}
}
