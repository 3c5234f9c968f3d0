package bus

import (
	"sync"

	"github.com/mothershiphq/mothership/pkg/protocol"
)

// subscriberBuffer bounds how many undelivered messages a slow
// subscriber may accumulate before new publishes are dropped for it.
const subscriberBuffer = 1000

// Message is a published envelope tagged with its origin session, so a
// subscriber can distinguish its own echo from peer traffic.
type Message struct {
	Envelope  protocol.Envelope
	FromConn  string
}

// Subscriber is a channel a session reads published messages from.
type Subscriber chan Message

type riftTopic struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
}

// Bus fans out published messages to every subscriber of a rift,
// keeping each rift's delivery order independent of every other rift.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*riftTopic
}

// New creates an empty Bus. Rift topics are created lazily.
func New() *Bus {
	return &Bus{topics: make(map[string]*riftTopic)}
}

func (b *Bus) topic(riftID string, create bool) *riftTopic {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[riftID]
	if !ok {
		if !create {
			return nil
		}
		t = &riftTopic{subscribers: make(map[Subscriber]bool)}
		b.topics[riftID] = t
	}
	return t
}

// Subscribe joins riftID's topic and returns a channel of future
// published messages. Call Unsubscribe when done to release it.
func (b *Bus) Subscribe(riftID string) Subscriber {
	t := b.topic(riftID, true)

	sub := make(Subscriber, subscriberBuffer)
	t.mu.Lock()
	t.subscribers[sub] = true
	t.mu.Unlock()
	return sub
}

// Unsubscribe removes sub from riftID's topic, closing it. Once the
// last subscriber leaves, the topic itself is removed.
func (b *Bus) Unsubscribe(riftID string, sub Subscriber) {
	t := b.topic(riftID, false)
	if t == nil {
		return
	}

	t.mu.Lock()
	if t.subscribers[sub] {
		delete(t.subscribers, sub)
		close(sub)
	}
	empty := len(t.subscribers) == 0
	t.mu.Unlock()

	if empty {
		b.mu.Lock()
		if cur, ok := b.topics[riftID]; ok && cur == t {
			delete(b.topics, riftID)
		}
		b.mu.Unlock()
	}
}

// Publish delivers msg to every current subscriber of riftID. It never
// blocks: a subscriber whose buffer is full is skipped for this
// message rather than stalling the publisher.
func (b *Bus) Publish(riftID string, msg Message) {
	t := b.topic(riftID, false)
	if t == nil {
		return
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for sub := range t.subscribers {
		select {
		case sub <- msg:
		default:
		}
	}
}

// SubscriberCount reports how many sessions are currently subscribed
// to riftID. Used by metrics and tests.
func (b *Bus) SubscriberCount(riftID string) int {
	t := b.topic(riftID, false)
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}

// ActiveTopics reports how many rifts currently have at least one
// subscriber.
func (b *Bus) ActiveTopics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
