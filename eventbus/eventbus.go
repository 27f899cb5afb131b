package eventbus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/newsflow-io/newsflow/model"
	. "github.com/newsflow-io/newsflow/utils/log"
)

// Topics carried by the bus. Registration is expected to happen once at
// startup, before the first publish.
const (
	// TopicNewPost carries posts that survived deduplication.
	TopicNewPost = "new_post"
	// TopicApprovedPost carries posts that passed the scoring stage and are
	// eligible for subscriber delivery.
	TopicApprovedPost = "approved_post"
)

// Handler consumes one published post. The post is shared by reference with
// every handler of the topic.
type Handler func(post *model.Post)

// Subscription identifies one registered handler so it can be removed later.
// Go functions are not comparable, so unsubscription goes through the handle
// returned at registration time instead of the handler value itself.
type Subscription struct {
	topic string
	id    string
}

// Publisher is the capability to emit posts onto a topic.
type Publisher interface {
	Publish(topic string, post *model.Post)
}

// Subscriber is the capability to register and remove topic handlers.
type Subscriber interface {
	Subscribe(topic string, handler Handler) Subscription
	Unsubscribe(sub Subscription)
}

type registration struct {
	id      string
	handler Handler
}

// Bus is a single-process, synchronous publish/subscribe mechanism with named
// topics. It implements both Publisher and Subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]registration
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]registration),
	}
}

// Subscribe registers handler for topic. Handlers fire in registration order.
// Thread-safe.
func (b *Bus) Subscribe(topic string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subs[topic] = append(b.subs[topic], registration{id: id, handler: handler})
	Log.Infof("add subscriber for topic %s", topic)
	return Subscription{topic: topic, id: id}
}

// Unsubscribe removes a previously registered handler. Removing an unknown
// subscription is a no-op. Thread-safe.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.subs[sub.topic]
	for i, r := range regs {
		if r.id == sub.id {
			b.subs[sub.topic] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// Publish synchronously invokes every handler currently registered for topic,
// in registration order, passing post by reference. Handlers are invoked over
// a snapshot of the registration list, so subscribing or unsubscribing from
// inside a handler never affects the in-flight publish. A panicking handler
// is logged with topic and post context and does not prevent the remaining
// handlers from running. Publishing to a topic with no subscribers is a
// silent no-op. Thread-safe.
func (b *Bus) Publish(topic string, post *model.Post) {
	b.mu.RLock()
	snapshot := make([]registration, len(b.subs[topic]))
	copy(snapshot, b.subs[topic])
	b.mu.RUnlock()

	for _, r := range snapshot {
		b.invoke(topic, r, post)
	}
}

func (b *Bus) invoke(topic string, r registration, post *model.Post) {
	defer func() {
		if rec := recover(); rec != nil {
			postId := ""
			if post != nil {
				postId = post.Id
			}
			Log.Errorf("handler panic on topic %s, post %s: %v", topic, postId, rec)
		}
	}()
	r.handler(post)
}

// SubscriberCount returns the number of handlers registered for topic, zero
// for an unknown topic. Thread-safe.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
