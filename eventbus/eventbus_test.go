package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/newsflow-io/newsflow/model"
)

func TestPublishInvokesHandlersInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	order := []int{}

	bus.Subscribe("topic", func(post *model.Post) { order = append(order, 1) })
	bus.Subscribe("topic", func(post *model.Post) { order = append(order, 2) })
	bus.Subscribe("topic", func(post *model.Post) { order = append(order, 3) })

	bus.Publish("topic", &model.Post{Id: "p"})
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublishToUnknownTopicIsNoop(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish("nobody-home", &model.Post{Id: "p"})
	})
}

func TestHandlerPanicDoesNotStopOthers(t *testing.T) {
	bus := NewBus()
	secondRan := false

	bus.Subscribe("topic", func(post *model.Post) { panic("boom") })
	bus.Subscribe("topic", func(post *model.Post) { secondRan = true })

	assert.NotPanics(t, func() {
		bus.Publish("topic", &model.Post{Id: "p"})
	})
	assert.True(t, secondRan)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0

	sub := bus.Subscribe("topic", func(post *model.Post) { calls++ })
	assert.Equal(t, 1, bus.SubscriberCount("topic"))

	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount("topic"))

	bus.Publish("topic", &model.Post{Id: "p"})
	assert.Equal(t, 0, calls)

	// Removing twice is a no-op.
	assert.NotPanics(t, func() { bus.Unsubscribe(sub) })
}

func TestSubscriberCountUnknownTopic(t *testing.T) {
	bus := NewBus()
	assert.Equal(t, 0, bus.SubscriberCount("unknown"))
}

func TestSubscribeDuringPublishDoesNotAffectInFlightCall(t *testing.T) {
	bus := NewBus()
	lateRan := false

	bus.Subscribe("topic", func(post *model.Post) {
		bus.Subscribe("topic", func(post *model.Post) { lateRan = true })
	})

	bus.Publish("topic", &model.Post{Id: "p"})
	assert.False(t, lateRan)
	assert.Equal(t, 2, bus.SubscriberCount("topic"))

	bus.Publish("topic", &model.Post{Id: "p"})
	assert.True(t, lateRan)
}

func TestPayloadSharedByReference(t *testing.T) {
	bus := NewBus()
	post := &model.Post{Id: "p"}
	var received *model.Post

	bus.Subscribe("topic", func(p *model.Post) { received = p })
	bus.Publish("topic", post)

	assert.Same(t, post, received)
}
