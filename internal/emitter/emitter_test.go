package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmit_DeliversInRegistrationOrder(t *testing.T) {
	e := New[int]()

	var order []string
	e.Subscribe(func(int) { order = append(order, "first") })
	e.Subscribe(func(int) { order = append(order, "second") })
	e.Subscribe(func(int) { order = append(order, "third") })

	e.Emit(1)

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEmit_SynchronousOnCallingGoroutine(t *testing.T) {
	e := New[string]()

	var got string
	e.Subscribe(func(v string) { got = v })

	e.Emit("hello")

	// No synchronization needed: delivery completed before Emit returned.
	assert.Equal(t, "hello", got)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	e := New[int]()

	var kept, removed int
	e.Subscribe(func(v int) { kept += v })
	sub := e.Subscribe(func(v int) { removed += v })

	e.Emit(1)
	e.Unsubscribe(sub)
	e.Emit(2)

	assert.Equal(t, 3, kept)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, e.Len())
}

func TestEmit_NoSubscribers(t *testing.T) {
	e := New[struct{}]()
	assert.NotPanics(t, func() { e.Emit(struct{}{}) })
}

func TestSubscribe_DuringEmitDoesNotAffectCurrentDelivery(t *testing.T) {
	e := New[int]()

	var lateCalls int
	e.Subscribe(func(int) {
		e.Subscribe(func(int) { lateCalls++ })
	})

	e.Emit(1)
	assert.Zero(t, lateCalls)

	e.Emit(2)
	assert.Equal(t, 1, lateCalls)
}
