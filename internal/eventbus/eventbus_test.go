package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Publish("hello")
	select {
	case e := <-sub:
		assert.Equal(t, "hello", e)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestBusUnsubscribeCloses(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok)
	// Unsubscribing twice is harmless.
	b.Unsubscribe(sub)
}

func TestBusCloseDropsPublishes(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Close()
	_, ok := <-sub
	require.False(t, ok)
	b.Publish("late") // must not panic
	assert.Len(t, b.Subscribe(), 0)
}

func TestBusNonBlockingDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	for i := 0; i < subscriberBuffer+8; i++ {
		b.Publish(i)
	}
	// The slow subscriber lost events past its buffer but publish never blocked.
	assert.Len(t, sub, subscriberBuffer)
}

func TestFilter(t *testing.T) {
	b := New()
	ints := Filter[int](b)
	b.Publish("skip")
	b.Publish(7)
	select {
	case v := <-ints:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("no typed event received")
	}
	b.Close()
	for range ints {
	}
}
