// ABOUTME: Tests for the session change broadcaster
// ABOUTME: Covers fan-out, unsubscribe, context cancellation, slow subscribers and close

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed")
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func requireClosed(t *testing.T, ch <-chan Change) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected closed channel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestBroadcaster_AllSubscribersReceive(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context())
	ch2, _ := b.Subscribe(t.Context())

	b.Publish(Change{Kind: ChangeMessages, ConversationID: "c1"})

	for _, ch := range []<-chan Change{ch1, ch2} {
		assert.Equal(t, Change{Kind: ChangeMessages, ConversationID: "c1"}, receive(t, ch))
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context())
	b.Unsubscribe(subID)
	requireClosed(t, ch)

	// Second call is a no-op.
	b.Unsubscribe(subID)
	b.Publish(Change{Kind: ChangeConversations})
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	cancel()

	requireClosed(t, ch)
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context())

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(Change{Kind: ChangeMessages})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_CloseClosesAllAndRejectsNew(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, _ := b.Subscribe(t.Context())
	ch2, _ := b.Subscribe(t.Context())
	b.Close()

	requireClosed(t, ch1)
	requireClosed(t, ch2)

	late, _ := b.Subscribe(t.Context())
	requireClosed(t, late)
	b.Publish(Change{Kind: ChangeConversations})
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		ch, subID := b.Subscribe(t.Context())
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			b.Publish(Change{Kind: ChangeMessages})
			b.Unsubscribe(subID)
		}()
	}
	wg.Wait()
}
