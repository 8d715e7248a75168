package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBus_EventSubscriberReceivesPublishedEvent(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	sub := b.SubscribeEvents()
	defer b.UnsubscribeEvents(sub)

	b.PublishEvent(&ExecutionEvent{ExecutionID: "exec-1", Type: "stage_started"})

	select {
	case ev := <-sub:
		assert.Equal(t, "exec-1", ev.ExecutionID)
		assert.Equal(t, "stage_started", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestBus_LogSubscriberReceivesPublishedChunk(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	sub := b.SubscribeLogs()
	defer b.UnsubscribeLogs(sub)

	b.PublishLog(&LogEvent{ExecutionID: "exec-1", Stream: "stdout", Bytes: []byte("hello"), Sequence: 1})

	select {
	case chunk := <-sub:
		assert.Equal(t, "exec-1", chunk.ExecutionID)
		assert.Equal(t, []byte("hello"), chunk.Bytes)
	case <-time.After(time.Second):
		t.Fatal("log chunk never delivered")
	}
}

func TestBus_FansOutToMultipleEventSubscribers(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	sub1 := b.SubscribeEvents()
	sub2 := b.SubscribeEvents()
	defer b.UnsubscribeEvents(sub1)
	defer b.UnsubscribeEvents(sub2)

	b.PublishEvent(&ExecutionEvent{ExecutionID: "exec-1"})

	for _, s := range []EventSubscriber{sub1, sub2} {
		select {
		case ev := <-s:
			assert.Equal(t, "exec-1", ev.ExecutionID)
		case <-time.After(time.Second):
			t.Fatal("subscriber never received fan-out event")
		}
	}
}

func TestBus_UnsubscribeEventsStopsDelivery(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	sub := b.SubscribeEvents()
	b.UnsubscribeEvents(sub)

	b.PublishEvent(&ExecutionEvent{ExecutionID: "exec-1"})

	_, ok := <-sub
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestBus_UnsubscribeLogsIsIdempotent(t *testing.T) {
	b := New()
	sub := b.SubscribeLogs()
	b.UnsubscribeLogs(sub)
	assert.NotPanics(t, func() { b.UnsubscribeLogs(sub) })
}

func TestBus_FullEventSubscriberBufferBlocksRatherThanDrops(t *testing.T) {
	b := New()
	sub := b.SubscribeEvents()
	defer b.UnsubscribeEvents(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventSubscriberBuffer+10; i++ {
			b.broadcastEvent(&ExecutionEvent{ExecutionID: "exec-1"})
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sub, eventSubscriberBuffer)
	select {
	case <-done:
		t.Fatal("broadcast must block on a full event subscriber, not drop")
	default:
	}

	b.Stop()
	<-done
}

func TestBus_StopHaltsBroadcastLoops(t *testing.T) {
	b := New()
	b.Start()
	sub := b.SubscribeEvents()
	b.Stop()

	done := make(chan struct{})
	go func() {
		b.PublishEvent(&ExecutionEvent{ExecutionID: "exec-1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish should return promptly once stopped")
	}

	select {
	case _, ok := <-sub:
		assert.True(t, ok, "subscriber channel should remain open, just undelivered")
		t.Fatal("no event should be delivered after stop")
	case <-time.After(50 * time.Millisecond):
	}
}
