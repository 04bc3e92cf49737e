package events

import (
	"testing"
	"time"

	"reelmint/internal/domain"
)

func TestPublishReachesOwnUserOnly(t *testing.T) {
	hub := NewHub()
	chA, cancelA := hub.Subscribe("user-a")
	defer cancelA()
	chB, cancelB := hub.Subscribe("user-b")
	defer cancelB()

	hub.Publish(TaskEvent{UserID: "user-a", TaskID: "t1", Status: domain.TaskStatusCompleted})

	select {
	case ev := <-chA:
		if ev.TaskID != "t1" {
			t.Fatalf("got event for task %q, want t1", ev.TaskID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber for user-a received nothing")
	}

	select {
	case ev := <-chB:
		t.Fatalf("subscriber for user-b received unexpected event: %+v", ev)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("user-a")
	cancel()

	if n := hub.SubscriberCount("user-a"); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}
	// channel is closed after cancel
	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}
	// publishing after unsubscribe must not panic or deliver
	hub.Publish(TaskEvent{UserID: "user-a", TaskID: "t1"})
}

func TestCancelIsIdempotent(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("user-a")
	cancel()
	cancel()
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Publish(TaskEvent{UserID: "nobody", TaskID: "t1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("user-a")
	defer cancel()

	done := make(chan struct{})
	go func() {
		// more events than the channel buffers; excess is dropped
		for i := 0; i < 100; i++ {
			hub.Publish(TaskEvent{UserID: "user-a", TaskID: "t"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	hub := NewHub()
	ch1, cancel1 := hub.Subscribe("user-a")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("user-a")
	defer cancel2()

	hub.Publish(TaskEvent{UserID: "user-a", TaskID: "t1"})

	for i, ch := range []<-chan TaskEvent{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}
