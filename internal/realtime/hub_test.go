package realtime

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPublishReachesBoardSubscribers(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("brd_1")
	defer cancel()
	other, cancelOther := hub.Subscribe("brd_2")
	defer cancelOther()

	hub.Publish(Event{Type: EventCardCreated, BoardID: "brd_1", Payload: map[string]string{"id": "crd_1"}})

	select {
	case raw := <-ch:
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != EventCardCreated || ev.BoardID != "brd_1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case raw := <-other:
		t.Fatalf("board brd_2 subscriber received foreign event: %s", raw)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe("brd_1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		// More events than the per-subscriber buffer holds; surplus
		// must be dropped, not block.
		for i := 0; i < 100; i++ {
			hub.Publish(Event{Type: EventCardUpdated, BoardID: "brd_1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestCancelRemovesSubscription(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe("brd_1")
	if got := hub.SubscriberCount("brd_1"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}
	cancel()
	if got := hub.SubscriberCount("brd_1"); got != 0 {
		t.Fatalf("SubscriberCount after cancel = %d, want 0", got)
	}

	// Publishing to an empty channel is a no-op.
	hub.Publish(Event{Type: EventListDeleted, BoardID: "brd_1"})
}

func TestMoveEventCarriesBothListIDs(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("brd_1")
	defer cancel()

	hub.Publish(Event{
		Type:      EventCardMoved,
		BoardID:   "brd_1",
		OldListID: "lst_a",
		NewListID: "lst_b",
	})

	raw := <-ch
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.OldListID != "lst_a" || ev.NewListID != "lst_b" {
		t.Fatalf("move event lost list context: %+v", ev)
	}
}
