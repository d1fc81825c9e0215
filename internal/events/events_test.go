package events

import "testing"

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)

	bus.Publish(Event{Kind: InscriptionCreated, Height: 5})

	select {
	case ev := <-ch:
		if ev.Kind != InscriptionCreated || ev.Height != 5 {
			t.Errorf("got %+v", ev)
		}
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)

	bus.Publish(Event{Kind: InscriptionCreated})
	// Second publish should not block even though ch's buffer is full.
	bus.Publish(Event{Kind: InscriptionTransferred})

	ev := <-ch
	if ev.Kind != InscriptionCreated {
		t.Errorf("expected first event to survive, got %+v", ev)
	}
}
