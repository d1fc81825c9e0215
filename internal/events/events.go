// Package events implements the non-blocking event broadcast of
// spec.md §6: inscription lifecycle events plus legacy rune-family
// variants retained for interface compatibility though never emitted
// against a Dogecoin chain.
package events

// Kind identifies an event variant.
type Kind int

const (
	InscriptionCreated Kind = iota
	InscriptionTransferred

	// Legacy rune-family variants, retained for interface compatibility
	// with the upstream protocol family this indexer's event bus is
	// modeled on. Never emitted by any updater in this repo — Dogecoin
	// has no rune/dune meta-protocol — but kept so a consumer written
	// against the full variant set doesn't need a Dogecoin-specific
	// fork.
	RuneBurned
	RuneEtched
	RuneMinted
	RuneTransferred
)

// Event is a single emitted occurrence, tagged by Kind with a payload
// whose concrete type depends on Kind (InscriptionPayload for the two
// inscription variants; left untyped for the unused rune variants).
type Event struct {
	Kind    Kind
	Height  uint32
	Payload interface{}
}

// InscriptionPayload is the payload for InscriptionCreated and
// InscriptionTransferred events.
type InscriptionPayload struct {
	SequenceNumber uint32
	InscriptionID  string
}

// Bus is a non-blocking broadcast channel: Publish never blocks the
// caller, dropping the event for any subscriber whose channel is full
// rather than applying backpressure to the indexing main loop.
type Bus struct {
	subscribers []chan Event
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel of the given buffer capacity that receives
// every event published after this call.
func (b *Bus) Subscribe(capacity int) <-chan Event {
	ch := make(chan Event, capacity)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish sends ev to every subscriber without blocking; subscribers
// whose buffer is full simply miss the event.
func (b *Bus) Publish(ev Event) {
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
