// Package eventbus implements the bounded, multi-consumer fan-out channel
// described as C10: the orchestrator publishes EventMsg values, and any
// number of external translators subscribe and map them onto a
// front-end-specific wire schema.
package eventbus

import (
	"sync"

	"github.com/nevindra/codexcore"
)

// deltaKinds are dropped under backpressure rather than blocking the
// publisher; every other kind blocks the publisher until the subscriber's
// channel has room. No subscriber is ever evicted.
var deltaKinds = map[codexcore.EventMsgKind]bool{
	codexcore.EvAgentMessageDelta:          true,
	codexcore.EvReasoningSummaryTextDelta:  true,
	codexcore.EvReasoningTextDelta:         true,
	codexcore.EvExecCommandOutputDelta:     true,
	codexcore.EvCommandExecutionOutputDelta: true,
}

// DefaultCapacity is a small multiple of expected concurrent tools.
const DefaultCapacity = 128

// Bus is a bounded fan-out channel from one orchestrator to N subscribers.
// Safe for concurrent Publish/Subscribe/Unsubscribe.
type Bus struct {
	capacity int

	mu   sync.Mutex
	subs map[int]chan codexcore.EventMsg
	next int
}

// New creates a Bus with the given per-subscriber channel capacity. A
// capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{capacity: capacity, subs: make(map[int]chan codexcore.EventMsg)}
}

// Subscribe registers a new consumer and returns its channel and an id used
// to Unsubscribe. The channel is closed by Unsubscribe or Close.
func (b *Bus) Subscribe() (<-chan codexcore.EventMsg, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan codexcore.EventMsg, b.capacity)
	b.subs[id] = ch
	return ch, id
}

// Unsubscribe removes and closes a subscriber's channel. Safe to call more
// than once.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Close unsubscribes and closes every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber. Lifecycle and item-start/end
// events always block until delivered (backpressure is applied to the
// producer); delta events are dropped for any subscriber whose channel is
// currently full rather than blocking the orchestrator.
func (b *Bus) Publish(ev codexcore.EventMsg) {
	b.mu.Lock()
	chans := make([]chan codexcore.EventMsg, 0, len(b.subs))
	for _, ch := range b.subs {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	dropOK := deltaKinds[ev.Kind]
	for _, ch := range chans {
		if dropOK {
			select {
			case ch <- ev:
			default:
				// Dropped: consumer is stalled and this is a delta event.
			}
			continue
		}
		ch <- ev
	}
}
