package reactor

import (
	"fmt"
	"sync"

	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/metrics"
)

// ErrAlreadyConnected is returned by Connect when id's receiver has
// already been consumed.
var ErrAlreadyConnected = fmt.Errorf("reactor: already connected")

type slotState int

const (
	slotPending slotState = iota
	slotConnected
)

// slot is one registry entry: either Pending (both halves of the
// channel still held by the broker, waiting for a reactor to connect)
// or Connected (only the sender survives in the registry).
type slot struct {
	state    slotState
	sender   Sender
	receiver Receiver
}

// Broker is the process-wide registry mapping reactor ID to channel
// state. Lookups create Pending entries eagerly so a reactor may be
// addressed before it exists; the eventual Spawn or Connect consumes
// the Pending receiver. Registry mutations are serialized by a mutex;
// scheduling reactors onto goroutines never happens while it is held.
type Broker struct {
	mu    sync.Mutex
	slots map[ID]*slot
	wg    sync.WaitGroup
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{slots: make(map[ID]*slot)}
}

// Get returns a sender for id, inserting a Pending entry if id is
// unknown. Idempotent.
func (b *Broker) Get(id ID) Sender {
	b.mu.Lock()
	defer b.mu.Unlock()
	sl, ok := b.slots[id]
	if !ok {
		sender, receiver := newChannel()
		sl = &slot{state: slotPending, sender: sender, receiver: receiver}
		b.slots[id] = sl
	}
	return sl.sender
}

// Connect consumes the pending receiver for id, marking the slot
// Connected. If id is unknown, a fresh Connected slot is created
// directly. ok is false only if id was already Connected.
func (b *Broker) Connect(id ID) (Receiver, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sl, ok := b.slots[id]
	if !ok {
		sender, receiver := newChannel()
		b.slots[id] = &slot{state: slotConnected, sender: sender}
		return receiver, true
	}
	if sl.state == slotConnected {
		return Receiver{}, false
	}
	sl.state = slotConnected
	receiver := sl.receiver
	sl.receiver = Receiver{}
	return receiver, true
}

// Remove drops id's registry entry. It does not close the channel:
// senders cached elsewhere fail only once the owner has closed its
// receiver, which every caller in this module does before Remove.
func (b *Broker) Remove(id ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.slots, id)
}

// Spawn connects id (allocating a random one if none is given),
// constructs the reactor's event loop around state, runs state's Init,
// and schedules the loop on a new goroutine. Returns the id used.
func (b *Broker) Spawn(state ReactorState, id ...ID) ID {
	var rid ID
	if len(id) > 0 {
		rid = id[0]
	} else {
		rid = NewID()
	}
	receiver, ok := b.Connect(rid)
	if !ok {
		log.WithReactor(rid).Error().Msg("spawn: id already connected")
		return rid
	}
	h := newHandle(b, rid, receiver)
	state.Init(h)
	kind := fmt.Sprintf("%T", state)
	metrics.ReactorsSpawned.WithLabelValues(kind).Inc()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer metrics.ReactorsClosed.WithLabelValues(kind).Inc()
		h.run(state)
	}()
	return rid
}

// SpawnReactorLike registers a pre-owned sender under id and runs fn
// on a new goroutine, for adapters that behave like reactors toward
// the broker (transport endpoints, timer sidecars) without
// implementing the handler-table machinery.
func (b *Broker) SpawnReactorLike(id ID, sender Sender, fn func()) {
	b.mu.Lock()
	b.slots[id] = &slot{state: slotConnected, sender: sender}
	b.mu.Unlock()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// Wait blocks until every reactor and reactor-like task spawned by b
// has returned. Intended for tests and graceful shutdown.
func (b *Broker) Wait() {
	b.wg.Wait()
}

// Count returns the number of live registry entries, used by
// pkg/observability and pkg/metrics to report broker occupancy.
func (b *Broker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}
