/*
Package reactor implements MOZAIC's actor kernel: a generic,
message-dispatching runtime where isolated state machines ("reactors")
communicate exclusively by typed messages, composed through
bidirectional links.

# Architecture

	┌───────────────────────── BROKER ─────────────────────────┐
	│  map[ID]*slot   (Pending: sender+receiver | Connected: sender)│
	└──────────────────────────┬────────────────────────────────┘
	                           │ Spawn / Get / Connect
	        ┌──────────────────▼──────────────────┐
	        │              Handle                  │
	        │  - id, links map[ID]*linkEntry       │
	        │  - deferred []Operation              │
	        │  - handlers map[Tag]HandlerFunc       │
	        └──────────────────┬──────────────────┘
	                           │ run(): Recv -> dispatch -> drainDeferred
	        ┌──────────────────▼──────────────────┐
	        │         Operation (channel)          │
	        │  InternalMessage | ExternalMessage    │
	        │  OpenLinkOp | CloseLinkOp | CloseOp   │
	        └───────────────────────────────────────┘

Each reactor is a single goroutine running Handle.run: it blocks on its
Receiver, dispatches one Operation, then drains the deferred-ops queue
to completion before consuming the next Operation. Handlers never
mutate the link table or emit messages directly — every such action is
queued on the Handle and applied between Operations, so a handler can
never observe its own reactor's state change mid-iteration.

# Message envelopes

Message is the opaque-typed envelope: a boxed value tagged by its
runtime type (reflect.Type), analogous to a type-erased value keyed by
type identity. StructuredMessage is the JSON-shaped envelope used on
the wire: a string type_id plus a raw JSON body, decoded lazily.

# Links

A link is asymmetric: two reactors that both want to talk to each
other each own their own link object. Opening a link on one side does
not open the other. Closing is cooperative — closing locally always
notifies the peer so its mirror entry is removed too — and a link
marked cascade=true takes its owner reactor down with it when closed,
which is how "if my only peer is gone, I should die" is expressed
without either side holding an owning reference to the other's state.

# Usage

Defining a reactor:

	type Echo struct {
		reactor.Base
	}

	func NewEcho() *Echo {
		e := &Echo{}
		e.On(reactor.TagOf[Ping](), e.handlePing)
		return e
	}

	func (e *Echo) handlePing(h *reactor.Handle, msg reactor.Message) {
		ping, _ := reactor.Borrow[Ping](msg)
		h.Emit(reactor.NewMessage(Pong{Count: ping.Count}), reactor.ToLinks())
	}

	broker := reactor.NewBroker()
	id := broker.Spawn(NewEcho())
*/
package reactor
