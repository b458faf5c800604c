package reactor

import (
	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/metrics"
)

// HandlerFunc processes a message delivered to the reactor's own
// handler table (as opposed to a link's).
type HandlerFunc func(h *Handle, msg Message)

// ReactorState is implemented by domain reactor state types. Base
// provides a default implementation of both methods; domain states
// embed Base and register handlers through it, overriding Init when
// they need to act (open links, emit messages) before consuming their
// first Operation.
type ReactorState interface {
	Init(h *Handle)
	Handlers() map[Tag]HandlerFunc
}

// Base is embedded by domain reactor state structs to obtain handler
// registration and a no-op Init.
type Base struct {
	handlers map[Tag]HandlerFunc
}

// On registers fn as the reactor-level handler for tag.
func (b *Base) On(tag Tag, fn HandlerFunc) {
	if b.handlers == nil {
		b.handlers = make(map[Tag]HandlerFunc)
	}
	b.handlers[tag] = fn
}

// Handlers returns the registered handler table.
func (b *Base) Handlers() map[Tag]HandlerFunc { return b.handlers }

// Init is the default no-op; override it to act before the event loop
// starts consuming operations.
func (b *Base) Init(h *Handle) {}

// linkEntry pairs an installed link with its cascade flag for fast
// lookup during Close.
type linkEntry struct {
	link    *link
	cascade bool
}

// Handle is the reactor handle passed to handlers: it exposes the
// reactor's own id, the broker, and the deferred-ops queue that
// mediates every mutation a handler wants to make (emitting messages,
// opening or closing links, closing self). Actions are queued rather
// than applied immediately so a handler can never observe or corrupt
// the link table mid-iteration; the event loop drains the queue to
// completion between each Operation it consumes from the channel.
// Spawning a child is not queued: Spawn hands it to the broker at once.
type Handle struct {
	id       ID
	broker   *Broker
	receiver Receiver

	links     map[ID]*linkEntry
	linkOrder []ID

	deferred []Operation
	handlers map[Tag]HandlerFunc
}

func newHandle(b *Broker, id ID, r Receiver) *Handle {
	return &Handle{id: id, broker: b, receiver: r, links: make(map[ID]*linkEntry)}
}

// ID returns the reactor's own id.
func (h *Handle) ID() ID { return h.id }

// Broker returns the broker the reactor was spawned from.
func (h *Handle) Broker() *Broker { return h.broker }

// Emit queues an internal message for dispatch, per sel, after the
// current handler returns and before the next Operation is consumed.
func (h *Handle) Emit(msg Message, sel TargetSelector) {
	h.deferred = append(h.deferred, InternalMessage{Msg: msg, Selector: sel})
}

// OpenLink queues installation of a link to remote. A link already
// present under remote is replaced; its close hook is not invoked.
func (h *Handle) OpenLink(remote ID, params *LinkParams, cascade bool) {
	h.deferred = append(h.deferred, OpenLinkOp{Remote: remote, Params: params, Cascade: cascade})
}

// CloseLink queues removal of the link to remote.
func (h *Handle) CloseLink(remote ID) {
	h.deferred = append(h.deferred, CloseLinkOp{Remote: remote})
}

// Spawn spawns a child reactor via the owning broker.
func (h *Handle) Spawn(state ReactorState, id ...ID) ID {
	return h.broker.Spawn(state, id...)
}

// Close queues termination of this reactor.
func (h *Handle) Close() {
	h.deferred = append(h.deferred, CloseOp{})
}

// Links returns the ids of every currently installed link, in
// insertion order.
func (h *Handle) Links() []ID {
	out := make([]ID, len(h.linkOrder))
	copy(out, h.linkOrder)
	return out
}

// HasLink reports whether a link to remote is currently installed.
func (h *Handle) HasLink(remote ID) bool {
	_, ok := h.links[remote]
	return ok
}

// run is the reactor's event loop: consume one Operation, dispatch it,
// then drain the deferred queue to completion before consuming the
// next Operation.
func (h *Handle) run(state ReactorState) {
	h.handlers = state.Handlers()
	defer h.broker.Remove(h.id)
	// Init may have queued deferred ops (commonly OpenLink); apply them
	// before the loop starts waiting on the channel.
	if h.drainDeferred() {
		return
	}
	for {
		op, ok := h.receiver.Recv()
		if !ok {
			return
		}
		if h.dispatch(op) {
			return
		}
		if h.drainDeferred() {
			return
		}
	}
}

func (h *Handle) drainDeferred() bool {
	for len(h.deferred) > 0 {
		op := h.deferred[0]
		h.deferred = h.deferred[1:]
		if h.dispatch(op) {
			return true
		}
	}
	return false
}

// dispatch applies one Operation. It returns true iff the reactor
// should terminate (a Close was processed).
func (h *Handle) dispatch(op Operation) bool {
	switch o := op.(type) {
	case ExternalMessage:
		h.dispatchExternal(o)
		return false
	case InternalMessage:
		h.dispatchInternal(o)
		return false
	case OpenLinkOp:
		h.applyOpenLink(o)
		return false
	case CloseLinkOp:
		h.applyCloseLink(o.Remote)
		return false
	case CloseOp:
		h.applyClose()
		return true
	default:
		return false
	}
}

func (h *Handle) dispatchExternal(o ExternalMessage) {
	entry, ok := h.links[o.Origin]
	if !ok {
		log.WithReactor(h.id).Trace().
			Str("origin", o.Origin.String()).
			Msg("reactor: external message from unlinked origin, dropped")
		return
	}
	fn, ok := entry.link.external[o.Msg.Tag()]
	if !ok {
		log.WithReactor(h.id).Trace().
			Str("origin", o.Origin.String()).
			Msg("reactor: external message with no handler, dropped")
		return
	}
	fn(h.linkHandle(o.Origin, entry.link), o.Msg)
}

func (h *Handle) dispatchInternal(o InternalMessage) {
	switch o.Selector.kind {
	case selectReactor:
		metrics.MessagesDispatched.WithLabelValues("reactor").Inc()
		h.invokeReactorHandler(o.Msg)
	case selectLink:
		metrics.MessagesDispatched.WithLabelValues("link").Inc()
		h.invokeLinkInternal(o.Selector.linkID, o.Msg)
	case selectLinks:
		metrics.MessagesDispatched.WithLabelValues("links").Inc()
		for _, id := range h.linkOrder {
			h.invokeLinkInternal(id, o.Msg)
		}
	case selectAll:
		metrics.MessagesDispatched.WithLabelValues("all").Inc()
		h.invokeReactorHandler(o.Msg)
		for _, id := range h.linkOrder {
			h.invokeLinkInternal(id, o.Msg)
		}
	}
}

func (h *Handle) invokeReactorHandler(msg Message) {
	fn, ok := h.handlers[msg.Tag()]
	if !ok {
		log.WithReactor(h.id).Trace().Msg("reactor: no reactor handler for tag, dropped")
		return
	}
	fn(h, msg)
}

func (h *Handle) invokeLinkInternal(id ID, msg Message) {
	entry, ok := h.links[id]
	if !ok {
		return
	}
	fn, ok := entry.link.internal[msg.Tag()]
	if !ok {
		return
	}
	fn(h.linkHandle(id, entry.link), msg)
}

func (h *Handle) linkHandle(remote ID, l *link) *LinkHandle {
	return &LinkHandle{h: h, remote: remote, sender: l.sender}
}

func (h *Handle) applyOpenLink(o OpenLinkOp) {
	sender := h.broker.Get(o.Remote)
	l := &link{
		remote:   o.Remote,
		internal: o.Params.internal,
		external: o.Params.external,
		onClose:  o.Params.onClose,
		cascade:  o.Cascade,
		sender:   sender,
	}
	if _, exists := h.links[o.Remote]; !exists {
		h.linkOrder = append(h.linkOrder, o.Remote)
	}
	h.links[o.Remote] = &linkEntry{link: l, cascade: o.Cascade}
	metrics.LinksOpened.Inc()
}

// applyCloseLink removes the link keyed by remote, if any, invokes its
// close hook, and notifies the peer so its own mirror entry is removed
// too. Idempotent: closing a link twice is a no-op on the second call.
func (h *Handle) applyCloseLink(remote ID) {
	entry, ok := h.links[remote]
	if !ok {
		return
	}
	delete(h.links, remote)
	h.removeFromOrder(remote)
	metrics.LinksClosed.Inc()
	if entry.link.onClose != nil {
		entry.link.onClose(h.linkHandle(remote, entry.link))
	}
	_ = entry.link.sender.Send(CloseLinkOp{Remote: h.id})
	if entry.cascade {
		h.deferred = append(h.deferred, CloseOp{})
	}
}

func (h *Handle) removeFromOrder(remote ID) {
	for i, id := range h.linkOrder {
		if id == remote {
			h.linkOrder = append(h.linkOrder[:i], h.linkOrder[i+1:]...)
			return
		}
	}
}

func (h *Handle) applyClose() {
	for _, id := range h.linkOrder {
		entry := h.links[id]
		if entry.link.onClose != nil {
			entry.link.onClose(h.linkHandle(id, entry.link))
		}
		_ = entry.link.sender.Send(CloseLinkOp{Remote: h.id})
		metrics.LinksClosed.Inc()
	}
	h.links = make(map[ID]*linkEntry)
	h.linkOrder = nil
	h.receiver.Close()
}
