package reactor

// LinkHandlerFunc processes one message delivered through a link's
// internal or external handler table.
type LinkHandlerFunc func(lh *LinkHandle, msg Message)

// CloseHandlerFunc runs once when a link is closed, from either side.
type CloseHandlerFunc func(lh *LinkHandle)

// LinkParams builds the handler tables and close hook for a link
// before it is installed by Handle.OpenLink. Mirrors the builder
// pattern the source uses for assembling a link's two handler maps.
type LinkParams struct {
	internal map[Tag]LinkHandlerFunc
	external map[Tag]LinkHandlerFunc
	onClose  CloseHandlerFunc
}

// NewLinkParams returns an empty builder.
func NewLinkParams() *LinkParams {
	return &LinkParams{
		internal: make(map[Tag]LinkHandlerFunc),
		external: make(map[Tag]LinkHandlerFunc),
	}
}

// OnInternal registers fn for messages the owning reactor emits
// toward this link (selector All, Links, or Link(remote)).
func (p *LinkParams) OnInternal(tag Tag, fn LinkHandlerFunc) *LinkParams {
	p.internal[tag] = fn
	return p
}

// OnExternal registers fn for messages arriving from the peer.
func (p *LinkParams) OnExternal(tag Tag, fn LinkHandlerFunc) *LinkParams {
	p.external[tag] = fn
	return p
}

// OnClose registers the hook run when the link closes, from either
// side.
func (p *LinkParams) OnClose(fn CloseHandlerFunc) *LinkParams {
	p.onClose = fn
	return p
}

// link is the installed, per-peer handler pair owned by a reactor. Two
// reactors that both open a link to each other each own one link
// object; opening one side never opens the other.
type link struct {
	remote  ID
	internal map[Tag]LinkHandlerFunc
	external map[Tag]LinkHandlerFunc
	onClose  CloseHandlerFunc
	cascade  bool
	sender   Sender
}

// LinkHandle is passed to link handler functions and to close hooks.
// It carries only sender handles to the peer and to the owner's own
// channel, never a reference to the peer's state, so peer cycles
// (host <-> aggregator <-> client controllers) are never a direct
// memory hazard.
type LinkHandle struct {
	h      *Handle
	remote ID
	sender Sender
}

// SourceID returns the id of the reactor that owns this link.
func (lh *LinkHandle) SourceID() ID { return lh.h.id }

// TargetID returns the id of the peer this link connects to.
func (lh *LinkHandle) TargetID() ID { return lh.remote }

// SendMessage emits an ExternalMessage to the peer, with origin set to
// the owning reactor's id.
func (lh *LinkHandle) SendMessage(msg Message) {
	_ = lh.sender.Send(ExternalMessage{Origin: lh.h.id, Msg: msg})
}

// SendInternal emits an InternalMessage on the owning reactor's own
// queue, letting a link handler talk back to its own reactor or its
// reactor's other links.
func (lh *LinkHandle) SendInternal(msg Message, sel TargetSelector) {
	lh.h.Emit(msg, sel)
}

// CloseLink closes this link from the owner's side.
func (lh *LinkHandle) CloseLink() {
	lh.h.CloseLink(lh.remote)
}

// PassThrough forwards an InternalMessage routed to a link straight to
// the peer as an ExternalMessage. The common "internal handler" body
// for links that simply relay whatever their owner emits toward one
// peer, with no translation.
func PassThrough(lh *LinkHandle, msg Message) {
	lh.SendMessage(msg)
}

// ToReactorHandler redelivers an ExternalMessage arriving on a link as
// an InternalMessage targeted at the owning reactor's own handler
// table. The common "external handler" body for links whose inbound
// peer traffic should be processed by the owner's own state.
func ToReactorHandler(lh *LinkHandle, msg Message) {
	lh.SendInternal(msg, ToReactor())
}
