package reactor

// selectorKind distinguishes the four ways an InternalMessage can be
// routed within the owning reactor.
type selectorKind int

const (
	selectReactor selectorKind = iota
	selectLinks
	selectLink
	selectAll
)

// TargetSelector picks which of a reactor's own handler tables an
// InternalMessage reaches: its own handlers, every link's internal
// side, one specific link, or both the reactor and every link.
type TargetSelector struct {
	kind   selectorKind
	linkID ID
}

// ToReactor targets only the owning reactor's own handler table.
func ToReactor() TargetSelector { return TargetSelector{kind: selectReactor} }

// ToLinks targets every link's internal handler table, in
// link-insertion order.
func ToLinks() TargetSelector { return TargetSelector{kind: selectLinks} }

// ToLink targets one specific link's internal handler table.
func ToLink(id ID) TargetSelector { return TargetSelector{kind: selectLink, linkID: id} }

// ToAll targets the reactor's own handler table and every link's
// internal handler table.
func ToAll() TargetSelector { return TargetSelector{kind: selectAll} }

// Operation is the sum type carried on a reactor's channel.
type Operation interface {
	isOperation()
}

// InternalMessage is emitted by the reactor itself or one of its
// handlers, routed per Selector.
type InternalMessage struct {
	Msg      Message
	Selector TargetSelector
}

func (InternalMessage) isOperation() {}

// ExternalMessage is an inbound message arriving on the link from
// Origin.
type ExternalMessage struct {
	Origin ID
	Msg    Message
}

func (ExternalMessage) isOperation() {}

// OpenLinkOp installs a new link to Remote, built from Params. A
// duplicate Remote replaces the existing link without invoking its
// close hook.
type OpenLinkOp struct {
	Remote  ID
	Params  *LinkParams
	Cascade bool
}

func (OpenLinkOp) isOperation() {}

// CloseLinkOp removes the link keyed by Remote, invoking its close
// hook and notifying the peer.
type CloseLinkOp struct {
	Remote ID
}

func (CloseLinkOp) isOperation() {}

// CloseOp terminates the reactor: every link's close hook runs, every
// peer is notified, and the receiver is closed.
type CloseOp struct{}

func (CloseOp) isOperation() {}
