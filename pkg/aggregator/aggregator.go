// Package aggregator implements the reactor that sits between a game's
// host and its roster of client controllers: it fans host traffic out
// to one or every client, routes each client's traffic up to the host,
// and answers state-request polls by collecting one Connect reply per
// client into a single response.
//
// Grounded on _examples/original_source/src/modules/aggregator.rs.
package aggregator

import (
	"github.com/google/uuid"

	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// Aggregator is spawned once per game, linked to the host and to every
// client controller in the initial roster.
type Aggregator struct {
	reactor.Base

	host    reactor.ID
	clients map[messages.PlayerID]reactor.ID

	// pending tracks in-flight state requests: for each request UUID,
	// the most recent Connect reply seen per client, nil until that
	// client has answered.
	pending map[uuid.UUID]map[messages.PlayerID]*messages.Connect
}

// New builds an aggregator for host, with clients mapping each
// player to the id of its client controller.
func New(host reactor.ID, clients map[messages.PlayerID]reactor.ID) *Aggregator {
	a := &Aggregator{
		host:    host,
		clients: make(map[messages.PlayerID]reactor.ID, len(clients)),
		pending: make(map[uuid.UUID]map[messages.PlayerID]*messages.Connect),
	}
	for player, id := range clients {
		a.clients[player] = id
	}
	a.On(reactor.TagOf[messages.Req[messages.StateRequest]](), a.handleStateRequest)
	a.On(reactor.TagOf[messages.Res[messages.Connect]](), a.handleConnectResponse)
	a.On(reactor.TagOf[messages.NewClientController](), a.handleNewClientController)
	return a
}

// Init opens a non-cascading link to every client in the initial
// roster and a cascading link to the host: the aggregator (and
// transitively the whole game) dies with the host, but a client
// dropping out only drops that one link.
func (a *Aggregator) Init(h *reactor.Handle) {
	for _, client := range a.clients {
		h.OpenLink(client, clientLinkParams(a.host), false)
	}
	h.OpenLink(a.host, a.hostLinkParams(), true)
}

func (a *Aggregator) handleStateRequest(h *reactor.Handle, msg reactor.Message) {
	req, ok := reactor.Borrow[messages.Req[messages.StateRequest]](msg)
	if !ok {
		return
	}

	waiting := make(map[messages.PlayerID]*messages.Connect, len(a.clients))
	for player := range a.clients {
		waiting[player] = nil
	}
	a.pending[req.UUID] = waiting

	for _, client := range a.clients {
		poll := messages.Req[messages.ConnectRequest]{UUID: req.UUID}
		h.Emit(reactor.NewMessage(poll), reactor.ToLink(client))
	}
}

func (a *Aggregator) handleConnectResponse(h *reactor.Handle, msg reactor.Message) {
	res, ok := reactor.Borrow[messages.Res[messages.Connect]](msg)
	if !ok {
		return
	}

	waiting, ok := a.pending[res.UUID]
	if !ok {
		return
	}
	reply := res.Payload
	waiting[reply.Player] = &reply

	for _, c := range waiting {
		if c == nil {
			return
		}
	}

	connects := make([]messages.Connect, 0, len(waiting))
	for _, c := range waiting {
		connects = append(connects, *c)
	}
	delete(a.pending, res.UUID)
	h.Emit(reactor.NewMessage(messages.NewRes(res.UUID, messages.StateResponse{Connects: connects})), reactor.ToLink(a.host))
}

// handleNewClientController adds a client controller spawned after
// Init to the fan-out set (see SPEC_FULL.md's supplemented features).
func (a *Aggregator) handleNewClientController(h *reactor.Handle, msg reactor.Message) {
	added, ok := reactor.Borrow[messages.NewClientController](msg)
	if !ok {
		return
	}
	a.clients[added.Player] = added.Controller
	h.OpenLink(added.Controller, clientLinkParams(a.host), false)
}

// routeHostMsg is the host link's external handler: a HostMsg arriving
// from the host is routed to one client link, or broadcast to every
// link (client links are the only ones with an internal handler
// registered for HostMsg, so a broadcast never loops back to host).
func (a *Aggregator) routeHostMsg(lh *reactor.LinkHandle, msg reactor.Message) {
	hm, ok := reactor.Borrow[messages.HostMsg](msg)
	if !ok {
		return
	}
	switch hm.Kind {
	case messages.HostMsgData:
		if hm.Target == nil {
			lh.SendInternal(msg, reactor.ToLinks())
			return
		}
		if client, ok := a.clients[*hm.Target]; ok {
			lh.SendInternal(msg, reactor.ToLink(client))
		}
	case messages.HostMsgKick:
		if client, ok := a.clients[hm.Kick]; ok {
			lh.SendInternal(msg, reactor.ToLink(client))
		}
	}
}

// hostLinkParams forwards PlayerMsg and state responses up to the
// host, routes inbound HostMsg via routeHostMsg, and delivers inbound
// state requests to the reactor's own handler table.
func (a *Aggregator) hostLinkParams() *reactor.LinkParams {
	return reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.PlayerMsg](), reactor.PassThrough).
		OnInternal(reactor.TagOf[messages.Res[messages.StateResponse]](), reactor.PassThrough).
		OnExternal(reactor.TagOf[messages.HostMsg](), a.routeHostMsg).
		OnExternal(reactor.TagOf[messages.Req[messages.StateRequest]](), reactor.ToReactorHandler)
}

// forwardToHost is a client link's external handler for PlayerMsg:
// traffic from a client is always routed straight to the host link,
// never through the reactor's own handler table.
func forwardToHost(host reactor.ID) reactor.LinkHandlerFunc {
	return func(lh *reactor.LinkHandle, msg reactor.Message) {
		lh.SendInternal(msg, reactor.ToLink(host))
	}
}

// clientLinkParams forwards host-originated HostMsg and connect polls
// down to one client, routes that client's PlayerMsg up to the host,
// and delivers its Connect replies to the reactor's own handler table.
func clientLinkParams(host reactor.ID) *reactor.LinkParams {
	return reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.HostMsg](), reactor.PassThrough).
		OnInternal(reactor.TagOf[messages.Req[messages.ConnectRequest]](), reactor.PassThrough).
		OnExternal(reactor.TagOf[messages.PlayerMsg](), forwardToHost(host)).
		OnExternal(reactor.TagOf[messages.Res[messages.Connect]](), reactor.ToReactorHandler)
}
