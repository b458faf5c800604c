// Package clientcontroller implements the per-player reactor that owns
// the host-side view of a single participant: it buffers host traffic
// until a transport connection attaches, forwards client traffic to
// the host, and answers connection-status polls.
//
// Grounded on _examples/original_source/src/modules/net/client_controller.rs.
package clientcontroller

import (
	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// Controller is one instance per expected player.
type Controller struct {
	reactor.Base

	clientManager reactor.ID
	host          reactor.ID
	player        messages.PlayerID
	key           uint64
	tryReconnect  bool

	client     reactor.ID
	attached   bool
	clientName string

	buffer []messages.Data
}

// New builds a client controller for player, matched to connections
// presenting key, reporting to host, spawned from clientManager.
func New(clientManager, host reactor.ID, player messages.PlayerID, key uint64, tryReconnect bool) *Controller {
	c := &Controller{
		clientManager: clientManager,
		host:          host,
		player:        player,
		key:           key,
		tryReconnect:  tryReconnect,
	}
	c.On(reactor.TagOf[messages.HostMsg](), c.handleHostMsg)
	c.On(reactor.TagOf[messages.Data](), c.handleClientMsg)
	c.On(reactor.TagOf[messages.Req[messages.ConnectRequest]](), c.handleConnectRequest)
	c.On(reactor.TagOf[messages.Accepted](), c.handleAccepted)
	c.On(reactor.TagOf[messages.ClientClosed](), c.handleDisconnect)
	return c
}

// Init opens the two cascading links every client controller needs at
// spawn time: to the host (so the controller dies if the host dies)
// and to the client manager (so the controller is torn down too if the
// manager closes its link or terminates).
func (c *Controller) Init(h *reactor.Handle) {
	hostParams := reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.PlayerMsg](), reactor.PassThrough).
		OnInternal(reactor.TagOf[messages.ClientStateUpdate](), reactor.PassThrough).
		OnInternal(reactor.TagOf[messages.Res[messages.Connect]](), reactor.PassThrough).
		OnInternal(reactor.TagOf[messages.InitConnect](), reactor.PassThrough).
		OnExternal(reactor.TagOf[messages.Req[messages.ConnectRequest]](), reactor.ToReactorHandler).
		OnExternal(reactor.TagOf[messages.HostMsg](), reactor.ToReactorHandler)
	h.OpenLink(c.host, hostParams, true)

	cmParams := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.Accepted](), reactor.ToReactorHandler)
	h.OpenLink(c.clientManager, cmParams, true)
}

func (c *Controller) handleHostMsg(h *reactor.Handle, msg reactor.Message) {
	hm, ok := reactor.Borrow[messages.HostMsg](msg)
	if !ok {
		return
	}
	switch hm.Kind {
	case messages.HostMsgData:
		if hm.Target != nil && *hm.Target != c.player {
			return
		}
		data := messages.Data{Value: hm.Value}
		if c.attached {
			h.Emit(reactor.NewMessage(data), reactor.ToLink(c.client))
		} else {
			c.buffer = append(c.buffer, data)
		}
	case messages.HostMsgKick:
		if hm.Kick == c.player {
			h.Close()
		}
	}
}

func (c *Controller) handleClientMsg(h *reactor.Handle, msg reactor.Message) {
	data, ok := reactor.Borrow[messages.Data](msg)
	if !ok {
		return
	}
	h.Emit(reactor.NewMessage(messages.PlayerMsg{ID: c.player, Value: data.Value}), reactor.ToLink(c.host))
}

func (c *Controller) handleConnectRequest(h *reactor.Handle, msg reactor.Message) {
	req, ok := reactor.Borrow[messages.Req[messages.ConnectRequest]](msg)
	if !ok {
		return
	}

	var connect messages.Connect
	switch {
	case c.clientName != "" && c.attached:
		connect = messages.NewConnectConnected(c.player, c.clientName)
	case c.clientName != "":
		connect = messages.NewConnectReconnecting(c.player, c.clientName)
	default:
		connect = messages.NewConnectWaiting(c.player, c.key)
	}

	h.Emit(reactor.NewMessage(messages.NewRes(req.UUID, connect)), reactor.ToLink(c.host))
}

func (c *Controller) handleAccepted(h *reactor.Handle, msg reactor.Message) {
	accepted, ok := reactor.Borrow[messages.Accepted](msg)
	if !ok {
		return
	}

	if c.clientName == "" {
		h.Emit(reactor.NewMessage(messages.InitConnect{Player: c.player}), reactor.ToLink(c.host))
	}
	h.Emit(reactor.NewMessage(messages.ClientStateUpdate{
		Player: c.player,
		State:  messages.StateConnected,
	}), reactor.ToLink(c.host))

	player := c.player
	clientParams := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.Data](), reactor.ToReactorHandler).
		OnInternal(reactor.TagOf[messages.Data](), reactor.PassThrough).
		OnClose(func(lh *reactor.LinkHandle) {
			lh.SendInternal(reactor.NewMessage(messages.ClientClosed{Player: player}), reactor.ToReactor())
		})

	c.client = accepted.ClientID
	c.attached = true
	c.clientName = accepted.Name

	log.Logger.Debug().
		Uint64("player", uint64(c.player)).
		Str("client_id", accepted.ClientID.String()).
		Msg("client controller: client attached")

	h.OpenLink(accepted.ClientID, clientParams, false)
	c.flush(h)
}

func (c *Controller) handleDisconnect(h *reactor.Handle, msg reactor.Message) {
	closed, ok := reactor.Borrow[messages.ClientClosed](msg)
	if !ok {
		return
	}

	c.attached = false
	h.Emit(reactor.NewMessage(messages.ClientStateUpdate{
		Player: closed.Player,
		State:  messages.StateDisconnected,
	}), reactor.ToLink(c.host))

	if !c.tryReconnect {
		h.Close()
	}
}

func (c *Controller) flush(h *reactor.Handle) {
	if !c.attached {
		return
	}
	for _, data := range c.buffer {
		h.Emit(reactor.NewMessage(data), reactor.ToLink(c.client))
	}
	c.buffer = nil
}
