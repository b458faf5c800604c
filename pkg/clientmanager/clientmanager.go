// Package clientmanager implements the long-lived reactor that matches
// inbound transport connections to the client controller their
// registration key names, spawning the per-connection reactor-like
// task the matched endpoint builds.
//
// Grounded on _examples/original_source/src/modules/net/client_manager.rs.
package clientmanager

import (
	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

type registryEntry struct {
	player     messages.PlayerID
	controller reactor.ID
}

// ClientManager owns one process-wide registration: player-key to
// (player-id, client-controller-id), populated as games start, plus
// the set of transport endpoints it is linked to.
type ClientManager struct {
	reactor.Base

	gameManager reactor.ID
	endpoints   []reactor.ID

	clients map[uint64]registryEntry
	// extra holds builders for keys not present in any game's initial
	// roster, consumed the first time that key registers.
	extra map[uint64]messages.ControllerBuilder
}

// New builds a client manager reporting to gameManager, linked to
// every given transport endpoint.
func New(gameManager reactor.ID, endpoints []reactor.ID) *ClientManager {
	cm := &ClientManager{
		gameManager: gameManager,
		endpoints:   append([]reactor.ID(nil), endpoints...),
		clients:     make(map[uint64]registryEntry),
		extra:       make(map[uint64]messages.ControllerBuilder),
	}
	cm.On(reactor.TagOf[messages.RegisterGame](), cm.handleRegisterGame)
	cm.On(reactor.TagOf[messages.SpawnPlayer](), cm.handlePlayerRegister)
	cm.On(reactor.TagOf[reactor.ID](), cm.handleControllerClosed)
	return cm
}

// Init links to every endpoint (forwarding SpawnPlayer to the reactor's
// own handler table) and to the game manager (forwarding RegisterGame).
func (cm *ClientManager) Init(h *reactor.Handle) {
	epParams := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.SpawnPlayer](), reactor.ToReactorHandler)
	for _, ep := range cm.endpoints {
		h.OpenLink(ep, epParams, false)
	}

	gmParams := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.RegisterGame](), reactor.ToReactorHandler)
	h.OpenLink(cm.gameManager, gmParams, false)
}

func (cm *ClientManager) handleRegisterGame(h *reactor.Handle, msg reactor.Message) {
	reg, ok := reactor.Borrow[messages.RegisterGame](msg)
	if !ok {
		return
	}

	for key, player := range reg.Keys {
		controller := reg.Controllers[player]
		cm.clients[key] = registryEntry{player: player, controller: controller}
		h.OpenLink(controller, controllerLinkParams(), false)
	}

	if reg.FreeBuilder != nil {
		cm.extra[reg.FreeKey] = reg.FreeBuilder
	}

	if !reg.Aggregator.IsZero() {
		h.OpenLink(reg.Aggregator, aggregatorLinkParams(), false)
	}
}

func (cm *ClientManager) handlePlayerRegister(h *reactor.Handle, msg reactor.Message) {
	sp, ok := reactor.Borrow[messages.SpawnPlayer](msg)
	if !ok {
		return
	}

	entry, found := cm.clients[sp.Register.Key]
	if !found {
		builder, ok := cm.extra[sp.Register.Key]
		if !ok {
			log.Logger.Warn().Uint64("key", sp.Register.Key).Msg("client manager: no client controller for key")
			return
		}
		delete(cm.extra, sp.Register.Key)

		player, controller, aggregator := builder(h)
		entry = registryEntry{player: player, controller: controller}
		cm.clients[sp.Register.Key] = entry
		h.OpenLink(controller, controllerLinkParams(), false)
		h.Emit(reactor.NewMessage(messages.NewClientController{
			Player:     player,
			Controller: controller,
		}), reactor.ToLink(aggregator))
	}

	controllerSender := h.Broker().Get(entry.controller)
	clientID := reactor.NewID()
	sender, task, name := sp.Build(clientID, controllerSender)
	h.Broker().SpawnReactorLike(clientID, sender, task)
	log.WithPlayer(uint64(entry.player)).Debug().Str("name", name).Msg("client manager: player connected")

	h.Emit(reactor.NewMessage(messages.Accepted{
		Player:       entry.player,
		Name:         name,
		ClientID:     clientID,
		ControllerID: entry.controller,
	}), reactor.ToLink(entry.controller))
}

func (cm *ClientManager) handleControllerClosed(h *reactor.Handle, msg reactor.Message) {
	closed, ok := reactor.Borrow[reactor.ID](msg)
	if !ok {
		return
	}
	removed := 0
	for key, e := range cm.clients {
		if e.controller == closed {
			delete(cm.clients, key)
			removed++
		}
	}
	if removed == 0 {
		log.Logger.Warn().Str("controller_id", closed.String()).Msg("client manager: closed controller was not registered")
	}
}

// controllerLinkParams forwards Accepted down to the controller and
// self-delivers the controller's id when the link closes, so the
// registry entry pointing at it can be dropped.
func controllerLinkParams() *reactor.LinkParams {
	return reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.Accepted](), reactor.PassThrough).
		OnClose(func(lh *reactor.LinkHandle) {
			lh.SendInternal(reactor.NewMessage(lh.TargetID()), reactor.ToReactor())
		})
}

// aggregatorLinkParams forwards NewClientController notifications to
// the aggregator for a late-joining client controller.
func aggregatorLinkParams() *reactor.LinkParams {
	return reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.NewClientController](), reactor.PassThrough)
}
