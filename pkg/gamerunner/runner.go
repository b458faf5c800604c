// Package gamerunner implements the reactor that owns one running
// game: it drives a Controller through its start/step/is-done
// lifecycle and translates the results into the link traffic the
// aggregator (or step lock), game manager, and log sink expect.
//
// Grounded on _examples/original_source/src/modules/game/runner.rs.
package gamerunner

import (
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// Controller is the protocol-polymorphic game logic a Runner drives.
// Implementations decide what a turn means; the runner only ever sees
// the HostMsg batches start/step produce and the terminal value
// is-done reports.
type Controller interface {
	// Start begins play, returning any HostMsg traffic to broadcast
	// before the first turn.
	Start() []messages.HostMsg
	// Step advances the game by one turn given every PlayerMsg
	// received since the last step, returning the HostMsg traffic to
	// broadcast as a result.
	Step(turns []messages.PlayerMsg) []messages.HostMsg
	// IsDone reports whether the game has ended, and if so, a tag
	// naming the outcome plus an arbitrary result value.
	IsDone() (tag string, value any, done bool)
}

// Runner owns one Controller instance. It cascades to its client
// link (the aggregator or a step lock in front of it) so the game
// dies if its client side goes away, but not to the game manager or
// logger links.
type Runner struct {
	reactor.Base

	clients     reactor.ID
	gameManager reactor.ID
	logger      reactor.ID

	game   Controller
	gameID uint64
}

// New builds a runner for game, reporting to gameManager and logger,
// broadcasting to clients (either the aggregator directly, or a step
// lock sitting in front of it). gameID is the numeric id the game
// manager assigned at creation time, echoed back in GameResult.
func New(clients, gameManager, logger reactor.ID, game Controller, gameID uint64) *Runner {
	r := &Runner{
		clients:     clients,
		gameManager: gameManager,
		logger:      logger,
		game:        game,
		gameID:      gameID,
	}
	r.On(reactor.TagOf[messages.Start](), r.handleStart)
	r.On(reactor.TagOf[messages.PlayerMsg](), r.handlePlayerMsg)
	r.On(reactor.TagOf[[]messages.PlayerMsg](), r.handlePlayerMsgs)
	r.On(reactor.TagOf[messages.Req[messages.Kill]](), r.handleKill)
	return r
}

// Init opens a cascading link to the clients side (routing a Res of
// StateResponse straight through to the game manager link, everything
// else into the reactor's own handler table), a non-cascading link to
// the game manager (routing a StateRequest straight through to the
// clients link, a Kill request into the handler table), and a
// non-cascading link to the logger.
func (r *Runner) Init(h *reactor.Handle) {
	clientParams := reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.HostMsg](), reactor.PassThrough).
		OnInternal(reactor.TagOf[messages.Req[messages.StateRequest]](), reactor.PassThrough).
		OnExternal(reactor.TagOf[messages.Start](), reactor.ToReactorHandler).
		OnExternal(reactor.TagOf[messages.PlayerMsg](), reactor.ToReactorHandler).
		OnExternal(reactor.TagOf[[]messages.PlayerMsg](), reactor.ToReactorHandler).
		OnExternal(reactor.TagOf[messages.Res[messages.StateResponse]](), func(lh *reactor.LinkHandle, msg reactor.Message) {
			lh.SendInternal(msg, reactor.ToLink(r.gameManager))
		})
	h.OpenLink(r.clients, clientParams, true)

	gmParams := reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.Res[messages.StateResponse]](), reactor.PassThrough).
		OnInternal(reactor.TagOf[messages.Res[messages.Kill]](), reactor.PassThrough).
		OnInternal(reactor.TagOf[messages.GameResult](), reactor.PassThrough).
		OnExternal(reactor.TagOf[messages.Req[messages.StateRequest]](), func(lh *reactor.LinkHandle, msg reactor.Message) {
			lh.SendInternal(msg, reactor.ToLink(r.clients))
		}).
		OnExternal(reactor.TagOf[messages.Req[messages.Kill]](), reactor.ToReactorHandler)
	h.OpenLink(r.gameManager, gmParams, false)

	loggerParams := reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.LogEntry](), reactor.PassThrough)
	h.OpenLink(r.logger, loggerParams, false)
}

func (r *Runner) handleStart(h *reactor.Handle, msg reactor.Message) {
	r.broadcast(h, r.game.Start())
	r.maybeClose(h)
}

func (r *Runner) handlePlayerMsg(h *reactor.Handle, msg reactor.Message) {
	pm, ok := reactor.Borrow[messages.PlayerMsg](msg)
	if !ok {
		return
	}
	r.broadcast(h, r.game.Step([]messages.PlayerMsg{pm}))
	r.maybeClose(h)
}

func (r *Runner) handlePlayerMsgs(h *reactor.Handle, msg reactor.Message) {
	turns, ok := reactor.Borrow[[]messages.PlayerMsg](msg)
	if !ok {
		return
	}
	r.broadcast(h, r.game.Step(turns))
	r.maybeClose(h)
}

func (r *Runner) handleKill(h *reactor.Handle, msg reactor.Message) {
	req, ok := reactor.Borrow[messages.Req[messages.Kill]](msg)
	if !ok {
		return
	}
	h.Emit(reactor.NewMessage(messages.NewRes(req.UUID, messages.Kill{})), reactor.ToLink(r.gameManager))
	h.Close()
}

func (r *Runner) broadcast(h *reactor.Handle, outputs []messages.HostMsg) {
	for _, out := range outputs {
		h.Emit(reactor.NewMessage(out), reactor.ToLinks())
	}
}

// maybeClose checks the controller's terminal state; if it has ended,
// the result is reported to the game manager and the logger before
// the runner closes itself.
func (r *Runner) maybeClose(h *reactor.Handle) {
	tag, value, done := r.game.IsDone()
	if !done {
		return
	}
	h.Emit(reactor.NewMessage(messages.GameResult{Game: r.gameID, Tag: tag, Value: value}), reactor.ToLink(r.gameManager))
	h.Emit(reactor.NewMessage(messages.LogEntry{Tag: tag, Value: value}), reactor.ToLink(r.logger))
	h.Close()
}
