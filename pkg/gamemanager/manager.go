// Package gamemanager implements the process-wide game manager: a
// synchronous inner task owning the registry of running games, and an
// asynchronous front end that marshals typed requests onto it and
// blocks for a UUID-correlated reply.
//
// Grounded on _examples/original_source/src/modules/game/manager.rs.
package gamemanager

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/metrics"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// StateResult answers GetState for one game: a finished game reports
// its preserved terminal value; a live game reports every player's
// current connection status.
type StateResult struct {
	Done     bool
	Value    any
	Connects []messages.Connect
}

type opKind int

const (
	opBuild opKind = iota
	opState
	opKill
)

type opRequest struct {
	kind    opKind
	builder messages.GameBuilder
	game    uint64
	reply   chan opResponse
}

type opResponse struct {
	gameID uint64
	built  bool

	state StateResult
	found bool

	killed bool
}

// Manager is the game manager's front end. Every method is safe for
// concurrent use: each call marshals one request onto the inner
// task's control channel and blocks for its reply.
type Manager struct {
	ops chan opRequest
}

// New spawns the game manager's inner task bound to id, reporting new
// rosters to clientManager and game events to logger.
func New(broker *reactor.Broker, id, clientManager, logger reactor.ID) *Manager {
	receiver, _ := broker.Connect(id)
	sender := broker.Get(id)

	ops := make(chan opRequest)
	broker.SpawnReactorLike(id, sender, func() {
		run(broker, id, clientManager, logger, receiver, ops)
	})
	return &Manager{ops: ops}
}

// StartGame builds a new game synchronously on the inner task,
// returning the numeric id assigned to it.
func (m *Manager) StartGame(builder messages.GameBuilder) (gameID uint64, ok bool) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.GameManagerRequestDuration, "start_game")

	reply := make(chan opResponse, 1)
	m.ops <- opRequest{kind: opBuild, builder: builder, reply: reply}
	res := <-reply
	return res.gameID, res.built
}

// GetState reports game's current state. found is false if game is
// unknown to the manager, or if its runner no longer accepts messages.
func (m *Manager) GetState(game uint64) (result StateResult, found bool) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.GameManagerRequestDuration, "get_state")

	reply := make(chan opResponse, 1)
	m.ops <- opRequest{kind: opState, game: game, reply: reply}
	res := <-reply
	return res.state, res.found
}

// KillGame requests that game terminate, reporting whether it was
// still running to ask.
func (m *Manager) KillGame(game uint64) bool {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.GameManagerRequestDuration, "kill_game")

	reply := make(chan opResponse, 1)
	m.ops <- opRequest{kind: opKill, game: game, reply: reply}
	res := <-reply
	return res.killed
}

type gameEntry struct {
	sender reactor.Sender
	done   bool
	result any
}

type pendingKind int

const (
	pendingState pendingKind = iota
	pendingKill
)

type pendingEntry struct {
	kind  pendingKind
	reply chan opResponse
}

// run is the inner task's body: it pumps its blocking Receiver into a
// channel (the same sidecar shape the step lock's timer uses) so it
// can select between front-end requests and reactor traffic without
// ever blocking on one while the other has work.
func run(broker *reactor.Broker, id, clientManager, logger reactor.ID, receiver reactor.Receiver, ops chan opRequest) {
	cmSender := broker.Get(clientManager)
	loggerSender := broker.Get(logger)

	games := make(map[uint64]*gameEntry)
	pending := make(map[uuid.UUID]pendingEntry)

	incoming := make(chan reactor.Operation)
	go func() {
		defer close(incoming)
		for {
			op, ok := receiver.Recv()
			if !ok {
				return
			}
			incoming <- op
		}
	}()

	for {
		select {
		case req, ok := <-ops:
			if !ok {
				receiver.Close()
				broker.Remove(id)
				return
			}
			switch req.kind {
			case opBuild:
				handleBuild(broker, id, clientManager, logger, cmSender, loggerSender, games, req)
			case opState:
				handleState(id, games, pending, req)
			case opKill:
				handleKill(id, games, pending, req)
			}

		case op, ok := <-incoming:
			if !ok {
				broker.Remove(id)
				return
			}
			if ext, ok := op.(reactor.ExternalMessage); ok {
				handleExternal(games, pending, ext)
			}
			// CloseLinkOp notifications from a game that closed itself
			// (e.g. after a kill reply) need no action: the kill's own
			// Res already resolved the pending request, and a normally
			// finished game already reported its result via GameResult.
		}
	}
}

func handleBuild(broker *reactor.Broker, id, clientManager, logger reactor.ID, cmSender, loggerSender reactor.Sender, games map[uint64]*gameEntry, req opRequest) {
	gameID := randomGameID()
	result := req.builder(broker, id, clientManager, logger, gameID)

	keys := make(map[uint64]messages.PlayerID, len(result.Players))
	controllers := make(map[messages.PlayerID]reactor.ID, len(result.Players))
	for key, slot := range result.Players {
		keys[key] = slot.Player
		controllers[slot.Player] = slot.Controller
	}

	reg := messages.RegisterGame{
		Aggregator:  result.Aggregator,
		Keys:        keys,
		Controllers: controllers,
	}
	if result.HasFree {
		reg.FreeKey = result.FreeKey
		reg.FreeBuilder = result.FreeBuilder
	}
	_ = cmSender.Send(reactor.ExternalMessage{Origin: id, Msg: reactor.NewMessage(reg)})
	_ = loggerSender.Send(reactor.ExternalMessage{Origin: id, Msg: reactor.NewMessage(messages.GameJoin{Game: result.Runner})})

	games[gameID] = &gameEntry{sender: broker.Get(result.Runner)}
	metrics.GamesStarted.Inc()

	log.WithGame(gameID).Info().Msg("game manager: spawned game")
	req.reply <- opResponse{gameID: gameID, built: true}
}

func randomGameID() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Errorf("gamemanager: generate game id: %w", err))
	}
	return binary.BigEndian.Uint64(buf[:])
}

func handleState(id reactor.ID, games map[uint64]*gameEntry, pending map[uuid.UUID]pendingEntry, req opRequest) {
	entry, ok := games[req.game]
	if !ok {
		req.reply <- opResponse{found: false}
		return
	}
	if entry.done {
		req.reply <- opResponse{found: true, state: StateResult{Done: true, Value: entry.result}}
		return
	}

	r := messages.NewReq(messages.StateRequest{})
	if err := entry.sender.Send(reactor.ExternalMessage{Origin: id, Msg: reactor.NewMessage(r)}); err != nil {
		log.WithGame(req.game).Warn().Msg("game manager: state request to a dead runner")
		req.reply <- opResponse{found: false}
		return
	}
	pending[r.UUID] = pendingEntry{kind: pendingState, reply: req.reply}
}

func handleKill(id reactor.ID, games map[uint64]*gameEntry, pending map[uuid.UUID]pendingEntry, req opRequest) {
	entry, ok := games[req.game]
	if !ok || entry.done {
		req.reply <- opResponse{killed: false}
		return
	}

	r := messages.NewReq(messages.Kill{})
	if err := entry.sender.Send(reactor.ExternalMessage{Origin: id, Msg: reactor.NewMessage(r)}); err != nil {
		log.WithGame(req.game).Warn().Msg("game manager: kill request to a dead runner")
		req.reply <- opResponse{killed: false}
		return
	}
	pending[r.UUID] = pendingEntry{kind: pendingKill, reply: req.reply}
}

func handleExternal(games map[uint64]*gameEntry, pending map[uuid.UUID]pendingEntry, ext reactor.ExternalMessage) {
	if res, ok := reactor.Borrow[messages.Res[messages.StateResponse]](ext.Msg); ok {
		if p, ok := pending[res.UUID]; ok && p.kind == pendingState {
			delete(pending, res.UUID)
			p.reply <- opResponse{found: true, state: StateResult{Connects: res.Payload.Connects}}
		}
		return
	}
	if res, ok := reactor.Borrow[messages.Res[messages.Kill]](ext.Msg); ok {
		if p, ok := pending[res.UUID]; ok && p.kind == pendingKill {
			delete(pending, res.UUID)
			p.reply <- opResponse{killed: true}
			metrics.GamesKilled.Inc()
		}
		return
	}
	if gr, ok := reactor.Borrow[messages.GameResult](ext.Msg); ok {
		if entry, ok := games[gr.Game]; ok {
			entry.done = true
			entry.result = gr.Value
			metrics.GamesFinished.Inc()
		}
		return
	}
}
