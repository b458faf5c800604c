// Package gamebuilder assembles one game's reactor set — client
// controllers, an aggregator, an optional step lock, and a game
// runner — and reports back where the client manager and game manager
// should reach them.
//
// Grounded on _examples/original_source/src/modules/game/builder.rs.
package gamebuilder

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mozaicserver/mozaic/pkg/aggregator"
	"github.com/mozaicserver/mozaic/pkg/clientcontroller"
	"github.com/mozaicserver/mozaic/pkg/gamerunner"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
	"github.com/mozaicserver/mozaic/pkg/steplock"
)

// StepLockConfig requests that a step lock sit between the aggregator
// and the runner, batching player turns.
type StepLockConfig struct {
	// Timeout flushes a turn early if not every player has responded.
	// Zero disables the timeout; the lock only flushes once complete.
	Timeout time.Duration
}

// FreeClientConfig reserves one key not in the initial roster, spawning
// a client controller for Player the first time it registers.
type FreeClientConfig struct {
	Key    uint64
	Player messages.PlayerID
}

// Builder configures one game before it is handed to the game
// manager's StartGame.
type Builder struct {
	Players    []messages.PlayerID
	Game       gamerunner.Controller
	StepLock   *StepLockConfig
	FreeClient *FreeClientConfig
}

// New starts a builder for game, played by players.
func New(players []messages.PlayerID, game gamerunner.Controller) *Builder {
	return &Builder{Players: append([]messages.PlayerID(nil), players...), Game: game}
}

// WithStepLock enables turn batching with the given per-turn timeout
// (zero disables the timeout, waiting indefinitely for every player).
func (b *Builder) WithStepLock(timeout time.Duration) *Builder {
	b.StepLock = &StepLockConfig{Timeout: timeout}
	return b
}

// WithFreeClient reserves key for a player who is not part of the
// initial roster but may attach later.
func (b *Builder) WithFreeClient(key uint64, player messages.PlayerID) *Builder {
	b.FreeClient = &FreeClientConfig{Key: key, Player: player}
	return b
}

// Build satisfies messages.GameBuilder: it spawns every reactor this
// game needs and wires them together, returning where the client
// manager and game manager should route traffic.
func (b *Builder) Build(broker *reactor.Broker, gameManager, clientManager, logger reactor.ID, gameID uint64) messages.BuildResult {
	runnerID := reactor.NewID()
	aggID := reactor.NewID()

	clientsTarget := aggID
	aggHost := runnerID
	hasStepLock := b.StepLock != nil

	var stepID reactor.ID
	if hasStepLock {
		stepID = reactor.NewID()
		clientsTarget = stepID
		aggHost = stepID
	}

	aggClients := make(map[messages.PlayerID]reactor.ID, len(b.Players))
	slots := make(map[uint64]messages.PlayerSlot, len(b.Players))
	for _, player := range b.Players {
		key := randomKey()
		ctrlID := reactor.NewID()
		broker.Spawn(clientcontroller.New(clientManager, aggID, player, key, true), ctrlID)
		aggClients[player] = ctrlID
		slots[key] = messages.PlayerSlot{Player: player, Controller: ctrlID}
	}

	broker.Spawn(aggregator.New(aggHost, aggClients), aggID)

	if hasStepLock {
		broker.Spawn(steplock.New(runnerID, aggID, b.Players, b.StepLock.Timeout), stepID)
	}

	broker.Spawn(gamerunner.New(clientsTarget, gameManager, logger, b.Game, gameID), runnerID)

	result := messages.BuildResult{
		Runner:     runnerID,
		Aggregator: aggID,
		Players:    slots,
	}

	if b.FreeClient != nil {
		free := *b.FreeClient
		result.HasFree = true
		result.FreeKey = free.Key
		result.FreeBuilder = func(h *reactor.Handle) (messages.PlayerID, reactor.ID, reactor.ID) {
			ctrlID := reactor.NewID()
			h.Broker().Spawn(clientcontroller.New(clientManager, aggID, free.Player, free.Key, true), ctrlID)
			return free.Player, ctrlID, aggID
		}
	}

	return result
}

// randomKey generates the per-player shared registration key handed
// to transport endpoints out of band.
func randomKey() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Errorf("gamebuilder: generate key: %w", err))
	}
	return binary.BigEndian.Uint64(buf[:])
}
