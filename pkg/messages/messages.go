// Package messages defines the payload types carried through MOZAIC's
// reactor links: player identity, host/client traffic, connection
// status, and the request/response envelopes the game manager's
// front-end uses to talk to its inner task.
package messages

import (
	"github.com/google/uuid"

	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// PlayerID identifies one participant for the lifetime of a game.
type PlayerID uint64

// Register is the first frame a transport connection sends: the
// shared key matching it to a pre-configured client controller, and
// the display name the player wants to use.
type Register struct {
	Key  uint64
	Name string
}

// Accepted is sent by the client manager to the client controller it
// matched a new connection to.
type Accepted struct {
	Player       PlayerID
	Name         string
	ClientID     reactor.ID
	ControllerID reactor.ID
}

// Data carries an opaque application payload between a client
// controller and its attached client.
type Data struct {
	Value any
}

// Close notifies a peer that the connection is ending.
type Close struct{}

// PlayerMsg is one player's contribution to a game turn.
type PlayerMsg struct {
	ID    PlayerID
	Value any
}

// HostMsgKind distinguishes HostMsg's two shapes.
type HostMsgKind int

const (
	// HostMsgData delivers a payload to one player (Target set) or to
	// every attached player (Target nil).
	HostMsgData HostMsgKind = iota
	// HostMsgKick closes the connection for one player.
	HostMsgKick
)

// HostMsg is a message originating from the game/host side, routed by
// the aggregator to one or every client controller.
type HostMsg struct {
	Kind   HostMsgKind
	Value  any
	Target *PlayerID
	Kick   PlayerID
}

// NewHostData builds a HostMsgData message. target nil means "every
// attached player".
func NewHostData(value any, target *PlayerID) HostMsg {
	return HostMsg{Kind: HostMsgData, Value: value, Target: target}
}

// NewHostKick builds a HostMsgKick message for id.
func NewHostKick(id PlayerID) HostMsg {
	return HostMsg{Kind: HostMsgKick, Kick: id}
}

// ConnState is the two states a client controller announces to the
// host as its attached client connects and disconnects.
type ConnState int

const (
	StateConnected ConnState = iota
	StateDisconnected
)

// ClientStateUpdate announces a connectivity change for Player.
type ClientStateUpdate struct {
	Player PlayerID
	State  ConnState
}

// ConnectKind distinguishes Connect's three variants.
type ConnectKind int

const (
	ConnectConnected ConnectKind = iota
	ConnectReconnecting
	ConnectWaiting
)

// Connect is a client controller's answer to a ConnectRequest status
// poll: Connected/Reconnecting carry the player's display name,
// Waiting carries the registration key still expected.
type Connect struct {
	Kind   ConnectKind
	Player PlayerID
	Name   string
	Key    uint64
}

func NewConnectConnected(id PlayerID, name string) Connect {
	return Connect{Kind: ConnectConnected, Player: id, Name: name}
}

func NewConnectReconnecting(id PlayerID, name string) Connect {
	return Connect{Kind: ConnectReconnecting, Player: id, Name: name}
}

func NewConnectWaiting(id PlayerID, key uint64) Connect {
	return Connect{Kind: ConnectWaiting, Player: id, Key: key}
}

// ConnectRequest polls a client controller for its Connect status.
type ConnectRequest struct{}

// ClientClosed is self-delivered by a client controller when its
// client link's close hook fires.
type ClientClosed struct {
	Player PlayerID
}

// NewClientController notifies the aggregator that a client
// controller outside the initial roster has been spawned and should
// be added to the fan-out set (see SPEC_FULL.md's supplemented
// features).
type NewClientController struct {
	Player     PlayerID
	Controller reactor.ID
}

// InitConnect is sent by a client controller to the host link on
// first successful attach, announcing itself before any ClientStateUpdate.
type InitConnect struct {
	Player PlayerID
}

// StateRequest asks the game runner (and transitively the aggregator)
// for the current Connect status of every player.
type StateRequest struct{}

// StateResponse collects one Connect per player, in unspecified order.
type StateResponse struct {
	Connects []Connect
}

// Kill requests that a game runner terminate.
type Kill struct{}

// Start triggers a game runner to invoke its controller's Start and
// broadcast whatever it produces to the attached clients.
type Start struct{}

// GameResult reports a finished game's terminal (tag, value) pair to
// the game manager, tagged with the numeric id the manager assigned
// the game at creation time.
type GameResult struct {
	Game  uint64
	Tag   string
	Value any
}

// LogEntry is one (tag, value) record forwarded to the log sink.
type LogEntry struct {
	Tag   string
	Value any
}

// GameJoin is sent by the game manager to the log sink when a game
// starts, so the sink can open a link to it and receive its LogEntry
// traffic for the rest of the game's life.
type GameJoin struct {
	Game reactor.ID
}

// ResetTimeOut restarts the step lock's timer sidecar.
type ResetTimeOut struct{}

// TimeOut is sent by the timer sidecar back to the step lock when its
// delay expires without a reset.
type TimeOut struct{}

// ControllerBuilder constructs and spawns a client controller for a
// key that was not part of a game's initial roster, returning the
// player id it was assigned, the spawned controller's id, and the
// aggregator that should learn about it (see NewClientController).
type ControllerBuilder func(h *reactor.Handle) (player PlayerID, controller reactor.ID, aggregator reactor.ID)

// RegisterGame populates the client manager's player-key registry for
// one game, sent once by the game manager when a game starts.
// FreeBuilder, if non-nil, lets one additional key not present in Keys
// attach later by spawning a client controller on demand.
type RegisterGame struct {
	Aggregator  reactor.ID
	Keys        map[uint64]PlayerID
	Controllers map[PlayerID]reactor.ID

	FreeKey     uint64
	FreeBuilder ControllerBuilder
}

// Builder constructs a per-connection client reactor-like: given a
// freshly allocated id and a sender to the owning client controller,
// it returns the sender other reactors should use to reach the new
// connection, the task to run on its own goroutine, and the player's
// display name.
type Builder func(id reactor.ID, controller reactor.Sender) (sender reactor.Sender, task func(), name string)

// SpawnPlayer is emitted by a transport endpoint when a new connection
// presents a Register frame.
type SpawnPlayer struct {
	Register Register
	Build    Builder
}

// Req is an outbound, UUID-correlated request. The game manager's
// front-end constructs one per call and resolves it against the Res
// bearing the same UUID.
type Req[T any] struct {
	UUID    uuid.UUID
	Payload T
}

// NewReq wraps payload in a fresh, randomly correlated request.
func NewReq[T any](payload T) Req[T] {
	return Req[T]{UUID: uuid.New(), Payload: payload}
}

// PlayerSlot names one player's client controller within a game's
// initial roster.
type PlayerSlot struct {
	Player     PlayerID
	Controller reactor.ID
}

// BuildResult is what a GameBuilder produces once it has spawned one
// game's reactors (client controllers, aggregator, optional step
// lock, runner): where the client manager should route each key, and
// where the game manager should send Kill and state requests.
type BuildResult struct {
	Runner     reactor.ID
	Aggregator reactor.ID
	Players    map[uint64]PlayerSlot

	HasFree     bool
	FreeKey     uint64
	FreeBuilder ControllerBuilder
}

// GameBuilder assembles one game's reactors given the process-wide
// game manager, client manager, and logger ids plus a manager-assigned
// numeric game id, and reports back where everything ended up. It runs
// synchronously on the game manager's inner task, which only holds a
// broker reference (it is a reactor-like, not a Handle-driven reactor),
// so it spawns children via Broker.Spawn rather than Handle.Spawn.
type GameBuilder func(broker *reactor.Broker, gameManager, clientManager, logger reactor.ID, gameID uint64) BuildResult

// Res is the UUID-correlated reply to a Req of the same UUID; its
// payload type may differ from the request's (e.g. Req[StateRequest]
// answered by Res[StateResponse]).
type Res[T any] struct {
	UUID    uuid.UUID
	Payload T
}

// NewRes builds a response correlated to id.
func NewRes[T any](id uuid.UUID, payload T) Res[T] {
	return Res[T]{UUID: id, Payload: payload}
}
