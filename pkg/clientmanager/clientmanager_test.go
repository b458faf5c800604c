package clientmanager_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozaicserver/mozaic/pkg/clientmanager"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// fakeController captures every Accepted it's sent, linked back to the
// client manager so it can dispatch the ExternalMessage the manager
// routes through its own link table.
type fakeController struct {
	reactor.Base
	peer reactor.ID
	out  chan reactor.Message
}

func (c *fakeController) Init(h *reactor.Handle) {
	params := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.Accepted](), func(lh *reactor.LinkHandle, msg reactor.Message) {
			c.out <- msg
		})
	h.OpenLink(c.peer, params, false)
}

// fakeAggregator captures NewClientController notifications.
type fakeAggregator struct {
	reactor.Base
	peer reactor.ID
	out  chan reactor.Message
}

func (a *fakeAggregator) Init(h *reactor.Handle) {
	params := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.NewClientController](), func(lh *reactor.LinkHandle, msg reactor.Message) {
			a.out <- msg
		})
	h.OpenLink(a.peer, params, false)
}

func expect(t *testing.T, ch chan reactor.Message) reactor.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return reactor.Message{}
	}
}

func noBuild(name string) messages.Builder {
	return func(id reactor.ID, controller reactor.Sender) (reactor.Sender, func(), string) {
		return controller, func() {}, name
	}
}

func TestSpawnPlayerWithKnownKeySendsAcceptedToController(t *testing.T) {
	b := reactor.NewBroker()
	gmID := reactor.NewID()
	controllerID := reactor.NewID()

	controllerOut := make(chan reactor.Message, 4)

	endpointID := reactor.NewID()
	cmID := b.Spawn(clientmanager.New(gmID, []reactor.ID{endpointID}))
	b.Spawn(&fakeController{peer: cmID, out: controllerOut}, controllerID)

	cmSender := b.Get(cmID)
	require.NoError(t, cmSender.Send(reactor.ExternalMessage{
		Origin: gmID,
		Msg: reactor.NewMessage(messages.RegisterGame{
			Keys:        map[uint64]messages.PlayerID{42: 7},
			Controllers: map[messages.PlayerID]reactor.ID{7: controllerID},
		}),
	}))

	require.NoError(t, cmSender.Send(reactor.ExternalMessage{
		Origin: endpointID,
		Msg: reactor.NewMessage(messages.SpawnPlayer{
			Register: messages.Register{Key: 42, Name: "ignored"},
			Build:     noBuild("alice"),
		}),
	}))

	msg := expect(t, controllerOut)
	accepted, ok := reactor.Borrow[messages.Accepted](msg)
	require.True(t, ok)
	require.Equal(t, messages.PlayerID(7), accepted.Player)
	require.Equal(t, "alice", accepted.Name)
	require.Equal(t, controllerID, accepted.ControllerID)
}

func TestSpawnPlayerWithUnknownKeyAndNoBuilderIsNoOp(t *testing.T) {
	b := reactor.NewBroker()
	gmID := reactor.NewID()
	endpointID := reactor.NewID()
	cmID := b.Spawn(clientmanager.New(gmID, []reactor.ID{endpointID}))
	cmSender := b.Get(cmID)

	require.NoError(t, cmSender.Send(reactor.ExternalMessage{
		Origin: endpointID,
		Msg: reactor.NewMessage(messages.SpawnPlayer{
			Register: messages.Register{Key: 999, Name: "nobody"},
			Build:     noBuild("nobody"),
		}),
	}))

	// Give the reactor a moment to process; it should stay alive and
	// simply drop the unmatched registration.
	require.Eventually(t, func() bool {
		return !cmSender.Closed()
	}, time.Second, 5*time.Millisecond)
}

func TestSpawnPlayerWithFreeBuilderSpawnsControllerAndNotifiesAggregator(t *testing.T) {
	b := reactor.NewBroker()
	gmID := reactor.NewID()
	aggID := reactor.NewID()
	lateControllerID := reactor.NewID()

	controllerOut := make(chan reactor.Message, 4)
	aggOut := make(chan reactor.Message, 4)

	endpointID := reactor.NewID()
	cmID := b.Spawn(clientmanager.New(gmID, []reactor.ID{endpointID}))
	b.Spawn(&fakeController{peer: cmID, out: controllerOut}, lateControllerID)
	b.Spawn(&fakeAggregator{peer: cmID, out: aggOut}, aggID)

	cmSender := b.Get(cmID)
	require.NoError(t, cmSender.Send(reactor.ExternalMessage{
		Origin: gmID,
		Msg: reactor.NewMessage(messages.RegisterGame{
			Aggregator: aggID,
			Keys:       map[uint64]messages.PlayerID{},
			FreeKey:    77,
			FreeBuilder: func(h *reactor.Handle) (messages.PlayerID, reactor.ID, reactor.ID) {
				return 9, lateControllerID, aggID
			},
		}),
	}))

	require.NoError(t, cmSender.Send(reactor.ExternalMessage{
		Origin: endpointID,
		Msg: reactor.NewMessage(messages.SpawnPlayer{
			Register: messages.Register{Key: 77, Name: "late"},
			Build:     noBuild("late"),
		}),
	}))

	notif := expect(t, aggOut)
	ncc, ok := reactor.Borrow[messages.NewClientController](notif)
	require.True(t, ok)
	require.Equal(t, messages.PlayerID(9), ncc.Player)
	require.Equal(t, lateControllerID, ncc.Controller)

	accepted := expect(t, controllerOut)
	a, ok := reactor.Borrow[messages.Accepted](accepted)
	require.True(t, ok)
	require.Equal(t, messages.PlayerID(9), a.Player)
}

func TestControllerLinkCloseRemovesRegistryEntry(t *testing.T) {
	b := reactor.NewBroker()
	gmID := reactor.NewID()
	controllerID := reactor.NewID()

	endpointID := reactor.NewID()
	cmID := b.Spawn(clientmanager.New(gmID, []reactor.ID{endpointID}))
	cmSender := b.Get(cmID)

	require.NoError(t, cmSender.Send(reactor.ExternalMessage{
		Origin: gmID,
		Msg: reactor.NewMessage(messages.RegisterGame{
			Keys:        map[uint64]messages.PlayerID{1: 1},
			Controllers: map[messages.PlayerID]reactor.ID{1: controllerID},
		}),
	}))

	require.NoError(t, cmSender.Send(reactor.CloseLinkOp{Remote: controllerID}))

	// Once the registry entry is gone, a SpawnPlayer for that key
	// should be dropped rather than routed to the now-unlinked
	// controller.
	built := make(chan struct{}, 1)
	require.NoError(t, cmSender.Send(reactor.ExternalMessage{
		Origin: endpointID,
		Msg: reactor.NewMessage(messages.SpawnPlayer{
			Register: messages.Register{Key: 1, Name: "x"},
			Build: func(id reactor.ID, controller reactor.Sender) (reactor.Sender, func(), string) {
				built <- struct{}{}
				return controller, func() {}, "x"
			},
		}),
	}))

	require.Eventually(t, func() bool {
		return !cmSender.Closed()
	}, time.Second, 5*time.Millisecond)
	select {
	case <-built:
		t.Fatal("SpawnPlayer for a removed key was still routed to its controller")
	case <-time.After(50 * time.Millisecond):
	}
}
