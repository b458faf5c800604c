package steplock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
	"github.com/mozaicserver/mozaic/pkg/steplock"
)

type fakeHost struct {
	reactor.Base
	peer reactor.ID
	out  chan reactor.Message
}

func (h *fakeHost) Init(rh *reactor.Handle) {
	params := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.PlayerMsg](), capture(h.out))
	rh.OpenLink(h.peer, params, false)
}

type fakeAggregator struct {
	reactor.Base
	peer reactor.ID
	out  chan reactor.Message
}

func (a *fakeAggregator) Init(rh *reactor.Handle) {
	params := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.HostMsg](), capture(a.out))
	rh.OpenLink(a.peer, params, false)
}

func capture(out chan reactor.Message) reactor.LinkHandlerFunc {
	return func(lh *reactor.LinkHandle, msg reactor.Message) {
		out <- msg
	}
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

func expectNone(t *testing.T, ch chan reactor.Message) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("expected no message yet, got %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFlushesOnceEveryPlayerHasAMessage(t *testing.T) {
	b := reactor.NewBroker()
	hostID := reactor.NewID()
	aggID := reactor.NewID()

	hostOut := make(chan reactor.Message, 8)

	slID := b.Spawn(steplock.New(hostID, aggID, []messages.PlayerID{1, 2}, 0))
	b.Spawn(&fakeHost{peer: slID, out: hostOut}, hostID)

	slSender := b.Get(slID)
	require.NoError(t, slSender.Send(reactor.ExternalMessage{
		Origin: aggID,
		Msg:    reactor.NewMessage(messages.PlayerMsg{ID: 1, Value: "a"}),
	}))

	expectNone(t, hostOut)

	require.NoError(t, slSender.Send(reactor.ExternalMessage{
		Origin: aggID,
		Msg:    reactor.NewMessage(messages.PlayerMsg{ID: 2, Value: "b"}),
	}))

	seen := map[messages.PlayerID]string{}
	for i := 0; i < 2; i++ {
		msg := expect(t, hostOut)
		pm, ok := reactor.Borrow[messages.PlayerMsg](msg)
		require.True(t, ok)
		seen[pm.ID] = pm.Value.(string)
	}
	require.Equal(t, "a", seen[1])
	require.Equal(t, "b", seen[2])
}

func TestFlushesOnceEveryPlayerHasAMessageInReverseOrder(t *testing.T) {
	b := reactor.NewBroker()
	hostID := reactor.NewID()
	aggID := reactor.NewID()

	hostOut := make(chan reactor.Message, 8)

	slID := b.Spawn(steplock.New(hostID, aggID, []messages.PlayerID{1, 2}, 0))
	b.Spawn(&fakeHost{peer: slID, out: hostOut}, hostID)

	slSender := b.Get(slID)
	require.NoError(t, slSender.Send(reactor.ExternalMessage{
		Origin: aggID,
		Msg:    reactor.NewMessage(messages.PlayerMsg{ID: 2, Value: "b"}),
	}))
	require.NoError(t, slSender.Send(reactor.ExternalMessage{
		Origin: aggID,
		Msg:    reactor.NewMessage(messages.PlayerMsg{ID: 1, Value: "a"}),
	}))

	seen := map[messages.PlayerID]string{}
	for i := 0; i < 2; i++ {
		msg := expect(t, hostOut)
		pm, ok := reactor.Borrow[messages.PlayerMsg](msg)
		require.True(t, ok)
		seen[pm.ID] = pm.Value.(string)
	}
	require.Equal(t, "a", seen[1])
	require.Equal(t, "b", seen[2])
}

func TestTimeoutFlushesWithoutEveryPlayer(t *testing.T) {
	b := reactor.NewBroker()
	hostID := reactor.NewID()
	aggID := reactor.NewID()

	hostOut := make(chan reactor.Message, 8)

	slID := b.Spawn(steplock.New(hostID, aggID, []messages.PlayerID{1, 2}, 30*time.Millisecond))
	b.Spawn(&fakeHost{peer: slID, out: hostOut}, hostID)

	slSender := b.Get(slID)
	require.NoError(t, slSender.Send(reactor.ExternalMessage{
		Origin: aggID,
		Msg:    reactor.NewMessage(messages.PlayerMsg{ID: 1, Value: "only-one"}),
	}))

	seen := map[messages.PlayerID]string{}
	for i := 0; i < 2; i++ {
		msg := expect(t, hostOut)
		pm, ok := reactor.Borrow[messages.PlayerMsg](msg)
		require.True(t, ok)
		seen[pm.ID] = pm.Value.(string)
	}
	require.Equal(t, "only-one", seen[1])
	require.Equal(t, "", seen[2])
}

func TestHostMsgForwardsToAggregatorUntouched(t *testing.T) {
	b := reactor.NewBroker()
	hostID := reactor.NewID()
	aggID := reactor.NewID()

	aggOut := make(chan reactor.Message, 8)

	slID := b.Spawn(steplock.New(hostID, aggID, []messages.PlayerID{1}, 0))
	b.Spawn(&fakeAggregator{peer: slID, out: aggOut}, aggID)

	slSender := b.Get(slID)
	require.NoError(t, slSender.Send(reactor.ExternalMessage{
		Origin: hostID,
		Msg:    reactor.NewMessage(messages.NewHostData("to-everyone", nil)),
	}))

	msg := expect(t, aggOut)
	hm, ok := reactor.Borrow[messages.HostMsg](msg)
	require.True(t, ok)
	require.Equal(t, "to-everyone", hm.Value)
}
