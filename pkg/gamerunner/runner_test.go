package gamerunner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozaicserver/mozaic/pkg/gamerunner"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// stubController lets each test script exactly what Start/Step return
// and when the game reports itself done.
type stubController struct {
	start []messages.HostMsg
	step  []messages.HostMsg
	done  bool
	tag   string
	value any
	steps []messages.PlayerMsg
}

func (s *stubController) Start() []messages.HostMsg { return s.start }

func (s *stubController) Step(turns []messages.PlayerMsg) []messages.HostMsg {
	s.steps = append(s.steps, turns...)
	return s.step
}

func (s *stubController) IsDone() (string, any, bool) { return s.tag, s.value, s.done }

type fakeClients struct {
	reactor.Base
	peer reactor.ID
	out  chan reactor.Message
}

func (c *fakeClients) Init(h *reactor.Handle) {
	params := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.HostMsg](), capture(c.out))
	h.OpenLink(c.peer, params, false)
}

type fakeGameManager struct {
	reactor.Base
	peer    reactor.ID
	results chan reactor.Message
	kills   chan reactor.Message
}

func (g *fakeGameManager) Init(h *reactor.Handle) {
	params := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.GameResult](), capture(g.results)).
		OnExternal(reactor.TagOf[messages.Res[messages.Kill]](), capture(g.kills))
	h.OpenLink(g.peer, params, false)
}

type fakeLogger struct {
	reactor.Base
	peer reactor.ID
	out  chan reactor.Message
}

func (l *fakeLogger) Init(h *reactor.Handle) {
	params := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.LogEntry](), capture(l.out))
	h.OpenLink(l.peer, params, false)
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

type fixture struct {
	broker     *reactor.Broker
	runnerID   reactor.ID
	clientsID  reactor.ID
	gmID       reactor.ID
	clientsOut chan reactor.Message
	gmResults  chan reactor.Message
	gmKills    chan reactor.Message
	loggerOut  chan reactor.Message
	runnerSend reactor.Sender
}

func setup(t *testing.T, game gamerunner.Controller) fixture {
	t.Helper()
	b := reactor.NewBroker()
	clientsID := reactor.NewID()
	gmID := reactor.NewID()
	loggerID := reactor.NewID()

	f := fixture{
		broker:     b,
		clientsID:  clientsID,
		gmID:       gmID,
		clientsOut: make(chan reactor.Message, 16),
		gmResults:  make(chan reactor.Message, 16),
		gmKills:    make(chan reactor.Message, 16),
		loggerOut:  make(chan reactor.Message, 16),
	}

	f.runnerID = b.Spawn(gamerunner.New(clientsID, gmID, loggerID, game, 42))
	b.Spawn(&fakeClients{peer: f.runnerID, out: f.clientsOut}, clientsID)
	b.Spawn(&fakeGameManager{peer: f.runnerID, results: f.gmResults, kills: f.gmKills}, gmID)
	b.Spawn(&fakeLogger{peer: f.runnerID, out: f.loggerOut}, loggerID)

	f.runnerSend = b.Get(f.runnerID)
	return f
}

func TestStartBroadcastsControllerOutput(t *testing.T) {
	target := messages.PlayerID(1)
	game := &stubController{start: []messages.HostMsg{messages.NewHostData("hello", &target)}}
	f := setup(t, game)

	require.NoError(t, f.runnerSend.Send(reactor.ExternalMessage{
		Origin: f.clientsID,
		Msg:    reactor.NewMessage(messages.Start{}),
	}))

	msg := expect(t, f.clientsOut)
	hm, ok := reactor.Borrow[messages.HostMsg](msg)
	require.True(t, ok)
	require.Equal(t, "hello", hm.Value)
}

func TestPlayerMsgStepsAndBroadcasts(t *testing.T) {
	game := &stubController{step: []messages.HostMsg{messages.NewHostData("echoed", nil)}}
	f := setup(t, game)

	require.NoError(t, f.runnerSend.Send(reactor.ExternalMessage{
		Origin: f.clientsID,
		Msg:    reactor.NewMessage(messages.PlayerMsg{ID: 7, Value: "hi"}),
	}))

	msg := expect(t, f.clientsOut)
	hm, ok := reactor.Borrow[messages.HostMsg](msg)
	require.True(t, ok)
	require.Equal(t, "echoed", hm.Value)
	require.Len(t, game.steps, 1)
	require.Equal(t, messages.PlayerID(7), game.steps[0].ID)
}

func TestBatchPlayerMsgsSteps(t *testing.T) {
	game := &stubController{}
	f := setup(t, game)

	batch := []messages.PlayerMsg{{ID: 1, Value: "a"}, {ID: 2, Value: "b"}}
	require.NoError(t, f.runnerSend.Send(reactor.ExternalMessage{
		Origin: f.clientsID,
		Msg:    reactor.NewMessage(batch),
	}))

	require.Eventually(t, func() bool {
		return len(game.steps) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestIsDoneReportsResultToGameManagerAndLoggerThenCloses(t *testing.T) {
	game := &stubController{done: true, tag: "finished", value: 7}
	f := setup(t, game)

	require.NoError(t, f.runnerSend.Send(reactor.ExternalMessage{
		Origin: f.clientsID,
		Msg:    reactor.NewMessage(messages.Start{}),
	}))

	result := expect(t, f.gmResults)
	gr, ok := reactor.Borrow[messages.GameResult](result)
	require.True(t, ok)
	require.Equal(t, uint64(42), gr.Game)
	require.Equal(t, "finished", gr.Tag)
	require.Equal(t, 7, gr.Value)

	entry := expect(t, f.loggerOut)
	le, ok := reactor.Borrow[messages.LogEntry](entry)
	require.True(t, ok)
	require.Equal(t, "finished", le.Tag)

	require.Eventually(t, func() bool {
		return f.runnerSend.Closed()
	}, time.Second, 5*time.Millisecond)
}

func TestKillRepliesToGameManagerAndCloses(t *testing.T) {
	game := &stubController{}
	f := setup(t, game)

	req := messages.NewReq(messages.Kill{})
	require.NoError(t, f.runnerSend.Send(reactor.ExternalMessage{
		Origin: f.gmID,
		Msg:    reactor.NewMessage(req),
	}))

	reply := expect(t, f.gmKills)
	res, ok := reactor.Borrow[messages.Res[messages.Kill]](reply)
	require.True(t, ok)
	require.Equal(t, req.UUID, res.UUID)

	require.Eventually(t, func() bool {
		return f.runnerSend.Closed()
	}, time.Second, 5*time.Millisecond)

	expectNone(t, f.clientsOut)
}
