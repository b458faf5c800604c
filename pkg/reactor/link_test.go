package reactor_test

import (
	"testing"
	"time"

	"github.com/mozaicserver/mozaic/pkg/reactor"
	"github.com/stretchr/testify/require"
)

type greeting struct{ text string }

type hostState struct {
	reactor.Base
	peer reactor.ID
}

func (s *hostState) Init(h *reactor.Handle) {
	h.OpenLink(s.peer, reactor.NewLinkParams().OnInternal(reactor.TagOf[greeting](), reactor.PassThrough), false)
	s.On(reactor.TagOf[trigger](), func(h *reactor.Handle, msg reactor.Message) {
		h.Emit(reactor.NewMessage(greeting{text: "hi"}), reactor.ToLinks())
	})
}

type clientState struct {
	reactor.Base
	received chan string
}

func (s *clientState) Init(h *reactor.Handle) {
	// no reactor-level handlers; all traffic arrives via the link
}

func TestExternalMessageReachesExternalHandler(t *testing.T) {
	b := reactor.NewBroker()
	received := make(chan string, 1)

	clientID := b.Spawn(&clientState{received: received})

	host := &hostState{peer: clientID}
	hostID := b.Spawn(host)

	// The client never opened its own link back to the host, so it
	// must be given one whose external handler captures the host's
	// ExternalMessage. Since clientState's Init above installs no
	// links, open one directly here to exercise the external-handler
	// path in isolation.
	clientSender := b.Get(clientID)
	params := reactor.NewLinkParams().OnExternal(reactor.TagOf[greeting](), func(lh *reactor.LinkHandle, msg reactor.Message) {
		g, ok := reactor.Borrow[greeting](msg)
		if ok {
			received <- g.text
		}
	})
	require.NoError(t, clientSender.Send(reactor.OpenLinkOp{Remote: hostID, Params: params}))

	hostSender := b.Get(hostID)
	require.NoError(t, hostSender.Send(reactor.InternalMessage{
		Msg:      reactor.NewMessage(trigger{}),
		Selector: reactor.ToReactor(),
	}))

	select {
	case text := <-received:
		require.Equal(t, "hi", text)
	case <-time.After(time.Second):
		t.Fatal("external message never arrived")
	}
}

func TestOpenLinkReplacesWithoutInvokingPreviousCloseHook(t *testing.T) {
	b := reactor.NewBroker()
	peer := reactor.NewID()
	closed := make(chan string, 2)

	st := &replaceState{peer: peer, closed: closed}
	id := b.Spawn(st)
	sender := b.Get(id)

	require.NoError(t, sender.Send(reactor.InternalMessage{
		Msg:      reactor.NewMessage(openWith{tag: "first"}),
		Selector: reactor.ToReactor(),
	}))
	require.NoError(t, sender.Send(reactor.InternalMessage{
		Msg:      reactor.NewMessage(openWith{tag: "second"}),
		Selector: reactor.ToReactor(),
	}))
	require.NoError(t, sender.Send(reactor.CloseLinkOp{Remote: peer}))

	select {
	case tag := <-closed:
		require.Equal(t, "second", tag, "replacing a link must not invoke the previous link's close hook")
	case <-time.After(time.Second):
		t.Fatal("close hook never fired")
	}

	select {
	case <-closed:
		t.Fatal("close hook fired more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

type openWith struct{ tag string }

type replaceState struct {
	reactor.Base
	peer   reactor.ID
	closed chan string
}

func (s *replaceState) Init(h *reactor.Handle) {
	s.On(reactor.TagOf[openWith](), func(h *reactor.Handle, msg reactor.Message) {
		ow, _ := reactor.Borrow[openWith](msg)
		tag := ow.tag
		params := reactor.NewLinkParams().OnClose(func(lh *reactor.LinkHandle) {
			s.closed <- tag
		})
		h.OpenLink(s.peer, params, false)
	})
}
