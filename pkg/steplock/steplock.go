// Package steplock implements turn-based batching between a game's
// client aggregator and its host: player messages are buffered by id
// until every expected id has one, or a per-turn timeout elapses,
// then flushed as a single batch.
//
// Grounded on _examples/original_source/src/modules/steplock.rs; the
// timer sidecar's run loop is grounded on the select/stop-channel
// shape of cuemby-warren/pkg/reconciler.go's reconciliation loop.
package steplock

import (
	"time"

	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/metrics"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// StepLock sits between host and aggregator, cascading to both: it
// dies if either end does.
type StepLock struct {
	reactor.Base

	host       reactor.ID
	aggregator reactor.ID
	timer      reactor.ID

	step map[messages.PlayerID]*messages.PlayerMsg

	timeout    time.Duration
	hasTimeout bool
}

// New builds a step lock for players, flushing early once every id
// has a message, or after timeout elapses if it is greater than zero.
func New(host, aggregator reactor.ID, players []messages.PlayerID, timeout time.Duration) *StepLock {
	s := &StepLock{
		host:       host,
		aggregator: aggregator,
		step:       make(map[messages.PlayerID]*messages.PlayerMsg, len(players)),
		timeout:    timeout,
		hasTimeout: timeout > 0,
	}
	for _, p := range players {
		s.step[p] = nil
	}
	s.On(reactor.TagOf[messages.PlayerMsg](), s.handlePlayerMsg)
	s.On(reactor.TagOf[messages.TimeOut](), s.handleTimeOut)
	return s
}

// Init opens cascading links to the host and the aggregator, and
// spawns the timer sidecar as a reactor-like linked under a freshly
// allocated id.
func (s *StepLock) Init(h *reactor.Handle) {
	hostParams := reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.PlayerMsg](), reactor.PassThrough).
		OnExternal(reactor.TagOf[messages.HostMsg](), s.forwardToAggregator)
	h.OpenLink(s.host, hostParams, true)

	aggParams := reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.HostMsg](), reactor.PassThrough).
		OnExternal(reactor.TagOf[messages.PlayerMsg](), reactor.ToReactorHandler)
	h.OpenLink(s.aggregator, aggParams, true)

	s.timer = reactor.NewID()
	receiver, _ := h.Broker().Connect(s.timer)
	timerSender := h.Broker().Get(s.timer)

	timerParams := reactor.NewLinkParams().
		OnInternal(reactor.TagOf[messages.ResetTimeOut](), reactor.PassThrough).
		OnExternal(reactor.TagOf[messages.TimeOut](), reactor.ToReactorHandler)
	h.OpenLink(s.timer, timerParams, true)

	stepLockSender := h.Broker().Get(h.ID())
	broker := h.Broker()
	timeout, hasTimeout, timerID := s.timeout, s.hasTimeout, s.timer
	broker.SpawnReactorLike(s.timer, timerSender, func() {
		runTimer(broker, timerID, receiver, stepLockSender, timeout, hasTimeout)
	})
}

// forwardToAggregator is the host link's external handler: a HostMsg
// from the host is routed straight to the aggregator link, untouched.
func (s *StepLock) forwardToAggregator(lh *reactor.LinkHandle, msg reactor.Message) {
	lh.SendInternal(msg, reactor.ToLink(s.aggregator))
}

func (s *StepLock) handlePlayerMsg(h *reactor.Handle, msg reactor.Message) {
	pm, ok := reactor.Borrow[messages.PlayerMsg](msg)
	if !ok {
		return
	}
	stored := pm
	s.step[pm.ID] = &stored

	for _, m := range s.step {
		if m == nil {
			return
		}
	}
	s.flush(h)
}

func (s *StepLock) handleTimeOut(h *reactor.Handle, msg reactor.Message) {
	metrics.StepLockTimeouts.Inc()
	s.flush(h)
}

// flush broadcasts a timer reset, sends one PlayerMsg per expected id
// to the host (a synthetic empty one for any id still missing), and
// resets every slot to empty.
func (s *StepLock) flush(h *reactor.Handle) {
	metrics.StepLockFlushes.Inc()
	h.Emit(reactor.NewMessage(messages.ResetTimeOut{}), reactor.ToLinks())
	for id, m := range s.step {
		out := messages.PlayerMsg{ID: id, Value: ""}
		if m != nil {
			out = *m
		}
		s.step[id] = nil
		h.Emit(reactor.NewMessage(out), reactor.ToLink(s.host))
	}
}

// runTimer is the timer sidecar's body: it restarts its delay on every
// inbound operation (a broadcast ResetTimeOut is the only message the
// step lock ever routes to this link) and reports to the step lock on
// expiry. The link closing (a CloseLinkOp, from either a cascaded
// shutdown or an explicit close) ends the loop. A background goroutine
// pumps the blocking Receiver into a channel so the loop can select
// between an inbound operation and the delay firing.
func runTimer(b *reactor.Broker, id reactor.ID, receiver reactor.Receiver, stepLock reactor.Sender, timeout time.Duration, hasTimeout bool) {
	ops := make(chan reactor.Operation)
	go func() {
		defer close(ops)
		for {
			op, ok := receiver.Recv()
			if !ok {
				return
			}
			ops <- op
		}
	}()

	for {
		var timeoutC <-chan time.Time
		var timer *time.Timer
		if hasTimeout {
			timer = time.NewTimer(timeout)
			timeoutC = timer.C
		}

		select {
		case op, ok := <-ops:
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				receiver.Close()
				b.Remove(id)
				return
			}
			if _, closing := op.(reactor.CloseLinkOp); closing {
				receiver.Close()
				b.Remove(id)
				return
			}
			// Any other inbound operation (the ResetTimeOut broadcast)
			// just restarts the delay on the next loop iteration.
		case <-timeoutC:
			_ = stepLock.Send(reactor.ExternalMessage{Origin: id, Msg: reactor.NewMessage(messages.TimeOut{})})
		}
	}
}
