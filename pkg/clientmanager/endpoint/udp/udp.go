// Package udp implements the datagram UDP reference transport
// endpoint: a client's first datagram from a given address is a
// JSON-encoded messages.Register frame, and every datagram after that
// is a JSON-encoded application payload relayed as messages.Data.
//
// Grounded on original_source/src/modules/net/udp_endpoint.rs: one
// socket serves every client, demultiplexed by source address, with
// per-client registry state in a sync.Map shared by the goroutine
// reading the socket, the Build closure and each client's task,
// matching the original's accepting future and its
// HashMap<SocketAddr, ...> registry.
package udp

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/metrics"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

const kind = "udp"

const maxDatagram = 65507

// clientEntry is the registry record the read loop keeps per source
// address once it has been matched to a client controller.
type clientEntry struct {
	id         reactor.ID
	controller reactor.Sender
}

// Endpoint owns the socket and the reactor-like id the client manager
// links to for its SpawnPlayer traffic.
type Endpoint struct {
	id   reactor.ID
	conn net.PacketConn
}

// Listen binds addr and spawns the endpoint's receive loop on broker,
// reporting new clients to clientManager.
func Listen(broker *reactor.Broker, clientManager reactor.ID, addr string) (*Endpoint, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp endpoint: listen %s: %w", addr, err)
	}

	id := reactor.NewID()
	sender, receiver := reactor.NewChannel()
	ep := &Endpoint{id: id, conn: conn}

	cmSender := broker.Get(clientManager)
	broker.SpawnReactorLike(id, sender, func() {
		ep.run(receiver, cmSender)
	})
	return ep, nil
}

// ID is the reactor id the client manager links to for this endpoint.
func (e *Endpoint) ID() reactor.ID { return e.id }

// Addr returns the socket's bound address, useful when Listen was
// given port 0.
func (e *Endpoint) Addr() string { return e.conn.LocalAddr().String() }

func (e *Endpoint) run(receiver reactor.Receiver, cmSender reactor.Sender) {
	go func() {
		for {
			op, ok := receiver.Recv()
			if !ok {
				return
			}
			if _, closing := op.(reactor.CloseLinkOp); closing {
				e.conn.Close()
				return
			}
		}
	}()

	var clients sync.Map // string (addr) -> *clientEntry
	var writeMu sync.Mutex

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		payload := append([]byte(nil), buf[:n]...)
		key := addr.String()

		if v, ok := clients.Load(key); ok {
			entry := v.(*clientEntry)
			var value any
			if err := json.Unmarshal(payload, &value); err != nil {
				log.Logger.Warn().Err(err).Msg("udp endpoint: bad payload datagram")
				continue
			}
			if err := entry.controller.Send(reactor.ExternalMessage{
				Origin: entry.id,
				Msg:    reactor.NewMessage(messages.Data{Value: value}),
			}); err != nil {
				clients.Delete(key)
			}
			continue
		}

		var reg messages.Register
		if err := json.Unmarshal(payload, &reg); err != nil {
			log.Logger.Warn().Err(err).Msg("udp endpoint: bad register frame")
			continue
		}

		addrCopy := addr
		build := func(clientID reactor.ID, controller reactor.Sender) (reactor.Sender, func(), string) {
			clients.Store(key, &clientEntry{id: clientID, controller: controller})
			sender, recv := reactor.NewChannel()
			task := func() {
				runClient(e.conn, addrCopy, &writeMu, clientID, controller, recv)
				clients.Delete(key)
			}
			return sender, task, reg.Name
		}

		if err := cmSender.Send(reactor.ExternalMessage{
			Origin: e.id,
			Msg:    reactor.NewMessage(messages.SpawnPlayer{Register: reg, Build: build}),
		}); err != nil {
			log.Logger.Warn().Err(err).Msg("udp endpoint: client manager gone")
			continue
		}
		metrics.EndpointConnectionsAccepted.WithLabelValues(kind).Inc()
	}
}

// runClient is the per-client reactor-like task: it relays Data the
// controller emits toward this client out over the shared socket.
// Inbound datagrams are forwarded to the controller directly from the
// endpoint's read loop, which already holds the registry entry
// matching this address.
func runClient(conn net.PacketConn, addr net.Addr, writeMu *sync.Mutex, id reactor.ID, controller reactor.Sender, receiver reactor.Receiver) {
	defer metrics.EndpointConnectionsClosed.WithLabelValues(kind).Inc()

	for {
		op, ok := receiver.Recv()
		if !ok {
			return
		}
		if _, closing := op.(reactor.CloseLinkOp); closing {
			return
		}
		ext, ok := op.(reactor.ExternalMessage)
		if !ok {
			continue
		}
		data, ok := reactor.Borrow[messages.Data](ext.Msg)
		if !ok {
			continue
		}
		raw, err := json.Marshal(data.Value)
		if err != nil {
			continue
		}
		writeMu.Lock()
		_, err = conn.WriteTo(raw, addr)
		writeMu.Unlock()
		if err != nil {
			_ = controller.Send(reactor.CloseLinkOp{Remote: id})
			return
		}
	}
}
