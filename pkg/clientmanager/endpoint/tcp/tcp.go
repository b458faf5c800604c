// Package tcp implements the line-delimited TCP reference transport
// endpoint: a connection's first line is the player's decimal key,
// and every line after that is an opaque payload relayed verbatim as
// messages.Data.
//
// Grounded on original_source/src/modules/net/tcp_endpoint.rs, adapted
// from futures/async-std's select-loop shape to goroutines plus the
// reactor runtime's own Sender/Receiver channel.
package tcp

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/metrics"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

const kind = "tcp"

// defaultName is the player name the original assigns every TCP
// client, which registers by key alone with no name field.
const defaultName = "Client"

// Endpoint owns the listener and the reactor-like id the client
// manager links to for its SpawnPlayer traffic.
type Endpoint struct {
	id       reactor.ID
	listener net.Listener
}

// Listen binds addr and spawns the endpoint's accept loop on broker,
// reporting new connections to clientManager.
func Listen(broker *reactor.Broker, clientManager reactor.ID, addr string) (*Endpoint, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp endpoint: listen %s: %w", addr, err)
	}

	id := reactor.NewID()
	sender, receiver := reactor.NewChannel()
	ep := &Endpoint{id: id, listener: ln}

	cmSender := broker.Get(clientManager)
	broker.SpawnReactorLike(id, sender, func() {
		ep.run(receiver, cmSender)
	})
	return ep, nil
}

// ID is the reactor id the client manager links to for this endpoint.
func (e *Endpoint) ID() reactor.ID { return e.id }

// Addr returns the listener's bound address, useful when Listen was
// given port 0.
func (e *Endpoint) Addr() string { return e.listener.Addr().String() }

func (e *Endpoint) run(receiver reactor.Receiver, cmSender reactor.Sender) {
	go func() {
		for {
			op, ok := receiver.Recv()
			if !ok {
				return
			}
			if _, closing := op.(reactor.CloseLinkOp); closing {
				e.listener.Close()
				return
			}
		}
	}()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			return
		}
		metrics.EndpointConnectionsAccepted.WithLabelValues(kind).Inc()
		go handleConn(e.id, cmSender, conn)
	}
}

func handleConn(endpointID reactor.ID, cmSender reactor.Sender, conn net.Conn) {
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return
	}

	key, err := strconv.ParseUint(strings.TrimSpace(line), 10, 64)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("tcp endpoint: bad register line")
		conn.Close()
		return
	}
	reg := messages.Register{Key: key, Name: defaultName}

	build := func(clientID reactor.ID, controller reactor.Sender) (reactor.Sender, func(), string) {
		sender, receiver := reactor.NewChannel()
		task := func() {
			runClient(conn, reader, clientID, controller, receiver)
		}
		return sender, task, reg.Name
	}

	if err := cmSender.Send(reactor.ExternalMessage{
		Origin: endpointID,
		Msg:    reactor.NewMessage(messages.SpawnPlayer{Register: reg, Build: build}),
	}); err != nil {
		log.Logger.Warn().Err(err).Msg("tcp endpoint: client manager gone")
		conn.Close()
	}
}

func runClient(conn net.Conn, reader *bufio.Reader, id reactor.ID, controller reactor.Sender, receiver reactor.Receiver) {
	defer conn.Close()
	defer metrics.EndpointConnectionsClosed.WithLabelValues(kind).Inc()

	go func() {
		for {
			op, ok := receiver.Recv()
			if !ok {
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
			value, ok := data.Value.(string)
			if !ok {
				continue
			}
			if _, err := conn.Write(append([]byte(value), '\n')); err != nil {
				return
			}
		}
	}()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		value := strings.TrimRight(line, "\r\n")
		if err := controller.Send(reactor.ExternalMessage{
			Origin: id,
			Msg:    reactor.NewMessage(messages.Data{Value: value}),
		}); err != nil {
			break
		}
	}

	receiver.Close()
	_ = controller.Send(reactor.CloseLinkOp{Remote: id})
}
