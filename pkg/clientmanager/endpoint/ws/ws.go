// Package ws implements the WebSocket binary reference transport
// endpoint: a connection's first binary frame is a JSON-encoded
// messages.Register frame, and every frame after that is an opaque
// binary payload relayed as messages.Data verbatim (no JSON decoding,
// matching spec.md's "WebSocket binary" framing).
//
// Grounded on original_source/src/modules/net/ws_endpoint.rs, which
// accepts the handshake over a plain net.TcpListener and then speaks
// tungstenite frames; here gorilla/websocket's Upgrader plays the same
// role over net/http.
package ws

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/metrics"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

const kind = "ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Endpoint owns the HTTP listener and the reactor-like id the client
// manager links to for its SpawnPlayer traffic.
type Endpoint struct {
	id       reactor.ID
	listener net.Listener
	server   *http.Server
}

// Listen binds addr and spawns the endpoint's accept loop on broker,
// reporting new connections to clientManager.
func Listen(broker *reactor.Broker, clientManager reactor.ID, addr string) (*Endpoint, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ws endpoint: listen %s: %w", addr, err)
	}

	id := reactor.NewID()
	sender, receiver := reactor.NewChannel()
	cmSender := broker.Get(clientManager)

	mux := http.NewServeMux()
	ep := &Endpoint{id: id, listener: ln}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ep.handleUpgrade(cmSender, w, r)
	})
	ep.server = &http.Server{Handler: mux}

	broker.SpawnReactorLike(id, sender, func() {
		ep.run(receiver)
	})
	return ep, nil
}

// ID is the reactor id the client manager links to for this endpoint.
func (e *Endpoint) ID() reactor.ID { return e.id }

// Addr returns the listener's bound address, useful when Listen was
// given port 0.
func (e *Endpoint) Addr() string { return e.listener.Addr().String() }

func (e *Endpoint) run(receiver reactor.Receiver) {
	go func() {
		for {
			op, ok := receiver.Recv()
			if !ok {
				return
			}
			if _, closing := op.(reactor.CloseLinkOp); closing {
				e.server.Close()
				return
			}
		}
	}()

	_ = e.server.Serve(e.listener)
}

func (e *Endpoint) handleUpgrade(cmSender reactor.Sender, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("ws endpoint: upgrade failed")
		return
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}

	var reg messages.Register
	if err := json.Unmarshal(payload, &reg); err != nil {
		log.Logger.Warn().Err(err).Msg("ws endpoint: bad register frame")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(err.Error()))
		conn.Close()
		return
	}

	build := func(clientID reactor.ID, controller reactor.Sender) (reactor.Sender, func(), string) {
		sender, receiver := reactor.NewChannel()
		task := func() {
			runClient(conn, clientID, controller, receiver)
		}
		return sender, task, reg.Name
	}

	if err := cmSender.Send(reactor.ExternalMessage{
		Origin: e.id,
		Msg:    reactor.NewMessage(messages.SpawnPlayer{Register: reg, Build: build}),
	}); err != nil {
		log.Logger.Warn().Err(err).Msg("ws endpoint: client manager gone")
		conn.Close()
		return
	}
	metrics.EndpointConnectionsAccepted.WithLabelValues(kind).Inc()
}

func runClient(conn *websocket.Conn, id reactor.ID, controller reactor.Sender, receiver reactor.Receiver) {
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
			raw, ok := data.Value.([]byte)
			if !ok {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
				return
			}
		}
	}()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := controller.Send(reactor.ExternalMessage{
			Origin: id,
			Msg:    reactor.NewMessage(messages.Data{Value: payload}),
		}); err != nil {
			break
		}
	}

	receiver.Close()
	_ = controller.Send(reactor.CloseLinkOp{Remote: id})
}
