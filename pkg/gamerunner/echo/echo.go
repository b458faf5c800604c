// Package echo is a reference gamerunner.Controller: it echoes every
// player's turn value back to every attached client, prefixed with
// the sending player's id, and kicks a player who sends "stop".
//
// Grounded on _examples/original_source/src/bin/echo.rs.
package echo

import (
	"fmt"
	"strings"

	"github.com/mozaicserver/mozaic/pkg/messages"
)

// Echo broadcasts every turn to every player named in Clients.
type Echo struct {
	Clients []messages.PlayerID
}

// New builds an Echo controller for the given player roster.
func New(clients []messages.PlayerID) *Echo {
	return &Echo{Clients: append([]messages.PlayerID(nil), clients...)}
}

// Start never produces any initial output.
func (e *Echo) Start() []messages.HostMsg { return nil }

// Step echoes each turn's value, formatted as "<id>: <value>\n", to
// every client, and kicks any player whose value is "stop".
func (e *Echo) Step(turns []messages.PlayerMsg) []messages.HostMsg {
	var out []messages.HostMsg
	for _, turn := range turns {
		value := "TIMEOUT"
		if s, ok := turn.Value.(string); ok {
			value = s
		}

		if strings.EqualFold(value, "stop") {
			out = append(out, messages.NewHostKick(turn.ID))
		}

		line := fmt.Sprintf("%d: %s\n", turn.ID, value)
		for _, target := range e.Clients {
			target := target
			out = append(out, messages.NewHostData(line, &target))
		}
	}
	return out
}

// IsDone never ends the game; echo runs until killed.
func (e *Echo) IsDone() (string, any, bool) { return "", nil, false }
