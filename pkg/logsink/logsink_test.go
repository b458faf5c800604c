package logsink_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozaicserver/mozaic/pkg/logsink"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

func setup(t *testing.T) (manager reactor.ID, logPath string) {
	t.Helper()
	manager = reactor.NewID()
	logPath = filepath.Join(t.TempDir(), "games.log")
	return manager, logPath
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestGameJoinOpensLinkAndEntriesAreAppended(t *testing.T) {
	manager, path := setup(t)
	b := reactor.NewBroker()

	sink, err := logsink.New(manager, path)
	require.NoError(t, err)
	sinkID := b.Spawn(sink)
	sinkSender := b.Get(sinkID)

	gameID := reactor.NewID()
	require.NoError(t, sinkSender.Send(reactor.ExternalMessage{
		Origin: manager,
		Msg:    reactor.NewMessage(messages.GameJoin{Game: gameID}),
	}))

	require.NoError(t, sinkSender.Send(reactor.ExternalMessage{
		Origin: gameID,
		Msg: reactor.NewMessage(messages.LogEntry{
			Tag:   "turn",
			Value: map[string]any{"player": 7, "move": "north"},
		}),
	}))

	require.Eventually(t, func() bool {
		contents := readFile(t, path)
		return contents != ""
	}, time.Second, 5*time.Millisecond)

	contents := readFile(t, path)
	require.Contains(t, contents, "[turn]\n")
	require.Contains(t, contents, "move=\"north\"\n")
	require.Contains(t, contents, "player=7\n")
}

func TestWriteRejectsNonObjectValue(t *testing.T) {
	manager, path := setup(t)
	b := reactor.NewBroker()

	sink, err := logsink.New(manager, path)
	require.NoError(t, err)
	sinkID := b.Spawn(sink)
	sinkSender := b.Get(sinkID)

	gameID := reactor.NewID()
	require.NoError(t, sinkSender.Send(reactor.ExternalMessage{
		Origin: manager,
		Msg:    reactor.NewMessage(messages.GameJoin{Game: gameID}),
	}))

	require.NoError(t, sinkSender.Send(reactor.ExternalMessage{
		Origin: gameID,
		Msg: reactor.NewMessage(messages.LogEntry{
			Tag:   "bad",
			Value: "not an object",
		}),
	}))

	// Give the sink a moment to process and confirm it never wrote a
	// header line for the rejected entry.
	time.Sleep(50 * time.Millisecond)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "[bad]")
}

func TestNewFailsOnUnwritablePath(t *testing.T) {
	manager := reactor.NewID()
	_, err := logsink.New(manager, filepath.Join(t.TempDir(), "missing-dir", "games.log"))
	require.Error(t, err)
}
