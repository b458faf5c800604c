// Package logsink implements the process-wide log-event reactor: it
// links to the game manager to learn when a game starts, opens a
// non-cascading link to that game, and appends every LogEntry it
// reports to a single append-only text file.
//
// Grounded on cuemby-warren/pkg/events.Broker's pubsub shape (a
// central reactor other components report to) fused with
// original_source/src/modules/logger.rs's on-disk record format: a
// "[tag]" header line followed by one "key=value" line per field of
// the entry's JSON-encoded payload.
package logsink

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// LogSink owns one append-only log file shared by every game that has
// joined it so far.
type LogSink struct {
	reactor.Base

	manager reactor.ID

	mu   sync.Mutex
	file *os.File
}

// New opens path for appending (creating it if necessary) and returns
// a sink ready to be spawned on a broker.
func New(manager reactor.ID, path string) (*LogSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logsink: open %s: %w", path, err)
	}
	s := &LogSink{manager: manager, file: f}
	s.On(reactor.TagOf[messages.GameJoin](), s.handleGameJoin)
	return s, nil
}

// Init links to the game manager, routing GameJoin notifications to
// the reactor's own handler table.
func (s *LogSink) Init(h *reactor.Handle) {
	mgrParams := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.GameJoin](), reactor.ToReactorHandler)
	h.OpenLink(s.manager, mgrParams, false)
}

func (s *LogSink) handleGameJoin(h *reactor.Handle, msg reactor.Message) {
	join, ok := reactor.Borrow[messages.GameJoin](msg)
	if !ok {
		return
	}
	gameParams := reactor.NewLinkParams().
		OnExternal(reactor.TagOf[messages.LogEntry](), s.handleLogEntry)
	h.OpenLink(join.Game, gameParams, false)
}

func (s *LogSink) handleLogEntry(lh *reactor.LinkHandle, msg reactor.Message) {
	entry, ok := reactor.Borrow[messages.LogEntry](msg)
	if !ok {
		return
	}
	if err := s.write(entry); err != nil {
		log.Logger.Warn().Err(err).Str("tag", entry.Tag).Msg("logsink: write failed")
	}
}

// write appends one record: a "[tag]" header line, then one
// "key=value" line per field of entry.Value's JSON object form.
func (s *LogSink) write(entry messages.LogEntry) error {
	fields, err := toFields(entry.Value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.file, "[%s]\n", entry.Tag); err != nil {
		return err
	}
	for key, raw := range fields {
		if _, err := fmt.Fprintf(s.file, "%s=%s\n", key, raw); err != nil {
			return err
		}
	}
	return s.file.Sync()
}

// toFields renders value as a flat key/value map by round-tripping it
// through encoding/json; callers pass either a map[string]any built
// directly or a struct with JSON field tags, and either unmarshals
// into an object the same way.
func toFields(value any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("logsink: marshal log value: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("logsink: log value is not a JSON object: %w", err)
	}
	return fields, nil
}

// Close flushes and closes the underlying file. Intended for graceful
// shutdown; the sink's own event loop never calls it.
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
