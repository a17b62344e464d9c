package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/world"
)

const writeWait = 10 * time.Second

// Stream message types.
const (
	MessageSnapshot = "snapshot"
	MessageDiff     = "diff"
)

// StreamMessage is one websocket text frame.
type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// streamCursor is the last state a client was sent.
type streamCursor struct {
	tick     uint64
	checksum ir.Checksum
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var (
		since    ir.Checksum
		hasSince bool
	)
	if raw := r.URL.Query().Get("since"); raw != "" {
		c, err := world.ParseChecksumParam("since", raw)
		if err != nil {
			writeDiffError(w, err)
			return
		}
		since, hasSince = c, true
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("stream upgrade failed", zap.Error(err))
		return
	}

	// Subscribe before the first read of the store so no tick is missed.
	sub, ok := s.hub.Subscribe()
	if !ok {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	defer s.hub.Unsubscribe(sub)

	// Reads only detect the client going away; clients send nothing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-gone
	}()

	cur, ok := s.sendInitial(conn, since, hasSince)
	if !ok {
		return
	}

	for {
		select {
		case <-gone:
			return
		case d, open := <-sub.Diffs():
			if !open {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			if cur, ok = s.sendNext(conn, cur, d); !ok {
				return
			}
		}
	}
}

// sendInitial sends a diff from since when it is diffable, else a snapshot.
func (s *Server) sendInitial(conn *websocket.Conn, since ir.Checksum, hasSince bool) (streamCursor, bool) {
	if hasSince {
		d, err := s.state.DiffSince(since)
		if err == nil {
			return streamCursor{tick: d.Tick, checksum: d.Checksum}, s.send(conn, MessageDiff, d)
		}
		s.logger.Debug("stream falling back to snapshot", zap.Stringer("since", since), zap.Error(err))
	}
	return s.sendSnapshot(conn)
}

func (s *Server) sendSnapshot(conn *websocket.Conn) (streamCursor, bool) {
	st := s.state.Snapshot()
	return streamCursor{tick: st.Tick, checksum: st.Checksum}, s.send(conn, MessageSnapshot, st)
}

// sendNext forwards d when it extends the client's chain. A gap (dropped
// broadcasts) is bridged with a fresh diff from the store; if that fails
// the client gets a snapshot.
func (s *Server) sendNext(conn *websocket.Conn, cur streamCursor, d world.Diff) (streamCursor, bool) {
	if d.Tick <= cur.tick {
		return cur, true
	}
	if d.Base == cur.checksum {
		return streamCursor{tick: d.Tick, checksum: d.Checksum}, s.send(conn, MessageDiff, d)
	}

	bridge, err := s.state.DiffSince(cur.checksum)
	if err != nil {
		return s.sendSnapshot(conn)
	}
	if bridge.Tick <= cur.tick {
		return cur, true
	}
	return streamCursor{tick: bridge.Tick, checksum: bridge.Checksum}, s.send(conn, MessageDiff, bridge)
}

func (s *Server) send(conn *websocket.Conn, typ string, data any) bool {
	payload, err := json.Marshal(StreamMessage{Type: typ, Data: data})
	if err != nil {
		s.logger.Error("stream marshal failed", zap.Error(err))
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.logger.Debug("stream write failed", zap.Error(err))
		return false
	}
	return true
}
