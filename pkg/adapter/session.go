package adapter

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Session is one live transport bound to a single account. Sessions are
// replaced, never mutated: a reconnect produces a fresh Session and the old
// one is closed.
type Session struct {
	conn      *websocket.Conn
	inbound   bool
	openedAt  time.Time
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, inbound bool) *Session {
	return &Session{
		conn:     conn,
		inbound:  inbound,
		openedAt: time.Now(),
	}
}

// WriteJSON sends one JSON text frame. gorilla connections allow a single
// concurrent writer, so writes are serialized here.
func (s *Session) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears down the transport. Tolerates double close.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		s.conn.Close()
	})
}
