package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// session is the server-side record of one connected observer: its socket,
// subscribed rooms, and FIFO outbound queue. One writer goroutine per session
// keeps delivery ordered per session while fan-out stays concurrent across
// sessions. Never shared across connections.
type session struct {
	id     uuid.UUID
	conn   *websocket.Conn
	logger *slog.Logger
	out    *Queue[[]byte]

	roomsMu sync.RWMutex
	rooms   map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn, queueInitial, queueMax int, logger *slog.Logger) *session {
	id := uuid.New()
	return &session{
		id:     id,
		conn:   conn,
		logger: logger.With("session", id.String()),
		out:    NewQueue[[]byte](queueInitial, queueMax),
		rooms:  make(map[string]struct{}),
		done:   make(chan struct{}),
	}
}

func (s *session) join(room string) {
	s.roomsMu.Lock()
	s.rooms[room] = struct{}{}
	s.roomsMu.Unlock()
}

func (s *session) leave(room string) {
	s.roomsMu.Lock()
	delete(s.rooms, room)
	s.roomsMu.Unlock()
}

func (s *session) inRoom(room string) bool {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// writeLoop drains the outbound queue onto the socket in FIFO order.
func (s *session) writeLoop(writeTimeout time.Duration) {
	for {
		data, ok := s.out.Pop()
		if !ok {
			return
		}
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("session write failed", "error", err)
			s.close()
			return
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.out.Close()
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.conn.Close()
	})
}
