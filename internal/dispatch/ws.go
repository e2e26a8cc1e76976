package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// WSSession pumps feed events to one connected client. Writes are serialized
// through the session mutex; reads are drained only to detect the peer
// closing.
type WSSession struct {
	conn   *websocket.Conn
	sub    *Subscription
	logger *slog.Logger
	mu     sync.Mutex
}

func NewWSSession(conn *websocket.Conn, sub *Subscription, logger *slog.Logger) *WSSession {
	return &WSSession{conn: conn, sub: sub, logger: logger}
}

// Run blocks until the subscription is cancelled or the connection drops.
// The subscription is always cancelled before Run returns, so a dead socket
// never keeps receiving dispatch events.
func (s *WSSession) Run() {
	defer s.sub.Cancel()
	defer s.conn.Close()

	go s.drainReads()

	for ev := range s.sub.C {
		s.mu.Lock()
		err := s.conn.WriteJSON(ev)
		s.mu.Unlock()
		if err != nil {
			s.logger.Debug("ws send failed, dropping session", "error", err)
			return
		}
	}
}

// drainReads consumes client frames so control messages are processed and a
// closed peer is noticed promptly.
func (s *WSSession) drainReads() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.sub.Cancel()
			return
		}
	}
}
