// internal/handlers/ws_sink.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/overture-games/mandate/internal/protocol"
)

const (
	outboxSize   = 256
	writeTimeout = 3 * time.Second
)

// wsSink adapts a websocket connection to the room.Sink interface. Send
// never blocks: envelopes go onto a buffered outbox drained by a write pump
// goroutine, and a client that cannot keep up gets its connection closed.
type wsSink struct {
	log    *logrus.Logger
	conn   *websocket.Conn
	outbox chan *protocol.Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSSink(log *logrus.Logger, conn *websocket.Conn) *wsSink {
	s := &wsSink{
		log:    log,
		conn:   conn,
		outbox: make(chan *protocol.Envelope, outboxSize),
		closed: make(chan struct{}),
	}
	go s.writePump()
	return s
}

// Send enqueues an envelope for delivery. If the outbox is full the
// connection is torn down; the client can reconnect and resume.
func (s *wsSink) Send(env *protocol.Envelope) {
	select {
	case <-s.closed:
	case s.outbox <- env:
	default:
		s.log.Warn("ws outbox full, closing connection")
		s.closeOnce.Do(func() {
			close(s.closed)
			s.conn.Close(OutboxOverflowError, "client too slow")
		})
	}
}

// CloseNow tears the connection down immediately.
func (s *wsSink) CloseNow() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close(websocket.StatusNormalClosure, "closed by server")
	})
}

func (s *wsSink) writePump() {
	for {
		select {
		case <-s.closed:
			return
		case env := <-s.outbox:
			data, err := protocol.Encode(env)
			if err != nil {
				s.log.Errorf("encode envelope: %v", err)
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err = s.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				// The read loop notices the broken connection and handles
				// session cleanup; the pump just stops writing.
				s.log.Debugf("ws write failed: %v", err)
				return
			}
		}
	}
}
