// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/overture-games/mandate/internal/protocol"
	"github.com/overture-games/mandate/internal/room"
)

// Subprotocol is the WebSocket subprotocol clients must negotiate.
const Subprotocol = "mandate"

// helloTimeout bounds how long a fresh connection may sit silent before
// sending HELLO.
const helloTimeout = 10 * time.Second

// Server bundles the shared state the HTTP handlers need.
type Server struct {
	Log     *logrus.Logger
	Manager *room.Manager
}

// NewServer constructs the handler state around an existing room manager.
func NewServer(log *logrus.Logger, mgr *room.Manager) *Server {
	return &Server{Log: log, Manager: mgr}
}

// HealthHandler reports liveness for load balancers and probes.
func (srv *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol_version":%q}`, protocol.Version)
}

// WSHandler upgrades the HTTP connection to WebSocket, performs the HELLO
// handshake, and then routes envelopes into the room manager until the
// connection drops.
func (srv *Server) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			srv.Log.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the mandate subprotocol")
			return
		}
		srv.Log.Infof("WebSocket connection established from %s", r.RemoteAddr)

		sink := newWSSink(srv.Log, c)
		s := srv.Manager.Attach(sink)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		srv.readLoop(ctx, c, sink, s)

		srv.Log.Infof("session %s read loop exited", s.ID)
		srv.Manager.Detach(s)
		sink.CloseNow()
	}
}

// writeDirect sends one frame on the connection itself, bypassing the sink
// outbox.
func (srv *Server) writeDirect(ctx context.Context, c *websocket.Conn, env *protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		srv.Log.Errorf("encode envelope: %v", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.Write(wctx, websocket.MessageText, data); err != nil {
		srv.Log.Debugf("ws write failed: %v", err)
	}
}

// readLoop blocks reading client messages. The first message must be HELLO;
// after that, INTENT, PING and PONG are accepted.
func (srv *Server) readLoop(ctx context.Context, c *websocket.Conn, sink *wsSink, s *room.Session) {
	helloed := false

	for {
		readCtx := ctx
		var cancel context.CancelFunc
		if !helloed {
			readCtx, cancel = context.WithTimeout(ctx, helloTimeout)
		}
		_, data, err := c.Read(readCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if !helloed && errors.Is(err, context.DeadlineExceeded) {
				c.Close(HandshakeTimeoutError, "no HELLO received")
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrVersionMismatch) {
				// Written on the connection directly so the frame is on the
				// wire before the close, not parked in the outbox.
				srv.writeDirect(ctx, c, protocol.NewVersionMismatchError(env.ProtocolVersion))
				c.Close(ProtocolVersionError, "unsupported protocol version")
				return
			}
			sink.Send(protocol.NewError(protocol.ErrCodeParse, "malformed envelope"))
			continue
		}

		if !helloed {
			if env.Op != protocol.OpHello {
				sink.Send(protocol.NewError(protocol.ErrCodeUnknownOp, "HELLO must be the first message"))
				c.Close(websocket.StatusPolicyViolation, "handshake required")
				return
			}
			srv.Manager.HandleHello(s, env)
			helloed = true
			continue
		}

		switch env.Op {
		case protocol.OpHello:
			// Repeated HELLO on an established connection is a no-op.
		case protocol.OpIntent:
			srv.Manager.HandleIntent(s, env)
		case protocol.OpPong:
			srv.Manager.HandlePong(s)
		case protocol.OpPing:
			sink.Send(protocol.NewPong())
		default:
			sink.Send(protocol.NewError(protocol.ErrCodeUnknownOp, string(env.Op)))
		}
	}
}
