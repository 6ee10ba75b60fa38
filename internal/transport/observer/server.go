package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"hordestream.ai/internal/observerproto"
	"hordestream.ai/internal/sim/spatial"
)

// Feed is the engine surface the observer socket needs.
type Feed interface {
	Subscribe(sessionID string, out chan []byte) bool
	Unsubscribe(sessionID string) bool
	SetObserver(p spatial.Vec3)
}

type Options struct {
	// PositionRate is the sustained POSITION messages per second per connection.
	PositionRate  float64
	PositionBurst int
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool
}

type Server struct {
	feed Feed
	log  *log.Logger
	opts Options

	upgrader websocket.Upgrader

	sessions        atomic.Int64
	positionsDrop   atomic.Uint64
	positionsAccept atomic.Uint64
}

type Stats struct {
	Sessions        int64  `json:"sessions"`
	PositionsAccept uint64 `json:"positions_accepted"`
	PositionsDrop   uint64 `json:"positions_dropped"`
}

func NewServer(f Feed, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if opts.PositionRate <= 0 {
		opts.PositionRate = 60
	}
	if opts.PositionBurst <= 0 {
		opts.PositionBurst = 10
	}
	return &Server{
		feed: f,
		log:  logger,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback gate below
		},
	}
}

func (s *Server) Stats() Stats {
	return Stats{
		Sessions:        s.sessions.Load(),
		PositionsAccept: s.positionsAccept.Load(),
		PositionsDrop:   s.positionsDrop.Load(),
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		sid := sub.SessionID
		if sid == "" {
			sid = uuid.NewString()
		}
		tickOut := make(chan []byte, 8)
		ctlOut := make(chan []byte, 8)
		if !s.feed.Subscribe(sid, tickOut) {
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		s.sessions.Add(1)
		defer func() {
			s.sessions.Add(-1)
			s.feed.Unsubscribe(sid)
		}()
		s.log.Printf("observer %s subscribed drive=%v from %s", sid, sub.Drive, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b = <-ctlOut:
				case b = <-tickOut:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		lim := rate.NewLimiter(rate.Limit(s.opts.PositionRate), s.opts.PositionBurst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var pos observerproto.PositionMsg
			if err := json.Unmarshal(msg, &pos); err != nil || pos.Type != observerproto.TypePosition {
				continue
			}
			if !sub.Drive {
				sendCtl(ctlOut, "not_driver", "session did not subscribe with drive")
				continue
			}
			if !lim.Allow() {
				s.positionsDrop.Add(1)
				continue
			}
			p := spatial.Vec3{X: pos.Pos[0], Y: pos.Pos[1], Z: pos.Pos[2]}
			if !p.Finite() {
				sendCtl(ctlOut, "bad_position", "position must be finite")
				continue
			}
			s.positionsAccept.Add(1)
			s.feed.SetObserver(p)
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func sendCtl(out chan []byte, code, message string) {
	b, err := json.Marshal(observerproto.ErrorMsg{Type: observerproto.TypeError, Code: code, Message: message})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
