// internal/transport/socket.go
package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mafia-live/syncengine/internal/protocol"
)

const (
	writeTimeout    = 3 * time.Second
	dialTimeout     = 10 * time.Second
	minReconnectGap = time.Second
	maxReconnectGap = 30 * time.Second
)

// Socket is the websocket implementation of Transport. It dials the game
// server, decodes inbound frames into typed events, and redials with doubling
// backoff after an unexpected close. A manual Connect supersedes any
// scheduled redial.
type Socket struct {
	url string
	log *logrus.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	handlers       map[protocol.EventType]Handler
	connected      bool
	closing        bool
	attempts       int
	dialGen        int
	reconnectTimer *time.Timer
	cancelRead     context.CancelFunc

	// OnConnected fires after a successful (re)dial, before any events are
	// delivered. OnDisconnected fires when the read loop exits unexpectedly.
	OnConnected    func()
	OnDisconnected func(err error)

	// Gauges, when set, feeds the pending/resync fields of ConnectionState.
	Gauges func() (pendingActions int, isResyncing bool)
}

// NewSocket builds a transport for the given websocket URL.
func NewSocket(url string, log *logrus.Logger) *Socket {
	if log == nil {
		log = logrus.New()
	}
	return &Socket{
		url:      url,
		log:      log,
		handlers: make(map[protocol.EventType]Handler),
	}
}

// Connect dials the server. Any scheduled backoff redial is superseded.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.closing = false
	s.dialGen++
	gen := s.dialGen
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{
		Subprotocols: []string{"game"},
	})
	if err != nil {
		s.mu.Lock()
		s.attempts++
		onDisconnected := s.OnDisconnected
		s.mu.Unlock()
		// A failed dial is a disconnect too; the UI banner needs the error
		// whether the connection dropped or never came up.
		if onDisconnected != nil {
			onDisconnected(err)
		}
		s.scheduleReconnect(gen)
		return err
	}

	s.mu.Lock()
	if gen != s.dialGen || s.closing {
		// A newer Connect or a Disconnect raced us; this dial lost.
		s.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "superseded")
		return nil
	}
	if s.conn != nil {
		s.conn.Close(websocket.StatusGoingAway, "replaced by new connection")
	}
	s.conn = conn
	s.connected = true
	s.attempts = 0
	readCtx, cancelRead := context.WithCancel(context.Background())
	s.cancelRead = cancelRead
	onConnected := s.OnConnected
	s.mu.Unlock()

	s.log.WithField("url", s.url).Info("websocket connected")
	if onConnected != nil {
		onConnected()
	}
	go s.readLoop(readCtx, conn, gen)
	return nil
}

// Disconnect closes the connection and stops any pending redial.
func (s *Socket) Disconnect() error {
	s.mu.Lock()
	s.closing = true
	s.connected = false
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.cancelRead != nil {
		s.cancelRead()
		s.cancelRead = nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// Emit encodes an outbound action and writes it with a timeout.
func (s *Socket) Emit(event string, payload interface{}) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	data, err := protocol.EncodeAction(event, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// On registers the handler for an event type, replacing any prior one.
func (s *Socket) On(event protocol.EventType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// Off removes the handler for an event type.
func (s *Socket) Off(event protocol.EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// IsConnected reports whether a live connection exists.
func (s *Socket) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ConnectionState snapshots the transport status for the UI.
func (s *Socket) ConnectionState() ConnectionState {
	s.mu.Lock()
	st := ConnectionState{
		Connected:         s.connected,
		ReconnectAttempts: s.attempts,
	}
	gauges := s.Gauges
	s.mu.Unlock()

	if gauges != nil {
		st.PendingActions, st.IsResyncing = gauges()
	}
	return st
}

// readLoop reads frames until the connection dies, dispatching each decoded
// event to its handler one at a time, in arrival order.
func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				strings.Contains(err.Error(), "context canceled") {
				s.log.Info("websocket closed")
			} else {
				s.log.WithError(err).Warn("websocket read failed")
			}
			s.handleReadExit(err, gen)
			return
		}
		if msgType != websocket.MessageText {
			s.log.WithField("msg_type", msgType).Warn("ignoring non-text frame")
			continue
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			s.log.WithError(err).Warn("dropping undecodable server event")
			continue
		}

		s.mu.Lock()
		h := s.handlers[ev.EventType()]
		s.mu.Unlock()
		if h == nil {
			s.log.WithField("type", ev.EventType()).Debug("no handler registered for event")
			continue
		}
		h(ev)
	}
}

func (s *Socket) handleReadExit(err error, gen int) {
	s.mu.Lock()
	if gen != s.dialGen {
		// A newer connection already took over.
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.conn = nil
	closing := s.closing
	onDisconnected := s.OnDisconnected
	s.mu.Unlock()

	if closing {
		return
	}
	if onDisconnected != nil {
		onDisconnected(err)
	}
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
	s.scheduleReconnect(gen)
}

// scheduleReconnect arms a redial timer with doubling backoff, capped.
func (s *Socket) scheduleReconnect(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing || gen != s.dialGen {
		return
	}
	delay := minReconnectGap << uint(s.attempts-1)
	if delay > maxReconnectGap || delay <= 0 {
		delay = maxReconnectGap
	}
	s.log.WithFields(logrus.Fields{
		"attempt": s.attempts,
		"delay":   delay,
	}).Info("scheduling websocket redial")
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.AfterFunc(delay, func() {
		if err := s.Connect(context.Background()); err != nil {
			s.log.WithError(err).Warn("redial failed")
		}
	})
}
