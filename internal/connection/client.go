package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/unifyhq/botsync/internal/eventloop"
)

// WSTransport opens websocket sessions and posts their callbacks to a loop.
type WSTransport struct {
	cfg    WSConfig
	loop   *eventloop.Loop
	logger *slog.Logger
	dialer *websocket.Dialer
}

// NewWSTransport creates a websocket transport.
func NewWSTransport(cfg WSConfig, loop *eventloop.Loop, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}

	return &WSTransport{
		cfg:    cfg,
		loop:   loop,
		logger: logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Open starts dialing in the background and returns immediately.
func (t *WSTransport) Open(token string, h Handler) Session {
	s := &wsSession{
		id:      uuid.NewString(),
		cfg:     t.cfg,
		loop:    t.loop,
		handler: h,
		dialer:  t.dialer,
		done:    make(chan struct{}),
	}
	s.logger = t.logger.With("session", s.id)

	go s.run(token)
	return s
}

// wsSession is a single websocket session.
type wsSession struct {
	id      string
	cfg     WSConfig
	loop    *eventloop.Loop
	handler Handler
	dialer  *websocket.Dialer
	logger  *slog.Logger

	// Serializes data frames; control frames are safe concurrently.
	writeMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

func (s *wsSession) run(token string) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if s.isClosed() {
			return
		}
		err = handshakeError(resp, err)
		s.logger.Warn("websocket handshake failed", "url", s.cfg.URL, "error", err)
		s.loop.Post(func() { s.handler.OnOpenError(err) })
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

	// Server ping: answer with pong and extend the deadline.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// Reply to our ping.
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	s.logger.Debug("websocket connected", "url", s.cfg.URL)
	s.loop.Post(s.handler.OnOpen)

	go s.heartbeatLoop(conn)
	s.readLoop(conn)
}

// readLoop decodes frames until the connection fails, then reports the
// close reason.
func (s *wsSession) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			reason := s.classifyReadErr(err)
			s.logger.Debug("websocket closed", "reason", reason, "error", err)
			s.shutdown()
			s.loop.Post(func() { s.handler.OnClose(reason) })
			return
		}

		conn.SetReadDeadline(receivedAt.Add(s.cfg.ReadTimeout))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			s.logger.Warn("dropping undecodable frame", "error", err, "size", len(data))
			continue
		}

		s.loop.Post(func() { s.handler.OnEvent(frame.Event, frame.Data, receivedAt) })
	}
}

// heartbeatLoop sends control pings so the server keeps the session alive.
func (s *wsSession) heartbeatLoop(conn *websocket.Conn) {
	if s.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

// Emit writes a named frame.
func (s *wsSession) Emit(event string, payload any) error {
	frame := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event, err)
		}
		frame.Data = data
	}

	msg, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	s.mu.Lock()
	conn, closed := s.conn, s.closed
	s.mu.Unlock()

	if closed {
		return ErrAlreadyClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// Close sends a normal close frame and tears the connection down.
func (s *wsSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })

	if conn == nil {
		return nil
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

// shutdown releases the connection after a read failure.
func (s *wsSession) shutdown() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })
	if conn != nil {
		conn.Close()
	}
}

func (s *wsSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// classifyReadErr maps a read failure to a close reason.
func (s *wsSession) classifyReadErr(err error) CloseReason {
	if s.isClosed() {
		return ReasonClientDisconnect
	}
	return classifyReadErr(err)
}

func classifyReadErr(err error) CloseReason {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return ReasonServerDisconnect
		case websocket.CloseAbnormalClosure:
			return ReasonTransportClose
		}
		return CloseReason(fmt.Sprintf("close %d", closeErr.Code))
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed) {
		return ReasonTransportClose
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonPingTimeout
	}

	return ReasonTransportError
}

// handshakeError wraps a dial failure. Auth rejections keep the status text.
func handshakeError(resp *http.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: unauthorized (%s)", ErrHandshakeFailed, resp.Status)
		}
		return fmt.Errorf("%w: %s: %w", ErrHandshakeFailed, resp.Status, err)
	}
	return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
}
