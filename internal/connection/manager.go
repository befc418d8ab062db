// Package connection owns the client's websocket to the game server: it opens it with a
// connection token, dispatches decoded events to registered handlers and sends events back.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 16
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (that State) String() string {
	switch that {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseInfo describes how the connection ended.
// Clean is true for a graceful close by the peer or a local Close.
type CloseInfo struct {
	Clean  bool
	Code   int
	Reason string
	Err    error
}

var ErrAlreadyOpened = errors.New("connection was already opened")

type Manager struct {
	logger *slog.Logger
	dialer *websocket.Dialer

	mu       sync.RWMutex
	state    State
	closing  bool
	conn     *websocket.Conn
	handlers map[protocol.Type]func(protocol.Event)
	onOpen   func()
	onClose  func(CloseInfo)
	onError  func(error)

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func New(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger.With("component", "connection"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		handlers: make(map[protocol.Type]func(protocol.Event)),
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// Open starts dialing endpoint with token as the "token" query parameter and returns
// without waiting. Progress is reported through OnOpen, OnError and OnClose.
func (that *Manager) Open(ctx context.Context, endpoint, token string) error {
	target, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: invalid endpoint: %w", apperror.ErrTransport, err)
	}

	query := target.Query()
	query.Set("token", token)
	target.RawQuery = query.Encode()

	that.mu.Lock()
	if that.state != StateIdle {
		that.mu.Unlock()
		return ErrAlreadyOpened
	}
	that.state = StateConnecting
	that.mu.Unlock()

	go that.connect(ctx, target.String())

	return nil
}

// Send encodes the event and queues it for the writer. Events are rejected, not buffered,
// while the connection is not open.
func (that *Manager) Send(event protocol.Event) error {
	log := that.logger.With("method", "Send", "type", event.Type())

	if state := that.State(); state != StateOpen {
		log.Warn("dropping event, connection is not open", "state", state.String())
		return fmt.Errorf("%w: state %s", apperror.ErrNotOpen, state)
	}

	data, err := protocol.Encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	select {
	case that.send <- data:
		return nil
	default:
		log.Warn("dropping event, send buffer is full")
		return fmt.Errorf("%w: send buffer is full", apperror.ErrTransport)
	}
}

// Close ends the connection gracefully. Safe to call more than once.
func (that *Manager) Close() {
	that.mu.Lock()
	that.closing = true
	conn := that.conn
	state := that.state
	that.mu.Unlock()

	switch state {
	case StateOpen:
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
			that.logger.Debug("failed to write close frame", "error", err)
		}

		that.finish(CloseInfo{Clean: true, Code: websocket.CloseNormalClosure})
	case StateIdle:
		that.finish(CloseInfo{Clean: true})
	}
	// A connecting manager notices closing once the dial returns.
}

func (that *Manager) State() State {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.state
}

// Done is closed once the connection reaches StateClosed.
func (that *Manager) Done() <-chan struct{} {
	return that.done
}

// Handle registers the handler for one event type, replacing any earlier one.
func (that *Manager) Handle(eventType protocol.Type, handler func(protocol.Event)) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.handlers[eventType] = handler
}

func (that *Manager) OnStart(handler func(protocol.GameStart)) {
	that.Handle(protocol.TypeGameStart, func(event protocol.Event) {
		handler(event.(protocol.GameStart))
	})
}

func (that *Manager) OnMove(handler func(protocol.GameMove)) {
	that.Handle(protocol.TypeGameMove, func(event protocol.Event) {
		handler(event.(protocol.GameMove))
	})
}

func (that *Manager) OnEnd(handler func(protocol.GameEnd)) {
	that.Handle(protocol.TypeGameEnd, func(event protocol.Event) {
		handler(event.(protocol.GameEnd))
	})
}

func (that *Manager) OnOpen(handler func()) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.onOpen = handler
}

func (that *Manager) OnClose(handler func(CloseInfo)) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.onClose = handler
}

func (that *Manager) OnError(handler func(error)) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.onError = handler
}

func (that *Manager) connect(ctx context.Context, target string) {
	log := that.logger.With("method", "connect")

	conn, resp, err := that.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}

		err = fmt.Errorf("%w: dial failed: %w", apperror.ErrTransport, err)
		log.Error("failed to open connection", "error", err)
		that.reportError(err)
		that.finish(CloseInfo{Err: err})

		return
	}

	that.mu.Lock()
	if that.closing {
		that.mu.Unlock()
		_ = conn.Close()
		that.finish(CloseInfo{Clean: true})

		return
	}
	that.conn = conn
	that.state = StateOpen
	onOpen := that.onOpen
	that.mu.Unlock()

	log.Info("connection established")

	go that.writePump(conn)

	if onOpen != nil {
		onOpen()
	}

	that.readPump(conn)
}

// readPump decodes inbound messages and dispatches them in arrival order.
func (that *Manager) readPump(conn *websocket.Conn) {
	log := that.logger.With("method", "readPump")

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			that.finish(that.closeInfo(err))
			return
		}

		if that.State() != StateOpen {
			return
		}

		event, err := protocol.Decode(data)
		if err != nil {
			log.Warn("discarding inbound message", "error", err)
			continue
		}

		that.dispatch(event)
	}
}

func (that *Manager) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-that.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				that.reportError(fmt.Errorf("%w: write failed: %w", apperror.ErrTransport, err))
				_ = conn.Close()

				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				that.reportError(fmt.Errorf("%w: ping failed: %w", apperror.ErrTransport, err))
				_ = conn.Close()

				return
			}
		case <-that.done:
			return
		}
	}
}

func (that *Manager) dispatch(event protocol.Event) {
	that.mu.RLock()
	handler, ok := that.handlers[event.Type()]
	that.mu.RUnlock()

	if !ok {
		that.logger.Debug("no handler registered", "type", event.Type())
		return
	}

	handler(event)
}

func (that *Manager) closeInfo(err error) CloseInfo {
	that.mu.RLock()
	closing := that.closing
	that.mu.RUnlock()

	info := CloseInfo{Err: err, Clean: closing}

	// Any close frame from the peer, application codes included, completes the handshake.
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		info.Code = closeErr.Code
		info.Reason = closeErr.Text
		info.Clean = info.Clean || closeErr.Code != websocket.CloseAbnormalClosure
	}

	if !info.Clean {
		that.reportError(fmt.Errorf("%w: %w", apperror.ErrTransport, err))
	}

	return info
}

func (that *Manager) reportError(err error) {
	that.mu.RLock()
	onError := that.onError
	that.mu.RUnlock()

	if onError != nil {
		onError(err)
	}
}

// finish moves to StateClosed exactly once and reports how the connection ended.
func (that *Manager) finish(info CloseInfo) {
	that.closeOnce.Do(func() {
		that.mu.Lock()
		that.state = StateClosed
		conn := that.conn
		onClose := that.onClose
		that.mu.Unlock()

		close(that.done)

		if conn != nil {
			_ = conn.Close()
		}

		that.logger.Info("connection closed", "clean", info.Clean, "code", info.Code, "reason", info.Reason)

		if onClose != nil {
			onClose(info)
		}
	})
}
