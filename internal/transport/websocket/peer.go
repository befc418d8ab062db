package websocket

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 16
)

// peer is one admitted connection. It is the player's outbox: Send never blocks and a
// single writer goroutine drains the queue in order.
type peer struct {
	logger *slog.Logger
	conn   *websocket.Conn
	player entity.Player

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newPeer(logger *slog.Logger, conn *websocket.Conn, player entity.Player) *peer {
	return &peer{
		logger: logger.With("component", "peer", "player_id", player.ID),
		conn:   conn,
		player: player,
		send:   make(chan []byte, sendBufferSize),
	}
}

func (that *peer) Send(event protocol.Event) error {
	data, err := protocol.Encode(event)
	if err != nil {
		return err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return apperror.ErrNotOpen
	}

	select {
	case that.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: send buffer is full", apperror.ErrTransport)
	}
}

func (that *peer) close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	that.closed = true
	close(that.send)
}

// writePump flushes queued events and pings. It sends a normal close frame once the
// queue is closed, after the last queued event.
func (that *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = that.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				return
			}

			if err := that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				that.logger.Warn("failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
