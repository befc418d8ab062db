package connection

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
)

const waitTimeout = 2 * time.Second

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// peer is a game server stand-in that accepts one websocket per test.
type peer struct {
	server *httptest.Server
	conns  chan *websocket.Conn
	tokens chan string
}

func newPeer(t *testing.T) *peer {
	t.Helper()

	p := &peer{
		conns:  make(chan *websocket.Conn, 1),
		tokens: make(chan string, 1),
	}

	upgrader := websocket.Upgrader{}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		t.Cleanup(func() { _ = conn.Close() })

		p.tokens <- r.URL.Query().Get("token")
		p.conns <- conn
	}))
	t.Cleanup(p.server.Close)

	return p
}

func (that *peer) endpoint() string {
	return "ws" + strings.TrimPrefix(that.server.URL, "http") + "/game/ws"
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for value")
		return *new(T)
	}
}

// openManager opens a manager against the peer and waits until both ends are connected.
func openManager(t *testing.T, p *peer, manager *Manager) *websocket.Conn {
	t.Helper()

	opened := make(chan struct{}, 1)
	manager.OnOpen(func() { opened <- struct{}{} })

	require.NoError(t, manager.Open(context.Background(), p.endpoint(), "tok-1"))
	t.Cleanup(manager.Close)

	conn := receive(t, p.conns)
	receive(t, opened)

	return conn
}

func TestManager_Open(t *testing.T) {
	t.Run("Passes the token as query parameter and reaches open", func(t *testing.T) {
		// Given: a listening peer
		p := newPeer(t)
		manager := New(testLogger)
		assert.Equal(t, StateIdle, manager.State())

		// When: the manager is opened
		openManager(t, p, manager)

		// Then: the peer saw the token and the manager is open
		assert.Equal(t, "tok-1", receive(t, p.tokens))
		assert.Equal(t, StateOpen, manager.State())
	})

	t.Run("Second Open is refused", func(t *testing.T) {
		p := newPeer(t)
		manager := New(testLogger)
		openManager(t, p, manager)

		err := manager.Open(context.Background(), p.endpoint(), "tok-2")

		assert.ErrorIs(t, err, ErrAlreadyOpened)
	})

	t.Run("Rejected upgrade reports an abnormal close", func(t *testing.T) {
		// Given: a server that refuses the upgrade
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(server.Close)

		manager := New(testLogger)
		errs := make(chan error, 1)
		closes := make(chan CloseInfo, 1)
		manager.OnError(func(err error) { errs <- err })
		manager.OnClose(func(info CloseInfo) { closes <- info })

		// When: the manager tries to connect
		require.NoError(t, manager.Open(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), "tok"))

		// Then: a transport error and an abnormal close are reported
		assert.ErrorIs(t, receive(t, errs), apperror.ErrTransport)
		assert.False(t, receive(t, closes).Clean)
		assert.Equal(t, StateClosed, manager.State())
	})
}

func TestManager_Send(t *testing.T) {
	t.Run("Rejected before the connection is open", func(t *testing.T) {
		// Given: a manager that was never opened
		manager := New(testLogger)

		// When: a move intent is sent
		err := manager.Send(protocol.NewMoveIntent(1, 0, 0))

		// Then: it is rejected rather than buffered
		require.ErrorIs(t, err, apperror.ErrNotOpen)
		assert.Empty(t, manager.send)
	})

	t.Run("Delivers encoded events in order", func(t *testing.T) {
		// Given: an open connection
		p := newPeer(t)
		manager := New(testLogger)
		conn := openManager(t, p, manager)

		// When: two intents are sent
		require.NoError(t, manager.Send(protocol.NewMoveIntent(5, 0, 1)))
		require.NoError(t, manager.Send(protocol.NewMoveIntent(5, 2, 2)))

		// Then: the peer reads them in the same order
		for _, want := range []string{
			`{"type":"GAME_MOVE","game_id":5,"row":0,"col":1}`,
			`{"type":"GAME_MOVE","game_id":5,"row":2,"col":2}`,
		} {
			_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
			_, data, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.JSONEq(t, want, string(data))
		}
	})

	t.Run("Out of domain event fails to encode", func(t *testing.T) {
		p := newPeer(t)
		manager := New(testLogger)
		openManager(t, p, manager)

		err := manager.Send(protocol.NewMoveIntent(0, 1, 1))

		assert.ErrorIs(t, err, apperror.ErrEncoding)
	})
}

func TestManager_Dispatch(t *testing.T) {
	t.Run("Handlers run in arrival order and malformed messages are skipped", func(t *testing.T) {
		// Given: handlers for every event type
		p := newPeer(t)
		manager := New(testLogger)
		received := make(chan protocol.Event, 8)

		manager.OnStart(func(event protocol.GameStart) { received <- event })
		manager.OnMove(func(event protocol.GameMove) { received <- event })
		manager.OnEnd(func(event protocol.GameEnd) { received <- event })

		conn := openManager(t, p, manager)

		// When: the peer sends a malformed message followed by three valid ones
		for _, msg := range []string{
			`{"type":"GAME_START","game_id":1`,
			`{"type":"GAME_START","game_id":1,"player1":{"id":10,"username":"a"},"player2":{"id":11,"username":"b"},"turn":10}`,
			`{"type":"GAME_MOVE","game_id":1,"row":0,"col":0,"player_id":10,"turn":11}`,
			`{"type":"GAME_END","game_id":1,"winner_id":10,"player1":{"id":10,"username":"a"},"player2":{"id":11,"username":"b"}}`,
		} {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		}

		// Then: only the valid ones reach the handlers, in order
		assert.Equal(t, protocol.TypeGameStart, receive(t, received).Type())
		assert.Equal(t, protocol.NewMove(1, 10, 11, 0, 0), receive(t, received))
		assert.Equal(t, protocol.TypeGameEnd, receive(t, received).Type())
		assert.Equal(t, StateOpen, manager.State())
	})

	t.Run("Last registration wins", func(t *testing.T) {
		// Given: two handlers registered for the same type
		p := newPeer(t)
		manager := New(testLogger)
		first := make(chan protocol.GameMove, 1)
		second := make(chan protocol.GameMove, 1)

		manager.OnMove(func(event protocol.GameMove) { first <- event })
		manager.OnMove(func(event protocol.GameMove) { second <- event })

		conn := openManager(t, p, manager)

		// When: a move arrives
		msg := `{"type":"GAME_MOVE","game_id":1,"row":1,"col":1,"player_id":10,"turn":11}`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

		// Then: only the latest handler runs
		receive(t, second)
		assert.Empty(t, first)
	})
}

func TestManager_Close(t *testing.T) {
	t.Run("Peer close frame is a clean close", func(t *testing.T) {
		// Given: an open connection
		p := newPeer(t)
		manager := New(testLogger)
		closes := make(chan CloseInfo, 1)
		manager.OnClose(func(info CloseInfo) { closes <- info })
		conn := openManager(t, p, manager)

		// When: the peer closes with an application code
		msg := websocket.FormatCloseMessage(4001, "Invalid token")
		require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(waitTimeout)))

		// Then: the close is clean and carries code and reason
		info := receive(t, closes)
		assert.True(t, info.Clean)
		assert.Equal(t, 4001, info.Code)
		assert.Equal(t, "Invalid token", info.Reason)
		assert.Equal(t, StateClosed, manager.State())
	})

	t.Run("Dropped transport is an abnormal close", func(t *testing.T) {
		// Given: an open connection
		p := newPeer(t)
		manager := New(testLogger)
		closes := make(chan CloseInfo, 1)
		errs := make(chan error, 1)
		manager.OnClose(func(info CloseInfo) { closes <- info })
		manager.OnError(func(err error) { errs <- err })
		conn := openManager(t, p, manager)

		// When: the peer drops the TCP connection without a close frame
		require.NoError(t, conn.UnderlyingConn().Close())

		// Then: an error is signalled and the close is not clean
		assert.ErrorIs(t, receive(t, errs), apperror.ErrTransport)
		assert.False(t, receive(t, closes).Clean)
	})

	t.Run("Local close stops the connection", func(t *testing.T) {
		// Given: an open connection
		p := newPeer(t)
		manager := New(testLogger)
		closes := make(chan CloseInfo, 2)
		manager.OnClose(func(info CloseInfo) { closes <- info })
		conn := openManager(t, p, manager)

		// When: the client closes it twice
		manager.Close()
		manager.Close()

		// Then: one clean close is reported, the peer sees a normal closure and sends are refused
		assert.True(t, receive(t, closes).Clean)
		assert.Empty(t, closes)

		_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
		_, _, err := conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

		assert.ErrorIs(t, manager.Send(protocol.NewMoveIntent(1, 0, 0)), apperror.ErrNotOpen)
		<-manager.Done()
	})
}
