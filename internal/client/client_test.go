package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/connection"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
)

const waitTimeout = 2 * time.Second

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockHandshake struct {
	mock.Mock
}

func (that *mockHandshake) ExchangeToken(ctx context.Context, credential string) (string, error) {
	args := that.Called(ctx, credential)
	return args.String(0), args.Error(1)
}

// fakeTransport stands in for the connection manager; the test plays the server.
type fakeTransport struct {
	onStart func(protocol.GameStart)
	onMove  func(protocol.GameMove)
	onEnd   func(protocol.GameEnd)
	onClose func(connection.CloseInfo)

	tokens chan string
	sent   chan protocol.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		tokens: make(chan string, 1),
		sent:   make(chan protocol.Event, 8),
	}
}

func (that *fakeTransport) Open(_ context.Context, _, token string) error {
	that.tokens <- token
	return nil
}

func (that *fakeTransport) Send(event protocol.Event) error {
	that.sent <- event
	return nil
}

func (that *fakeTransport) Close() {}

func (that *fakeTransport) OnStart(handler func(protocol.GameStart)) { that.onStart = handler }
func (that *fakeTransport) OnMove(handler func(protocol.GameMove))   { that.onMove = handler }
func (that *fakeTransport) OnEnd(handler func(protocol.GameEnd))     { that.onEnd = handler }

func (that *fakeTransport) OnClose(handler func(connection.CloseInfo)) { that.onClose = handler }

// syncBuffer collects output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (that *syncBuffer) Write(p []byte) (int, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.buf.Write(p)
}

func (that *syncBuffer) String() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.buf.String()
}

type runResult struct {
	final entity.Session
	err   error
}

func runClient(client *Client) <-chan runResult {
	results := make(chan runResult, 1)

	go func() {
		final, err := client.Run(context.Background())
		results <- runResult{final: final, err: err}
	}()

	return results
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

func gameStart() protocol.GameStart {
	return protocol.GameStart{GameID: 1, Player1: alice, Player2: bob, Turn: alice.ID}
}

func TestClient_Run(t *testing.T) {
	t.Run("Auth failure stops before connecting", func(t *testing.T) {
		// Given: a handshake that refuses the credential
		handshake := &mockHandshake{}
		handshake.On("ExchangeToken", mock.Anything, "bad").Return("", apperror.ErrAuth).Once()
		conn := newFakeTransport()

		client := New(testLogger, handshake, conn, Options{Credential: "bad", PlayerID: alice.ID})

		// When: the client runs
		_, err := client.Run(context.Background())

		// Then: ErrAuth surfaces and no connection is attempted
		require.ErrorIs(t, err, apperror.ErrAuth)
		assert.Empty(t, conn.tokens)
		handshake.AssertExpectations(t)
	})

	t.Run("Bot plays its turn and the game result is returned", func(t *testing.T) {
		// Given: a bot client for alice
		handshake := &mockHandshake{}
		handshake.On("ExchangeToken", mock.Anything, "cred").Return("ws-1", nil).Once()
		conn := newFakeTransport()
		out := &syncBuffer{}

		strategy, err := NewStrategy(StrategySmart, rand.New(rand.NewSource(1)))
		require.NoError(t, err)

		client := New(testLogger, handshake, conn, Options{
			Credential: "cred",
			PlayerID:   alice.ID,
			Strategy:   strategy,
			Output:     out,
		})

		results := runClient(client)
		assert.Equal(t, "ws-1", receive(t, conn.tokens))

		// When: the server starts the game with alice to move
		conn.onStart(gameStart())

		// Then: the bot sends an intent for the centre
		assert.Equal(t, protocol.NewMoveIntent(1, 1, 1), receive(t, conn.sent))

		// When: the server confirms it and ends the game
		conn.onMove(protocol.NewMove(1, alice.ID, bob.ID, 1, 1))
		winner := alice.ID
		conn.onEnd(protocol.GameEnd{GameID: 1, WinnerID: &winner, Player1: alice, Player2: bob})

		// Then: Run returns the finished session
		result := receive(t, results)
		require.NoError(t, result.err)
		assert.Equal(t, alice.ID, result.final.Winner)
		assert.Equal(t, alice.ID, result.final.Board[1][1])
		assert.Contains(t, out.String(), "you won")
	})

	t.Run("Typed moves go through the validator", func(t *testing.T) {
		// Given: a human client for alice reading from a pipe
		handshake := &mockHandshake{}
		handshake.On("ExchangeToken", mock.Anything, "cred").Return("ws-1", nil).Once()
		conn := newFakeTransport()
		out := &syncBuffer{}
		input, typist := io.Pipe()
		t.Cleanup(func() { _ = typist.Close() })

		client := New(testLogger, handshake, conn, Options{
			Credential: "cred",
			PlayerID:   alice.ID,
			Input:      input,
			Output:     out,
		})

		results := runClient(client)
		receive(t, conn.tokens)
		conn.onStart(gameStart())

		// When: alice types an off-board cell and then a valid one
		_, err := io.WriteString(typist, "5 5\n")
		require.NoError(t, err)
		_, err = io.WriteString(typist, "0 2\n")
		require.NoError(t, err)

		// Then: only the valid move is sent and the rejection is shown
		assert.Equal(t, protocol.NewMoveIntent(1, 0, 2), receive(t, conn.sent))
		assert.Contains(t, out.String(), "move rejected")

		conn.onEnd(protocol.GameEnd{GameID: 1, Player1: alice, Player2: bob})
		result := receive(t, results)
		require.NoError(t, result.err)
		assert.True(t, result.final.IsDraw())
	})

	t.Run("Dropped connection freezes the last state", func(t *testing.T) {
		// Given: a running game with one confirmed move
		handshake := &mockHandshake{}
		handshake.On("ExchangeToken", mock.Anything, "cred").Return("ws-1", nil).Once()
		conn := newFakeTransport()

		client := New(testLogger, handshake, conn, Options{Credential: "cred", PlayerID: bob.ID})

		results := runClient(client)
		receive(t, conn.tokens)
		conn.onStart(gameStart())
		conn.onMove(protocol.NewMove(1, alice.ID, bob.ID, 0, 0))

		// When: the connection drops
		conn.onClose(connection.CloseInfo{Code: 1006})

		// Then: a transport error comes back with the last known state
		result := receive(t, results)
		require.ErrorIs(t, result.err, apperror.ErrTransport)
		assert.Equal(t, entity.PhasePlaying, result.final.Phase)
		assert.Equal(t, alice.ID, result.final.Board[0][0])
	})
}

func TestClient_Move(t *testing.T) {
	t.Run("Off-board cell is a validation error", func(t *testing.T) {
		client := New(testLogger, &mockHandshake{}, newFakeTransport(), Options{PlayerID: alice.ID})

		err := client.Move(-1, 4)

		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("Move without a session", func(t *testing.T) {
		client := New(testLogger, &mockHandshake{}, newFakeTransport(), Options{PlayerID: alice.ID})

		err := client.Move(0, 0)

		assert.ErrorIs(t, err, apperror.ErrNoActiveSession)
	})
}
