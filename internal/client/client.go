// Package client plays one game: it joins matchmaking, follows the session and submits moves
// typed by a person or picked by a bot strategy.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/connection"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/session"
)

type tokenExchanger interface {
	ExchangeToken(ctx context.Context, credential string) (string, error)
}

type transport interface {
	Open(ctx context.Context, endpoint, token string) error
	Send(event protocol.Event) error
	Close()
	OnStart(handler func(protocol.GameStart))
	OnMove(handler func(protocol.GameMove))
	OnEnd(handler func(protocol.GameEnd))
	OnClose(handler func(connection.CloseInfo))
}

type leaderboardSource interface {
	Run(ctx context.Context, fn func([]entity.LeaderboardEntry))
}

type Options struct {
	Endpoint   string
	Credential string
	PlayerID   int64

	// Strategy plays automatically when set; otherwise moves are read from Input as "row col" lines.
	Strategy Strategy
	Input    io.Reader
	Output   io.Writer

	Leaderboard leaderboardSource
}

// Client serialises inbound dispatch and local move intents with one mutex,
// so the state machine and validator only ever see one caller at a time.
type Client struct {
	logger    *slog.Logger
	handshake tokenExchanger
	conn      transport
	machine   *session.StateMachine
	validator *session.Validator
	opts      Options

	mu       sync.Mutex
	finished chan entity.Session
	closed   chan connection.CloseInfo
}

func New(logger *slog.Logger, handshake tokenExchanger, conn transport, opts Options) *Client {
	if opts.Output == nil {
		opts.Output = io.Discard
	}

	machine := session.NewStateMachine(logger)

	that := &Client{
		logger:    logger.With("component", "client", "player_id", opts.PlayerID),
		handshake: handshake,
		conn:      conn,
		machine:   machine,
		validator: session.NewValidator(logger, machine, conn, opts.PlayerID),
		opts:      opts,
		finished:  make(chan entity.Session, 1),
		closed:    make(chan connection.CloseInfo, 1),
	}

	machine.Subscribe(that.onSnapshot)

	conn.OnStart(func(event protocol.GameStart) { that.handle(event) })
	conn.OnMove(func(event protocol.GameMove) { that.handle(event) })
	conn.OnEnd(func(event protocol.GameEnd) { that.handle(event) })
	conn.OnClose(func(info connection.CloseInfo) {
		select {
		case that.closed <- info:
		default:
		}
	})

	return that
}

// Run plays a single game and returns its final state. When the connection drops first,
// the last known state is returned together with a transport error.
func (that *Client) Run(ctx context.Context) (entity.Session, error) {
	log := that.logger.With("method", "Run")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	token, err := that.handshake.ExchangeToken(ctx, that.opts.Credential)
	if err != nil {
		return entity.Session{}, fmt.Errorf("failed to join matchmaking: %w", err)
	}

	if err = that.conn.Open(ctx, that.opts.Endpoint, token); err != nil {
		return entity.Session{}, fmt.Errorf("failed to open connection: %w", err)
	}
	defer that.conn.Close()

	that.notify("waiting for an opponent...")

	if that.opts.Strategy == nil && that.opts.Input != nil {
		go that.readInput(ctx)
	}

	if that.opts.Leaderboard != nil {
		go that.opts.Leaderboard.Run(ctx, that.showLeaderboard)
	}

	select {
	case final := <-that.finished:
		log.Info("game over", "game_id", final.ID, "winner_id", final.Winner)
		return final, nil
	case info := <-that.closed:
		select {
		case final := <-that.finished:
			return final, nil
		default:
		}

		last := that.snapshot()
		log.Warn("connection closed before the game ended", "code", info.Code, "clean", info.Clean)

		return last, fmt.Errorf("%w: connection closed before the game ended (code %d %s)",
			apperror.ErrTransport, info.Code, info.Reason)
	case <-ctx.Done():
		return that.snapshot(), ctx.Err()
	}
}

// Move submits a local move intent. Off-board cells are refused instead of reaching the validator.
func (that *Client) Move(row, col int) error {
	if !entity.InBounds(row, col) {
		return fmt.Errorf("%w: %w: (%d, %d)", apperror.ErrValidation, apperror.ErrInvalidCell, row, col)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	return that.validator.AttemptMove(row, col)
}

func (that *Client) handle(event protocol.Event) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.machine.Apply(event); err != nil {
		that.logger.Warn("ignoring event", "type", event.Type(), "game_id", event.SessionID(), "error", err)
		return
	}

	that.playBot()
}

// playBot runs with mu held.
func (that *Client) playBot() {
	if that.opts.Strategy == nil || !that.machine.IsLocalTurn(that.opts.PlayerID) {
		return
	}

	current, _ := that.machine.Snapshot()

	row, col, err := that.opts.Strategy.Pick(current, that.opts.PlayerID)
	if err != nil {
		that.logger.Error("strategy failed to pick a move", "error", err)
		return
	}

	if err = that.validator.AttemptMove(row, col); err != nil {
		that.logger.Error("bot move rejected", "row", row, "col", col, "error", err)
	}
}

// onSnapshot runs with mu held, from inside the state machine.
func (that *Client) onSnapshot(current entity.Session) {
	renderSession(that.opts.Output, current, that.opts.PlayerID)

	if current.IsFinished() {
		select {
		case that.finished <- current:
		default:
		}
	}
}

func (that *Client) readInput(ctx context.Context) {
	scanner := bufio.NewScanner(that.opts.Input)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var row, col int
		if _, err := fmt.Sscan(line, &row, &col); err != nil {
			that.notify("expected two numbers: row col")
			continue
		}

		if err := that.Move(row, col); err != nil {
			if errors.Is(err, apperror.ErrValidation) {
				that.notify("move rejected: " + err.Error())
				continue
			}

			that.notify("move failed: " + err.Error())
		}
	}
}

func (that *Client) showLeaderboard(entries []entity.LeaderboardEntry) {
	that.mu.Lock()
	defer that.mu.Unlock()

	renderLeaderboard(that.opts.Output, entries)
}

func (that *Client) notify(msg string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, _ = fmt.Fprintln(that.opts.Output, msg)
}

func (that *Client) snapshot() entity.Session {
	that.mu.Lock()
	defer that.mu.Unlock()

	current, _ := that.machine.Snapshot()

	return current
}
