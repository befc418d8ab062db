// Package session tracks the client's view of the current game and gates local moves.
package session

import (
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
)

// StateMachine applies server events to the single tracked session.
// It is not safe for concurrent use; callers serialise access.
type StateMachine struct {
	logger      *slog.Logger
	session     *entity.Session
	subscribers []func(entity.Session)
}

func NewStateMachine(logger *slog.Logger) *StateMachine {
	return &StateMachine{
		logger: logger.With("component", "session"),
	}
}

// Subscribe registers fn to receive a copy of the session after every accepted transition.
func (that *StateMachine) Subscribe(fn func(entity.Session)) {
	that.subscribers = append(that.subscribers, fn)
}

// Apply routes an event to its transition. Rejected events leave the session untouched.
func (that *StateMachine) Apply(event protocol.Event) error {
	switch ev := event.(type) {
	case protocol.GameStart:
		return that.ApplyStart(ev)
	case protocol.GameMove:
		return that.ApplyMove(ev)
	case protocol.GameEnd:
		return that.ApplyEnd(ev)
	default:
		return fmt.Errorf("unsupported event %T", event)
	}
}

func (that *StateMachine) ApplyStart(event protocol.GameStart) error {
	if that.session != nil && !that.session.IsFinished() {
		return fmt.Errorf("%w: game %d", apperror.ErrSessionInProgress, that.session.ID)
	}

	if event.Player1.ID == event.Player2.ID {
		return fmt.Errorf("%w: both are %d", apperror.ErrDuplicatePlayer, event.Player1.ID)
	}

	session := entity.NewSession(event.GameID, event.Player1, event.Player2)
	if err := session.Start(event.Turn); err != nil {
		return fmt.Errorf("failed to start game %d: %w", event.GameID, err)
	}

	that.session = session
	that.logger.Info("session started", "game_id", session.ID, "turn", session.Turn)
	that.publish()

	return nil
}

func (that *StateMachine) ApplyMove(event protocol.GameMove) error {
	if err := that.confirmTracked(event); err != nil {
		return err
	}

	if !event.IsComplete() {
		return apperror.ErrIncompleteMove
	}

	row, col := *event.Row, *event.Col
	if entity.InBounds(row, col) && that.session.Board.IsOccupied(row, col) {
		that.logger.Warn("server overwrote an occupied cell",
			"game_id", that.session.ID, "row", row, "col", col,
			"previous", that.session.Board[row][col], "player_id", *event.PlayerID)
	}

	if err := that.session.Occupy(row, col, *event.PlayerID, *event.Turn); err != nil {
		return fmt.Errorf("failed to apply move: %w", err)
	}

	that.publish()

	return nil
}

// ApplyEnd finishes the tracked session. A second end for the same session is a no-op.
func (that *StateMachine) ApplyEnd(event protocol.GameEnd) error {
	if err := that.confirmTracked(event); err != nil {
		return err
	}

	if that.session.IsFinished() {
		return nil
	}

	winner := entity.NoWinner
	if !event.IsDraw() {
		winner = *event.WinnerID
		if !that.session.HasPlayer(winner) {
			return fmt.Errorf("%w: winner %d", apperror.ErrUnknownPlayer, winner)
		}
	}

	that.session.Finish(winner)
	that.logger.Info("session finished", "game_id", that.session.ID, "winner_id", winner)
	that.publish()

	return nil
}

// Snapshot returns a copy of the tracked session, if any.
func (that *StateMachine) Snapshot() (entity.Session, bool) {
	if that.session == nil {
		return entity.Session{}, false
	}

	return *that.session, true
}

func (that *StateMachine) IsLocalTurn(playerID int64) bool {
	return that.session != nil && that.session.IsPlaying() && that.session.Turn == playerID
}

func (that *StateMachine) confirmTracked(event protocol.Event) error {
	if that.session == nil {
		return fmt.Errorf("%w: no session tracked, got game %d", apperror.ErrSessionMismatch, event.SessionID())
	}

	if that.session.ID != event.SessionID() {
		return fmt.Errorf("%w: tracking %d, got %d", apperror.ErrSessionMismatch, that.session.ID, event.SessionID())
	}

	return nil
}

func (that *StateMachine) publish() {
	snapshot := *that.session
	for _, fn := range that.subscribers {
		fn(snapshot)
	}
}
