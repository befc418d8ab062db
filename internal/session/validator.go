package session

import (
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
)

type sender interface {
	Send(event protocol.Event) error
}

type sessionReader interface {
	Snapshot() (entity.Session, bool)
}

// Validator gates the local player's move intents before they reach the server.
type Validator struct {
	logger   *slog.Logger
	sessions sessionReader
	sender   sender
	playerID int64
}

func NewValidator(logger *slog.Logger, sessions sessionReader, sender sender, playerID int64) *Validator {
	return &Validator{
		logger:   logger.With("component", "validator", "player_id", playerID),
		sessions: sessions,
		sender:   sender,
		playerID: playerID,
	}
}

// AttemptMove sends a move intent for (row, col) when the local player may take it.
// The coordinates must be on the board; anything else is a programming error and panics.
func (that *Validator) AttemptMove(row, col int) error {
	if !entity.InBounds(row, col) {
		panic(fmt.Sprintf("session: cell (%d, %d) is off the board", row, col))
	}

	log := that.logger.With("method", "AttemptMove", "row", row, "col", col)

	session, ok := that.sessions.Snapshot()
	if !ok {
		return apperror.ErrNoActiveSession
	}

	if !session.IsPlaying() {
		return fmt.Errorf("%w: phase %s", apperror.ErrSessionNotPlaying, session.Phase)
	}

	if session.Turn != that.playerID {
		return apperror.ErrNotYourTurn
	}

	if session.Board.IsOccupied(row, col) {
		return apperror.ErrCellOccupied
	}

	if err := that.sender.Send(protocol.NewMoveIntent(session.ID, row, col)); err != nil {
		log.Error("failed to send move", "error", err)
		return fmt.Errorf("failed to send move: %w", err)
	}

	log.Debug("move sent", "game_id", session.ID)

	return nil
}
