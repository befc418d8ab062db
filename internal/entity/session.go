package entity

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
)

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

const (
	BoardSize = 3

	EmptyCell int64 = 0
	NoWinner  int64 = 0
)

// WinLines lists every row, column and diagonal as (row, col) pairs.
var WinLines = [8][3][2]int{
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}},
	{{0, 2}, {1, 1}, {2, 0}},
}

// Board holds the id of the occupying player per cell, EmptyCell when unoccupied.
type Board [BoardSize][BoardSize]int64

func InBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}

func (that Board) IsOccupied(row, col int) bool {
	return that[row][col] != EmptyCell
}

func (that Board) IsFull() bool {
	for _, row := range that {
		for _, cell := range row {
			if cell == EmptyCell {
				return false
			}
		}
	}

	return true
}

// Winner returns the id owning a complete line, or NoWinner.
func (that Board) Winner() int64 {
	for _, line := range WinLines {
		a := that[line[0][0]][line[0][1]]
		b := that[line[1][0]][line[1][1]]
		c := that[line[2][0]][line[2][1]]
		if a != EmptyCell && a == b && b == c {
			return a
		}
	}

	return NoWinner
}

// Session is one game between exactly two players.
// It only holds values, so copying it yields an independent snapshot.
type Session struct {
	ID      int64  `json:"game_id"`
	Player1 Player `json:"player1"`
	Player2 Player `json:"player2"`
	Turn    int64  `json:"turn"`
	Board   Board  `json:"board"`
	Phase   Phase  `json:"phase"`
	Winner  int64  `json:"winner_id,omitempty"`
}

func NewSession(id int64, player1, player2 Player) *Session {
	return &Session{
		ID:      id,
		Player1: player1,
		Player2: player2,
		Phase:   PhaseWaiting,
	}
}

func (that *Session) HasPlayer(id int64) bool {
	return id != EmptyCell && (that.Player1.ID == id || that.Player2.ID == id)
}

// Opponent returns the other participant.
func (that *Session) Opponent(id int64) (Player, error) {
	switch id {
	case that.Player1.ID:
		return that.Player2, nil
	case that.Player2.ID:
		return that.Player1, nil
	default:
		return Player{}, fmt.Errorf("%w: %d", apperror.ErrUnknownPlayer, id)
	}
}

// Start moves a waiting session into play with the given turn-holder.
func (that *Session) Start(turn int64) error {
	if !that.IsWaiting() {
		return fmt.Errorf("cannot start session in phase %s", that.Phase)
	}

	if !that.HasPlayer(turn) {
		return fmt.Errorf("%w: turn %d", apperror.ErrUnknownPlayer, turn)
	}

	that.Turn = turn
	that.Phase = PhasePlaying

	return nil
}

// Occupy records a move confirmed by the remote authority and hands the turn over.
// It does not check occupancy: the server has the final word on legality.
func (that *Session) Occupy(row, col int, playerID, nextTurn int64) error {
	if err := that.ConfirmPlaying(); err != nil {
		return err
	}

	if !InBounds(row, col) {
		return fmt.Errorf("%w: (%d, %d)", apperror.ErrInvalidCell, row, col)
	}

	if !that.HasPlayer(playerID) {
		return fmt.Errorf("%w: player %d", apperror.ErrUnknownPlayer, playerID)
	}

	if !that.HasPlayer(nextTurn) {
		return fmt.Errorf("%w: turn %d", apperror.ErrUnknownPlayer, nextTurn)
	}

	that.Board[row][col] = playerID
	that.Turn = nextTurn

	return nil
}

// MakeMove applies a move with full legality checks. Used by the authoritative side.
func (that *Session) MakeMove(playerID int64, row, col int) error {
	if err := that.ConfirmPlaying(); err != nil {
		return err
	}

	if !InBounds(row, col) {
		return fmt.Errorf("%w: (%d, %d)", apperror.ErrInvalidCell, row, col)
	}

	if that.Turn != playerID {
		return apperror.ErrNotYourTurn
	}

	if that.Board.IsOccupied(row, col) {
		return apperror.ErrCellOccupied
	}

	opponent, err := that.Opponent(playerID)
	if err != nil {
		return err
	}

	that.Board[row][col] = playerID
	that.Turn = opponent.ID

	that.UpdateState()

	return nil
}

// UpdateState finishes the session when the board holds a line or is full.
func (that *Session) UpdateState() {
	if winner := that.Board.Winner(); winner != NoWinner {
		that.Finish(winner)
		return
	}

	if that.Board.IsFull() {
		that.Finish(NoWinner)
	}
}

// Finish is idempotent: a finished session keeps its first recorded outcome.
func (that *Session) Finish(winner int64) {
	if that.IsFinished() {
		return
	}

	that.Phase = PhaseFinished
	that.Winner = winner
}

func (that *Session) IsWaiting() bool {
	return that.Phase == PhaseWaiting
}

func (that *Session) IsPlaying() bool {
	return that.Phase == PhasePlaying
}

func (that *Session) IsFinished() bool {
	return that.Phase == PhaseFinished
}

func (that *Session) IsDraw() bool {
	return that.IsFinished() && that.Winner == NoWinner
}

func (that *Session) ConfirmPlaying() error {
	switch that.Phase {
	case PhasePlaying:
		return nil
	case PhaseFinished:
		return apperror.ErrGameFinished
	default:
		return apperror.ErrSessionNotPlaying
	}
}
