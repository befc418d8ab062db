// Package protocol defines the events exchanged over the game connection and their wire codec.
package protocol

import "github.com/rocketscienceinc/tictactoe-realtime/internal/entity"

type Type string

const (
	TypeGameStart Type = "GAME_START"
	TypeGameMove  Type = "GAME_MOVE"
	TypeGameEnd   Type = "GAME_END"
)

// Event is the closed set of protocol messages: GameStart, GameMove and GameEnd.
type Event interface {
	Type() Type
	SessionID() int64

	isEvent()
}

// GameStart announces a freshly matched session and its first turn-holder.
type GameStart struct {
	GameID  int64
	Player1 entity.Player
	Player2 entity.Player
	Turn    int64
}

// GameMove is either a confirmed move from the server (all fields set) or a
// client move intent (only GameID, Row and Col set).
type GameMove struct {
	GameID   int64
	Turn     *int64
	PlayerID *int64
	Row      *int
	Col      *int
}

// GameEnd closes a session. A nil WinnerID is a draw.
type GameEnd struct {
	GameID   int64
	WinnerID *int64
	Player1  entity.Player
	Player2  entity.Player
}

func (GameStart) Type() Type { return TypeGameStart }
func (GameMove) Type() Type  { return TypeGameMove }
func (GameEnd) Type() Type   { return TypeGameEnd }

func (that GameStart) SessionID() int64 { return that.GameID }
func (that GameMove) SessionID() int64  { return that.GameID }
func (that GameEnd) SessionID() int64   { return that.GameID }

func (GameStart) isEvent() {}
func (GameMove) isEvent()  {}
func (GameEnd) isEvent()   {}

// NewMoveIntent builds the outbound request to occupy a cell.
func NewMoveIntent(gameID int64, row, col int) GameMove {
	return GameMove{GameID: gameID, Row: &row, Col: &col}
}

// NewMove builds the server confirmation of a move.
func NewMove(gameID, playerID, turn int64, row, col int) GameMove {
	return GameMove{GameID: gameID, PlayerID: &playerID, Turn: &turn, Row: &row, Col: &col}
}

// IsComplete reports whether the move carries everything needed to apply it.
func (that GameMove) IsComplete() bool {
	return that.Turn != nil && that.PlayerID != nil && that.Row != nil && that.Col != nil
}

func (that GameEnd) IsDraw() bool {
	return that.WinnerID == nil
}
