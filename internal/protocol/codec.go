package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

// wirePlayer and wireEvent mirror the JSON records on the connection.
// Pointers tell an absent field apart from a zero value.
type wirePlayer struct {
	ID       *int64  `json:"id"`
	Username *string `json:"username"`
}

type wireEvent struct {
	Type     *Type       `json:"type"`
	GameID   *int64      `json:"game_id"`
	Player1  *wirePlayer `json:"player1,omitempty"`
	Player2  *wirePlayer `json:"player2,omitempty"`
	Turn     *int64      `json:"turn,omitempty"`
	PlayerID *int64      `json:"player_id,omitempty"`
	Row      *int        `json:"row,omitempty"`
	Col      *int        `json:"col,omitempty"`
	WinnerID *int64      `json:"winner_id,omitempty"`
}

// Encode serializes an event into its wire representation.
func Encode(event Event) ([]byte, error) {
	var wire wireEvent

	switch ev := event.(type) {
	case GameStart:
		if err := checkPlayers(ev.Player1, ev.Player2); err != nil {
			return nil, fmt.Errorf("%w: %w", apperror.ErrEncoding, err)
		}

		if err := checkID("turn", &ev.Turn); err != nil {
			return nil, fmt.Errorf("%w: %w", apperror.ErrEncoding, err)
		}

		wire = wireEvent{
			GameID:  &ev.GameID,
			Player1: toWirePlayer(ev.Player1),
			Player2: toWirePlayer(ev.Player2),
			Turn:    &ev.Turn,
		}
	case GameMove:
		if err := checkMove(ev.Turn, ev.PlayerID, ev.Row, ev.Col); err != nil {
			return nil, fmt.Errorf("%w: %w", apperror.ErrEncoding, err)
		}

		wire = wireEvent{
			GameID:   &ev.GameID,
			Turn:     ev.Turn,
			PlayerID: ev.PlayerID,
			Row:      ev.Row,
			Col:      ev.Col,
		}
	case GameEnd:
		if err := checkPlayers(ev.Player1, ev.Player2); err != nil {
			return nil, fmt.Errorf("%w: %w", apperror.ErrEncoding, err)
		}

		if err := checkID("winner_id", ev.WinnerID); err != nil {
			return nil, fmt.Errorf("%w: %w", apperror.ErrEncoding, err)
		}

		wire = wireEvent{
			GameID:   &ev.GameID,
			Player1:  toWirePlayer(ev.Player1),
			Player2:  toWirePlayer(ev.Player2),
			WinnerID: ev.WinnerID,
		}
	default:
		return nil, fmt.Errorf("%w: unsupported event %T", apperror.ErrEncoding, event)
	}

	if wire.GameID == nil || *wire.GameID <= 0 {
		return nil, fmt.Errorf("%w: game_id must be positive", apperror.ErrEncoding)
	}

	eventType := event.Type()
	wire.Type = &eventType

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrEncoding, err)
	}

	return data, nil
}

// Decode parses and validates one wire message. Every failure wraps apperror.ErrDecode.
func Decode(data []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrDecode, err)
	}

	if wire.Type == nil {
		return nil, fmt.Errorf("%w: missing type", apperror.ErrDecode)
	}

	if wire.GameID == nil {
		return nil, fmt.Errorf("%w: %s: missing game_id", apperror.ErrDecode, *wire.Type)
	}

	if *wire.GameID <= 0 {
		return nil, fmt.Errorf("%w: %s: game_id must be positive", apperror.ErrDecode, *wire.Type)
	}

	switch *wire.Type {
	case TypeGameStart:
		return decodeStart(wire)
	case TypeGameMove:
		return decodeMove(wire)
	case TypeGameEnd:
		return decodeEnd(wire)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", apperror.ErrDecode, *wire.Type)
	}
}

func decodeStart(wire wireEvent) (Event, error) {
	player1, err := fromWirePlayer("player1", wire.Player1)
	if err != nil {
		return nil, err
	}

	player2, err := fromWirePlayer("player2", wire.Player2)
	if err != nil {
		return nil, err
	}

	if wire.Turn == nil {
		return nil, fmt.Errorf("%w: GAME_START: missing turn", apperror.ErrDecode)
	}

	if err = checkID("turn", wire.Turn); err != nil {
		return nil, fmt.Errorf("%w: GAME_START: %w", apperror.ErrDecode, err)
	}

	return GameStart{
		GameID:  *wire.GameID,
		Player1: player1,
		Player2: player2,
		Turn:    *wire.Turn,
	}, nil
}

func decodeMove(wire wireEvent) (Event, error) {
	if err := checkMove(wire.Turn, wire.PlayerID, wire.Row, wire.Col); err != nil {
		return nil, fmt.Errorf("%w: GAME_MOVE: %w", apperror.ErrDecode, err)
	}

	return GameMove{
		GameID:   *wire.GameID,
		Turn:     wire.Turn,
		PlayerID: wire.PlayerID,
		Row:      wire.Row,
		Col:      wire.Col,
	}, nil
}

func decodeEnd(wire wireEvent) (Event, error) {
	player1, err := fromWirePlayer("player1", wire.Player1)
	if err != nil {
		return nil, err
	}

	player2, err := fromWirePlayer("player2", wire.Player2)
	if err != nil {
		return nil, err
	}

	if err = checkID("winner_id", wire.WinnerID); err != nil {
		return nil, fmt.Errorf("%w: GAME_END: %w", apperror.ErrDecode, err)
	}

	return GameEnd{
		GameID:   *wire.GameID,
		WinnerID: wire.WinnerID,
		Player1:  player1,
		Player2:  player2,
	}, nil
}

func toWirePlayer(player entity.Player) *wirePlayer {
	return &wirePlayer{ID: &player.ID, Username: &player.Username}
}

func fromWirePlayer(name string, wire *wirePlayer) (entity.Player, error) {
	switch {
	case wire == nil:
		return entity.Player{}, fmt.Errorf("%w: missing %s", apperror.ErrDecode, name)
	case wire.ID == nil:
		return entity.Player{}, fmt.Errorf("%w: missing %s.id", apperror.ErrDecode, name)
	case wire.Username == nil:
		return entity.Player{}, fmt.Errorf("%w: missing %s.username", apperror.ErrDecode, name)
	case *wire.ID <= 0:
		return entity.Player{}, fmt.Errorf("%w: %s.id must be positive", apperror.ErrDecode, name)
	}

	return entity.Player{ID: *wire.ID, Username: *wire.Username}, nil
}

func checkPlayers(players ...entity.Player) error {
	for _, player := range players {
		if !player.IsValid() {
			return fmt.Errorf("player id must be positive, got %d", player.ID)
		}
	}

	return nil
}

func checkMove(turn, playerID *int64, row, col *int) error {
	if err := checkID("turn", turn); err != nil {
		return err
	}

	if err := checkID("player_id", playerID); err != nil {
		return err
	}

	if err := checkCoordinate("row", row); err != nil {
		return err
	}

	return checkCoordinate("col", col)
}

// checkID accepts an absent id; a present one must be positive.
func checkID(name string, id *int64) error {
	if id != nil && *id <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, *id)
	}

	return nil
}

// checkCoordinate accepts an absent coordinate; a present one must be on the board.
func checkCoordinate(name string, value *int) error {
	if value != nil && (*value < 0 || *value >= entity.BoardSize) {
		return fmt.Errorf("%s out of range: %d", name, *value)
	}

	return nil
}
