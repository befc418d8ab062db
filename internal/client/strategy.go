package client

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

var (
	ErrNoAvailableMoves = errors.New("no available moves")
	ErrUnknownStrategy  = errors.New("unknown strategy")
)

const (
	StrategyRandom = "random"
	StrategySmart  = "smart"
)

// Strategy picks the next cell for playerID in a playing session.
type Strategy interface {
	Pick(session entity.Session, playerID int64) (row, col int, err error)
}

func NewStrategy(name string, rnd *rand.Rand) (Strategy, error) {
	switch name {
	case StrategyRandom:
		return &randomStrategy{rnd: rnd}, nil
	case StrategySmart:
		return &smartStrategy{fallback: randomStrategy{rnd: rnd}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

type cell struct {
	row, col int
}

func availableCells(board entity.Board) []cell {
	cells := make([]cell, 0, entity.BoardSize*entity.BoardSize)
	for row := range entity.BoardSize {
		for col := range entity.BoardSize {
			if !board.IsOccupied(row, col) {
				cells = append(cells, cell{row: row, col: col})
			}
		}
	}

	return cells
}

type randomStrategy struct {
	rnd *rand.Rand
}

func (that *randomStrategy) Pick(session entity.Session, _ int64) (int, int, error) {
	cells := availableCells(session.Board)
	if len(cells) == 0 {
		return 0, 0, ErrNoAvailableMoves
	}

	chosen := cells[that.rnd.Intn(len(cells))]

	return chosen.row, chosen.col, nil
}

// smartStrategy wins if it can, blocks if it must, then prefers the centre and corners.
type smartStrategy struct {
	fallback randomStrategy
}

var preferred = []cell{{1, 1}, {0, 0}, {0, 2}, {2, 0}, {2, 2}}

func (that *smartStrategy) Pick(session entity.Session, playerID int64) (int, int, error) {
	if len(availableCells(session.Board)) == 0 {
		return 0, 0, ErrNoAvailableMoves
	}

	opponent, err := session.Opponent(playerID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to pick move: %w", err)
	}

	if c, ok := completingCell(session.Board, playerID); ok {
		return c.row, c.col, nil
	}

	if c, ok := completingCell(session.Board, opponent.ID); ok {
		return c.row, c.col, nil
	}

	for _, c := range preferred {
		if !session.Board.IsOccupied(c.row, c.col) {
			return c.row, c.col, nil
		}
	}

	return that.fallback.Pick(session, playerID)
}

// completingCell finds the empty cell of a line where id already holds the other two.
func completingCell(board entity.Board, id int64) (cell, bool) {
	for _, line := range entity.WinLines {
		owned := 0
		empty := cell{row: -1}

		for _, pos := range line {
			switch board[pos[0]][pos[1]] {
			case id:
				owned++
			case entity.EmptyCell:
				empty = cell{row: pos[0], col: pos[1]}
			}
		}

		if owned == 2 && empty.row >= 0 {
			return empty, true
		}
	}

	return cell{}, false
}
