package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

// mark returns the symbol for a cell: X for player1, O for player2.
func mark(session entity.Session, id int64) string {
	switch id {
	case entity.EmptyCell:
		return "."
	case session.Player1.ID:
		return "X"
	case session.Player2.ID:
		return "O"
	default:
		return "?"
	}
}

func renderSession(w io.Writer, session entity.Session, localID int64) {
	var b strings.Builder

	fmt.Fprintf(&b, "\ngame %d: %s (X) vs %s (O)\n", session.ID, session.Player1.Username, session.Player2.Username)
	b.WriteString("    0 1 2\n")

	for row := range entity.BoardSize {
		fmt.Fprintf(&b, "  %d", row)
		for col := range entity.BoardSize {
			b.WriteString(" " + mark(session, session.Board[row][col]))
		}
		b.WriteString("\n")
	}

	switch {
	case session.IsDraw():
		b.WriteString("draw\n")
	case session.IsFinished() && session.Winner == localID:
		b.WriteString("you won\n")
	case session.IsFinished():
		b.WriteString("you lost\n")
	case session.Turn == localID:
		b.WriteString("your turn, enter: row col\n")
	default:
		b.WriteString("waiting for opponent\n")
	}

	_, _ = io.WriteString(w, b.String())
}

func renderLeaderboard(w io.Writer, entries []entity.LeaderboardEntry) {
	var b strings.Builder

	b.WriteString("\nleaderboard\n")

	for i, entry := range entries {
		efficiency := "-"
		if entry.Efficiency != nil {
			efficiency = fmt.Sprintf("%.2f", *entry.Efficiency)
		}

		fmt.Fprintf(&b, "%d. %-16s W%d L%d D%d eff %s\n",
			i+1, entry.Username, entry.Wins, entry.Losses, entry.Draws, efficiency)
	}

	_, _ = io.WriteString(w, b.String())
}
