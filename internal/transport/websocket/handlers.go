package websocket

import (
	"context"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
)

// handleMove plays a move intent as the connection's player, whatever player_id it claims.
func (that *Server) handleMove(ctx context.Context, peer *peer, event protocol.Event) error {
	move, ok := event.(protocol.GameMove)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	if move.Row == nil || move.Col == nil {
		return fmt.Errorf("%w: missing row or col", apperror.ErrIncompleteMove)
	}

	if err := that.matchmaker.PlayMove(ctx, move.GameID, peer.player.ID, *move.Row, *move.Col); err != nil {
		return fmt.Errorf("failed to play move: %w", err)
	}

	return nil
}
