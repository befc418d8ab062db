package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
)

type mockSender struct {
	mock.Mock
}

func (that *mockSender) Send(event protocol.Event) error {
	args := that.Called(event)
	return args.Error(0)
}

func TestValidator_AttemptMove(t *testing.T) {
	t.Run("Sends an intent on the local turn", func(t *testing.T) {
		// Given: alice to move in game 1
		machine := startedMachine(t)
		sender := &mockSender{}
		sender.On("Send", protocol.NewMoveIntent(1, 2, 1)).Return(nil).Once()

		validator := NewValidator(testLogger, machine, sender, alice.ID)

		// When: alice picks (2, 1)
		err := validator.AttemptMove(2, 1)

		// Then: exactly one intent is sent and local state waits for the server
		require.NoError(t, err)
		sender.AssertExpectations(t)
		assert.Equal(t, entity.EmptyCell, snapshot(t, machine).Board[2][1])
	})

	t.Run("No active session", func(t *testing.T) {
		sender := &mockSender{}
		validator := NewValidator(testLogger, NewStateMachine(testLogger), sender, alice.ID)

		err := validator.AttemptMove(0, 0)

		require.ErrorIs(t, err, apperror.ErrNoActiveSession)
		assert.ErrorIs(t, err, apperror.ErrValidation)
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("Session not playing", func(t *testing.T) {
		// Given: a finished session
		machine := startedMachine(t)
		require.NoError(t, machine.ApplyEnd(endEvent(1, nil)))

		sender := &mockSender{}
		validator := NewValidator(testLogger, machine, sender, alice.ID)

		// When: alice still tries to move
		err := validator.AttemptMove(0, 0)

		// Then: the session-not-playing rejection wins over the turn check
		require.ErrorIs(t, err, apperror.ErrSessionNotPlaying)
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("Not my turn", func(t *testing.T) {
		machine := startedMachine(t)
		sender := &mockSender{}
		validator := NewValidator(testLogger, machine, sender, bob.ID)

		err := validator.AttemptMove(0, 0)

		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("Scenario: occupied cell issues no send", func(t *testing.T) {
		// Given: bob holds (1, 1) and it is alice's turn again
		machine := startedMachine(t)
		require.NoError(t, machine.ApplyMove(protocol.NewMove(1, alice.ID, bob.ID, 0, 0)))
		require.NoError(t, machine.ApplyMove(protocol.NewMove(1, bob.ID, alice.ID, 1, 1)))

		sender := &mockSender{}
		validator := NewValidator(testLogger, machine, sender, alice.ID)

		// When: alice picks the occupied cell
		err := validator.AttemptMove(1, 1)

		// Then: cell-occupied and nothing goes out
		require.ErrorIs(t, err, apperror.ErrCellOccupied)
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("Transport failure is surfaced", func(t *testing.T) {
		machine := startedMachine(t)
		sender := &mockSender{}
		sender.On("Send", mock.Anything).Return(apperror.ErrNotOpen).Once()
		validator := NewValidator(testLogger, machine, sender, alice.ID)

		err := validator.AttemptMove(0, 0)

		require.ErrorIs(t, err, apperror.ErrTransport)
		assert.False(t, errors.Is(err, apperror.ErrValidation))
	})

	t.Run("Off-board coordinates panic", func(t *testing.T) {
		validator := NewValidator(testLogger, startedMachine(t), &mockSender{}, alice.ID)

		assert.Panics(t, func() { _ = validator.AttemptMove(3, 0) })
		assert.Panics(t, func() { _ = validator.AttemptMove(0, -1) })
	})
}
