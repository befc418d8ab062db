package apperror

import (
	"errors"
	"fmt"
)

// Top level kinds. Everything below wraps one of them, so callers can branch with errors.Is.
var (
	ErrDecode     = errors.New("malformed message")
	ErrEncoding   = errors.New("event value out of domain")
	ErrAuth       = errors.New("token exchange failed")
	ErrValidation = errors.New("move rejected")
	ErrTransport  = errors.New("transport failure")
)

// Local move rejections.
var (
	ErrNoActiveSession   = fmt.Errorf("%w: no active session", ErrValidation)
	ErrNotYourTurn       = fmt.Errorf("%w: it's not your turn", ErrValidation)
	ErrCellOccupied      = fmt.Errorf("%w: cell is already occupied", ErrValidation)
	ErrSessionNotPlaying = fmt.Errorf("%w: session is not playing", ErrValidation)
)

var ErrNotOpen = fmt.Errorf("%w: connection is not open", ErrTransport)

// Inbound events the session state machine refuses to apply.
var (
	ErrSessionInProgress = errors.New("session is already in progress")
	ErrSessionMismatch   = errors.New("event belongs to another session")
	ErrGameFinished      = errors.New("game is already finished")
	ErrIncompleteMove    = errors.New("move event is incomplete")
	ErrUnknownPlayer     = errors.New("player is not a participant")
	ErrDuplicatePlayer   = errors.New("session needs two distinct players")
)

// Server side.
var (
	ErrGameNotFound   = errors.New("game not found")
	ErrInvalidCell    = errors.New("invalid cell index")
	ErrInvalidToken   = errors.New("invalid token")
	ErrAlreadyInQueue = errors.New("player is already connected")
)
