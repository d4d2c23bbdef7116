package game

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadyInSession = errors.New("player already has a live session")
	ErrNotAParticipant  = errors.New("not a participant of this session")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrIllegalMove      = errors.New("illegal move")
	ErrNoSelection      = errors.New("no piece selected")
	ErrNothingToUndo    = errors.New("nothing to undo")
	ErrGameFinished     = errors.New("game already finished")
	ErrStaleResult      = errors.New("stale engine result")
)
