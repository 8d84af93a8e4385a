package services

import "errors"

// Precondition failures. None of them mutate the match.
var (
	ErrNoIdentity         = errors.New("caller has no identity")
	ErrNotFound           = errors.New("room not found")
	ErrSelfJoin           = errors.New("cannot join your own room")
	ErrNotJoinable        = errors.New("room is not accepting players")
	ErrFull               = errors.New("room is full")
	ErrNotInPhase         = errors.New("operation not allowed in current phase")
	ErrNotAParticipant    = errors.New("not a participant of this room")
	ErrNotFinished        = errors.New("game not finished")
	ErrNoWinner           = errors.New("game finished without a winner")
	ErrNotWinner          = errors.New("not the winner")
	ErrAlreadyClaimed     = errors.New("winnings already claimed")
	ErrAlreadyRefunded    = errors.New("stake already refunded")
	ErrCodeSpaceExhausted = errors.New("could not allocate a room code")
)

// ErrNotConfigured means settlement has no signing key or contract.
var ErrNotConfigured = errors.New("settlement not configured")

// ErrConflict is returned when concurrent writers kept winning the record.
var ErrConflict = errors.New("room changed concurrently, retry")
