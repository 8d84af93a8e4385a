package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/blinkduel/room"
)

// ErrTransitionNotAllowed is returned when a phase transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Condition guards a transition. A nil condition always allows it.
type Condition func(rec *room.Record) bool

// Machine is the phase transition table of a match record.
type Machine struct {
	transitions map[room.Phase]map[room.Phase]Condition // from -> to -> condition
	mutex       sync.RWMutex
}

// NewMachine returns a machine without any transition registered.
func NewMachine() *Machine {
	return &Machine{
		transitions: make(map[room.Phase]map[room.Phase]Condition),
	}
}

// AddTransition registers from -> to guarded by condition.
func (m *Machine) AddTransition(from, to room.Phase, condition Condition) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[room.Phase]Condition)
	}
	m.transitions[from][to] = condition
}

// Allowed reports whether rec may move to phase to.
func (m *Machine) Allowed(rec *room.Record, to room.Phase) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	conditions, exists := m.transitions[rec.Phase]
	if !exists {
		return false
	}
	condition, exists := conditions[to]
	if !exists {
		return false
	}
	return condition == nil || condition(rec)
}

// ChangePhase moves rec to phase to and stamps the phase start.
func (m *Machine) ChangePhase(rec *room.Record, to room.Phase, now time.Time) error {
	if rec.Phase == to {
		return nil
	}
	if !m.Allowed(rec, to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, rec.Phase, to)
	}
	rec.Phase = to
	rec.PhaseStartAt = room.Millis(now)
	return nil
}

// NewMatchMachine returns the transition table of a duel.
func NewMatchMachine() *Machine {
	m := NewMachine()

	joined := func(rec *room.Record) bool { return rec.Slot2.Occupied() }
	departed := func(rec *room.Record) bool { return !rec.Slot2.Occupied() }
	decided := func(rec *room.Record) bool { return rec.Decided() }

	m.AddTransition(room.PhaseWaiting, room.PhaseReadyCheck, joined)
	m.AddTransition(room.PhaseReadyCheck, room.PhaseCountdown, func(rec *room.Record) bool {
		return rec.Slot1.Ready && rec.Slot2.Ready
	})
	m.AddTransition(room.PhaseReadyCheck, room.PhaseWaiting, departed)
	m.AddTransition(room.PhaseCountdown, room.PhaseWaiting, departed)
	m.AddTransition(room.PhaseCountdown, room.PhasePlaying, func(rec *room.Record) bool {
		return rec.PlayStartAt != 0
	})
	m.AddTransition(room.PhaseReadyCheck, room.PhaseFinished, decided)
	m.AddTransition(room.PhaseCountdown, room.PhaseFinished, decided)
	m.AddTransition(room.PhasePlaying, room.PhaseFinished, decided)
	return m
}

var phases = NewMatchMachine()

// ChangePhase applies a duel transition to rec.
func ChangePhase(rec *room.Record, to room.Phase, now time.Time) error {
	return phases.ChangePhase(rec, to, now)
}
