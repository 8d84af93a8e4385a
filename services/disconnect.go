package services

import (
	"context"
	"fmt"
	"time"

	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/state"
)

// Disconnect handles a participant leaving. A waiting room is deleted, a
// live match is forfeited to the opponent, and a lobby either regresses to
// waiting (slot2 left) or is awarded to slot2 (slot1 left).
func (s *MatchService) Disconnect(ctx context.Context, caller persistence.Identity, code string) (*room.Record, bool, error) {
	code = normalizeCode(code)

	// Slot2 leaving a lobby voids both ready votes and its heartbeat. They
	// go before the record frees the slot, so nobody can join and vote in
	// between.
	rec, _, err := s.load(ctx, code)
	if err != nil {
		return nil, false, err
	}
	if slot, ok := rec.RoleOf(caller.Wallet); ok && slot == room.Slot2 && inLobby(rec, s.clock.Now()) {
		if err := s.store.Del(ctx, room.ReadyKey(code, room.Slot1), room.ReadyKey(code, room.Slot2)); err != nil {
			return nil, false, fmt.Errorf("clear ready votes: %w", err)
		}
		if err := s.heartbeats.Forget(ctx, code, room.Slot2); err != nil {
			return nil, false, fmt.Errorf("clear heartbeat: %w", err)
		}
	}

	rec, done, err := s.commit(ctx, code, func(m *mutation) error {
		rec := m.rec
		slot, err := participant(rec, caller)
		if err != nil {
			return err
		}

		switch {
		case rec.Phase == room.PhaseFinished || rec.Decided():
			return nil
		case rec.Phase == room.PhaseWaiting:
			m.op = opRemove
			return nil
		case state.Playing(rec, m.now):
			state.StartPlay(rec, m.now)
			if state.Decide(rec, room.WinnerFor(slot.Opponent()), m.now) {
				m.write(state.CauseDisconnect)
			}
			return nil
		case slot == room.Slot2:
			rec.Slot2 = room.Player{}
			rec.Slot1.Ready = false
			rec.PlayStartAt = 0
			if err := state.ChangePhase(rec, room.PhaseWaiting, m.now); err != nil {
				return err
			}
			m.write(state.CauseNone)
			return nil
		default:
			if state.Decide(rec, room.WinnerSlot2, m.now) {
				m.write(state.CauseDisconnect)
			}
			return nil
		}
	})
	if err != nil {
		return nil, false, err
	}

	if done == opRemove {
		return nil, true, nil
	}
	return rec, false, nil
}

func inLobby(rec *room.Record, now time.Time) bool {
	if rec.Decided() || state.Playing(rec, now) {
		return false
	}
	return rec.Phase == room.PhaseReadyCheck || rec.Phase == room.PhaseCountdown
}
