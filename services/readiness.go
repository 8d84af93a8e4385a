package services

import (
	"context"
	"fmt"

	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/state"
)

// MarkReady records the caller's ready vote and starts the countdown once
// both votes are in. Repeating it has no further effect. The vote holds
// the caller's wallet.
func (s *MatchService) MarkReady(ctx context.Context, caller persistence.Identity, code string) (*room.Record, error) {
	code = normalizeCode(code)
	rec, _, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if rec.Phase != room.PhaseReadyCheck {
		return nil, ErrNotInPhase
	}
	slot, err := participant(rec, caller)
	if err != nil {
		return nil, err
	}

	if err := s.store.Set(ctx, room.ReadyKey(code, slot), []byte(caller.Wallet), s.settings.RoomTTL); err != nil {
		return nil, fmt.Errorf("record ready vote: %w", err)
	}

	obs, err := s.observe(ctx, code, slot)
	if err != nil {
		return nil, err
	}

	rec, _, err = s.commit(ctx, code, func(m *mutation) error {
		if m.rec.Phase != room.PhaseReadyCheck {
			// A concurrent call already promoted the match.
			return nil
		}
		changed := state.MergeReady(m.rec, obs.Ready)
		if state.ScheduleCountdown(m.rec, m.now, s.settings) {
			changed = true
		}
		if changed {
			m.write(state.CauseNone)
		}
		return nil
	})
	return rec, err
}
