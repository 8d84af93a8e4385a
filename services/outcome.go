package services

import (
	"context"
	"fmt"
	"math"

	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/state"
)

// ReportLoss records that the caller lost (blinked) and adjudicates the
// match. The first report of a slot stands. A decided match is returned
// unchanged, never overwritten.
func (s *MatchService) ReportLoss(ctx context.Context, caller persistence.Identity, code string) (*room.Record, error) {
	code = normalizeCode(code)
	rec, _, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	slot, err := participant(rec, caller)
	if err != nil {
		return nil, err
	}
	if rec.Phase == room.PhaseFinished || rec.Decided() {
		return rec, nil
	}

	now := s.clock.Now()
	if !state.Playing(rec, now) {
		return nil, ErrNotInPhase
	}

	if state.Elapsed(rec, now) > s.settings.MaxDuration {
		// Both held for the full duration before this report arrived.
		rec, _, err = s.commit(ctx, code, func(m *mutation) error {
			if res := state.Advance(m.rec, m.now, s.settings, state.Observations{}); res.Changed {
				m.write(res.Cause)
			}
			return nil
		})
		return rec, err
	}

	offset := math.Round(state.Elapsed(rec, now).Seconds()*1000) / 1000
	if _, err := s.store.SetNX(ctx, room.LossKey(code, slot), room.FormatOffset(offset), s.settings.RoomTTL); err != nil {
		return nil, fmt.Errorf("record loss: %w", err)
	}

	if d := s.settings.LossSettleDelay; d > 0 {
		select {
		case <-s.clock.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	obs, err := s.observe(ctx, code, slot)
	if err != nil {
		return nil, err
	}

	rec, _, err = s.commit(ctx, code, func(m *mutation) error {
		if m.rec.Decided() {
			return nil
		}
		if cause := state.Adjudicate(m.rec, obs.Losses, s.settings.DrawThreshold, m.now); cause != state.CauseNone {
			m.write(cause)
		}
		return nil
	})
	return rec, err
}
