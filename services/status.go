package services

import (
	"context"

	"github.com/wfunc/blinkduel/logger"
	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/state"
)

// PollStatus returns the record as seen by caller and advances it: the
// countdown ends, stranded loss reports are adjudicated, a stale opponent
// forfeits and the duration cap forces a draw. Non-participants may watch
// but never trigger a forfeit.
func (s *MatchService) PollStatus(ctx context.Context, caller persistence.Identity, code string) (*room.Record, room.Slot, error) {
	code = normalizeCode(code)
	rec, _, err := s.load(ctx, code)
	if err != nil {
		return nil, "", err
	}
	slot, isParticipant := rec.RoleOf(caller.Wallet)

	if isParticipant {
		if _, err := s.heartbeats.Beat(ctx, code, slot); err != nil {
			logger.Log.Warnf("room %s: %v", code, err)
		}
	}

	obs, err := s.observe(ctx, code, slot)
	if err != nil {
		return nil, "", err
	}

	if res := state.Advance(rec, s.clock.Now(), s.settings, obs); res.Changed {
		rec, _, err = s.commit(ctx, code, func(m *mutation) error {
			if res := state.Advance(m.rec, m.now, s.settings, obs); res.Changed {
				m.write(res.Cause)
			}
			return nil
		})
		if err != nil {
			return nil, "", err
		}
	}

	for sl, ts := range obs.Heartbeats {
		if p := rec.Player(sl); p.Occupied() {
			p.LastHeartbeat = room.Millis(ts)
		}
	}
	return rec, slot, nil
}

// Inspect returns the stored record without advancing it.
func (s *MatchService) Inspect(ctx context.Context, code string) (*room.Record, error) {
	rec, _, err := s.load(ctx, normalizeCode(code))
	return rec, err
}
