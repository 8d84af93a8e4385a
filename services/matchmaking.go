package services

import (
	"context"
	"fmt"

	"github.com/wfunc/blinkduel/logger"
	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/state"
)

// CreateRoom opens a waiting room with the caller in slot1.
func (s *MatchService) CreateRoom(ctx context.Context, caller persistence.Identity) (*room.Record, error) {
	if caller.Wallet == "" {
		return nil, ErrNoIdentity
	}

	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		key := room.Key(code)

		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("probe room %s: %w", code, err)
		}
		if exists {
			continue
		}

		rec := room.NewRecord(code, caller.Wallet, caller.DisplayName, s.clock.Now())
		data, err := room.Encode(rec)
		if err != nil {
			return nil, err
		}
		created, err := s.store.SetNX(ctx, key, data, s.settings.RoomTTL)
		if err != nil {
			return nil, fmt.Errorf("create room %s: %w", code, err)
		}
		if !created {
			continue
		}

		s.monitor.IncRoomsCreated()
		logger.Log.Infof("room %s: created by %s", code, caller.Wallet)
		return rec, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// JoinRoom places the caller in slot2 of a waiting room.
func (s *MatchService) JoinRoom(ctx context.Context, caller persistence.Identity, code string) (*room.Record, error) {
	if caller.Wallet == "" {
		return nil, ErrNoIdentity
	}
	code = normalizeCode(code)

	rec, _, err := s.commit(ctx, code, func(m *mutation) error {
		rec := m.rec
		switch {
		case rec.Slot1.Wallet == caller.Wallet:
			return ErrSelfJoin
		case rec.Phase != room.PhaseWaiting:
			return ErrNotJoinable
		case rec.Slot2.Occupied():
			return ErrFull
		}

		rec.Slot2 = room.Player{
			Wallet:        caller.Wallet,
			Name:          caller.DisplayName,
			LastHeartbeat: room.Millis(m.now),
		}
		if err := state.ChangePhase(rec, room.PhaseReadyCheck, m.now); err != nil {
			return err
		}
		m.write(state.CauseNone)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.monitor.IncRoomsJoined()
	return rec, nil
}
