// services/match_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/blinkduel/broadcast"
	"github.com/wfunc/blinkduel/logger"
	"github.com/wfunc/blinkduel/monitor"
	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/session"
	"github.com/wfunc/blinkduel/settlement"
	"github.com/wfunc/blinkduel/state"
)

// Options wires a MatchService. Zero values fall back to defaults.
type Options struct {
	Settings       state.Settings
	Codes          room.CodeSource
	CodeAttempts   int
	CommitAttempts int
	Signer         *settlement.Signer
	Payouts        settlement.Payouts
	Dispatcher     *broadcast.Dispatcher
	Monitor        *monitor.Monitor
	Clock          clockwork.Clock
}

// MatchService coordinates duels over a shared store. It holds no per-match
// state: every call reads the record, decides, and commits with a
// compare-and-swap on the exact bytes it read.
type MatchService struct {
	store          persistence.Store
	settings       state.Settings
	codes          room.CodeSource
	codeAttempts   int
	commitAttempts int
	heartbeats     *session.Tracker
	signer         *settlement.Signer
	payouts        settlement.Payouts
	dispatcher     *broadcast.Dispatcher
	monitor        *monitor.Monitor
	clock          clockwork.Clock
}

func NewMatchService(store persistence.Store, opts Options) *MatchService {
	if opts.Settings == (state.Settings{}) {
		opts.Settings = state.DefaultSettings()
	}
	if opts.Codes == nil {
		opts.Codes = room.NewCodeGenerator(room.DefaultAlphabet, 6)
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = 5
	}
	if opts.CommitAttempts <= 0 {
		opts.CommitAttempts = 5
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &MatchService{
		store:          store,
		settings:       opts.Settings,
		codes:          opts.Codes,
		codeAttempts:   opts.CodeAttempts,
		commitAttempts: opts.CommitAttempts,
		heartbeats:     session.NewTracker(store, opts.Clock, opts.Settings.RoomTTL),
		signer:         opts.Signer,
		payouts:        opts.Payouts,
		dispatcher:     opts.Dispatcher,
		monitor:        opts.Monitor,
		clock:          opts.Clock,
	}
}

// Settings returns the timing the service runs with.
func (s *MatchService) Settings() state.Settings {
	return s.settings
}

// SettlementConfigured reports whether vouchers can be issued.
func (s *MatchService) SettlementConfigured() bool {
	return s.signer != nil
}

func normalizeCode(code string) string {
	return strings.TrimSpace(code)
}

func (s *MatchService) load(ctx context.Context, code string) (*room.Record, []byte, error) {
	raw, err := s.store.Get(ctx, room.Key(code))
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load room %s: %w", code, err)
	}
	rec, err := room.Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("load room %s: %w", code, err)
	}
	return rec, raw, nil
}

type op int

const (
	opKeep op = iota
	opWrite
	opRemove
)

// mutation is one attempt of a commit. The callback gets a freshly loaded
// record and states what to do with it.
type mutation struct {
	rec   *room.Record
	now   time.Time
	op    op
	cause state.Cause
}

func (m *mutation) write(cause state.Cause) {
	m.op = opWrite
	if cause != state.CauseNone {
		m.cause = cause
	}
}

// commit runs fn against the fresh record until its outcome lands without
// an intervening write. fn may run more than once and must not have side
// effects besides the mutation.
func (s *MatchService) commit(ctx context.Context, code string, fn func(m *mutation) error) (*room.Record, op, error) {
	key := room.Key(code)
	for attempt := 0; attempt < s.commitAttempts; attempt++ {
		rec, raw, err := s.load(ctx, code)
		if err != nil {
			return nil, opKeep, err
		}
		prevPhase, prevWinner := rec.Phase, rec.Winner

		m := &mutation{rec: rec, now: s.clock.Now()}
		if err := fn(m); err != nil {
			return rec, opKeep, err
		}

		var ok bool
		switch m.op {
		case opKeep:
			return rec, opKeep, nil
		case opWrite:
			rec.Version++
			data, err := room.Encode(rec)
			if err != nil {
				return nil, opKeep, err
			}
			ok, err = s.store.CompareAndSwap(ctx, key, raw, data, s.settings.RoomTTL)
			if err != nil {
				return nil, opKeep, fmt.Errorf("commit room %s: %w", code, err)
			}
		case opRemove:
			ok, err = s.store.CompareAndDelete(ctx, key, raw)
			if err != nil {
				return nil, opKeep, fmt.Errorf("delete room %s: %w", code, err)
			}
		}
		if ok {
			s.committed(rec, m, prevPhase, prevWinner)
			return rec, m.op, nil
		}
		s.monitor.IncCommitConflict()
		logger.Log.Debugf("room %s: commit conflict on attempt %d", code, attempt+1)
	}
	return nil, opKeep, ErrConflict
}

// committed reports a successful write.
func (s *MatchService) committed(rec *room.Record, m *mutation, prevPhase room.Phase, prevWinner room.Winner) {
	if m.op == opRemove {
		s.cleanup(rec.Code, room.AuxKeys(rec.Code)...)
		logger.Log.Infof("room %s: deleted", rec.Code)
		return
	}
	if rec.Phase != prevPhase {
		logger.Log.Infof("room %s: %s -> %s", rec.Code, prevPhase, rec.Phase)
		s.monitor.IncPhaseTransition(string(rec.Phase))
	}
	if prevWinner == room.WinnerNone && rec.Decided() {
		logger.Log.Infow("match decided", "room", rec.Code, "winner", rec.Winner, "cause", m.cause)
		s.monitor.IncOutcome(string(m.cause))
		s.dispatcher.Dispatch(broadcast.OutcomeFromRecord(rec, string(m.cause), m.now))
	}
}

// cleanup deletes auxiliary keys. Failures only leave keys to expire.
func (s *MatchService) cleanup(code string, keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.Del(ctx, keys...); err != nil {
		logger.Log.Warnf("room %s: cleanup of %d keys failed: %v", code, len(keys), err)
	}
}

// observe reads the votes and heartbeats of a room.
func (s *MatchService) observe(ctx context.Context, code string, caller room.Slot) (state.Observations, error) {
	obs := state.Observations{
		Caller: caller,
		Ready:  make(map[room.Slot]string, 2),
		Losses: make(map[room.Slot]float64, 2),
	}
	keys := []string{
		room.ReadyKey(code, room.Slot1), room.ReadyKey(code, room.Slot2),
		room.LossKey(code, room.Slot1), room.LossKey(code, room.Slot2),
	}
	vals, err := s.store.MGet(ctx, keys...)
	if err != nil {
		return obs, fmt.Errorf("read room %s keys: %w", code, err)
	}
	for i, slot := range room.Slots {
		if v := vals[i]; v != nil {
			obs.Ready[slot] = string(v)
		}
		if v := vals[2+i]; v != nil {
			if offset, err := room.ParseOffset(v); err == nil {
				obs.Losses[slot] = offset
			}
		}
	}

	obs.Heartbeats, err = s.heartbeats.Heartbeats(ctx, code)
	if err != nil {
		return obs, fmt.Errorf("read room %s heartbeats: %w", code, err)
	}
	return obs, nil
}

func participant(rec *room.Record, caller persistence.Identity) (room.Slot, error) {
	slot, ok := rec.RoleOf(caller.Wallet)
	if !ok {
		return "", ErrNotAParticipant
	}
	return slot, nil
}
