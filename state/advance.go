package state

import (
	"math"
	"time"

	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/session"
)

// Cause names how a winner was decided.
type Cause string

const (
	CauseNone          Cause = ""
	CauseLoss          Cause = "loss"
	CauseDrawThreshold Cause = "draw_threshold"
	CauseForfeit       Cause = "forfeit"
	CauseDurationCap   Cause = "duration_cap"
	CauseDisconnect    Cause = "disconnect"
)

// Observations are the per-actor keys read next to the record.
type Observations struct {
	// Caller is the slot of the polling participant, empty for anyone else.
	Caller room.Slot
	// Ready maps a slot to the wallet that voted ready for it.
	Ready  map[room.Slot]string
	Losses map[room.Slot]float64
	// Heartbeats holds the last ping of each slot that has one.
	Heartbeats map[room.Slot]time.Time
}

// Result describes what Advance changed.
type Result struct {
	Changed bool
	// Started is set when the countdown was scheduled by this call.
	Started bool
	Cause   Cause
}

// Decided reports whether this call set the winner.
func (r Result) Decided() bool {
	return r.Cause != CauseNone
}

// Playing reports whether rec is in play at now. A countdown whose play
// start has passed counts as playing.
func Playing(rec *room.Record, now time.Time) bool {
	switch rec.Phase {
	case room.PhasePlaying:
		return true
	case room.PhaseCountdown:
		start, ok := rec.PlayStart()
		return ok && !now.Before(start)
	}
	return false
}

// Elapsed returns the time since play start.
func Elapsed(rec *room.Record, now time.Time) time.Duration {
	start, ok := rec.PlayStart()
	if !ok {
		return 0
	}
	return now.Sub(start)
}

// ScheduleCountdown moves a ready_check record with both votes to countdown.
func ScheduleCountdown(rec *room.Record, now time.Time, s Settings) bool {
	if rec.Phase != room.PhaseReadyCheck || !rec.Slot1.Ready || !rec.Slot2.Ready {
		return false
	}
	if err := ChangePhase(rec, room.PhaseCountdown, now); err != nil {
		return false
	}
	rec.PlayStartAt = room.Millis(now.Add(s.Countdown))
	return true
}

// StartPlay moves a countdown record to playing once its play start passed.
func StartPlay(rec *room.Record, now time.Time) bool {
	if rec.Phase != room.PhaseCountdown || !Playing(rec, now) {
		return false
	}
	if err := ChangePhase(rec, room.PhasePlaying, now); err != nil {
		return false
	}
	rec.PhaseStartAt = rec.PlayStartAt
	return true
}

// Decide sets the winner and finishes rec. A decided record is left alone.
func Decide(rec *room.Record, w room.Winner, now time.Time) bool {
	if rec.Decided() || w == room.WinnerNone {
		return false
	}
	rec.Winner = w
	if err := ChangePhase(rec, room.PhaseFinished, now); err != nil {
		rec.Winner = room.WinnerNone
		return false
	}
	return true
}

// Adjudicate decides rec from the reported loss offsets. Both present within
// threshold is a draw, otherwise the smaller offset loses. A single report
// loses to the silent opponent.
func Adjudicate(rec *room.Record, losses map[room.Slot]float64, threshold time.Duration, now time.Time) Cause {
	if rec.Decided() || len(losses) == 0 {
		return CauseNone
	}
	StartPlay(rec, now)

	o1, has1 := losses[room.Slot1]
	o2, has2 := losses[room.Slot2]

	var (
		w     room.Winner
		cause = CauseLoss
	)
	switch {
	case has1 && has2:
		diff := math.Round(math.Abs(o1-o2) * 1000)
		switch {
		case diff <= float64(threshold.Milliseconds()):
			w, cause = room.WinnerDraw, CauseDrawThreshold
		case o1 < o2:
			w = room.WinnerSlot2
		default:
			w = room.WinnerSlot1
		}
	case has1:
		w = room.WinnerSlot2
	default:
		w = room.WinnerSlot1
	}

	if !Decide(rec, w, now) {
		return CauseNone
	}
	for slot, offset := range losses {
		p := rec.Player(slot)
		p.Lost = true
		o := offset
		p.LossOffset = &o
	}
	return cause
}

// Stranded reports whether the latest loss report is older than the settle
// delay. Such a report belongs to a request that never committed.
func Stranded(rec *room.Record, losses map[room.Slot]float64, now time.Time, s Settings) bool {
	start, ok := rec.PlayStart()
	if !ok || len(losses) == 0 {
		return false
	}
	latest := math.Inf(-1)
	for _, o := range losses {
		latest = math.Max(latest, o)
	}
	reported := start.Add(time.Duration(latest * float64(time.Second)))
	return now.Sub(reported) > s.LossSettleDelay
}

// MergeReady copies ready votes into a ready_check record. A vote counts
// only for the wallet that cast it, so a departed player's vote never
// readies whoever takes the slot next.
func MergeReady(rec *room.Record, ready map[room.Slot]string) bool {
	if rec.Phase != room.PhaseReadyCheck {
		return false
	}
	changed := false
	for _, slot := range room.Slots {
		p := rec.Player(slot)
		if p.Occupied() && !p.Ready && ready[slot] == p.Wallet {
			p.Ready = true
			changed = true
		}
	}
	return changed
}

// Pending reports whether a loss report made during play may still be
// adjudicated by its own request.
func Pending(losses map[room.Slot]float64, s Settings) bool {
	for _, o := range losses {
		if math.Round(o*1000) <= float64(s.MaxDuration.Milliseconds()) {
			return true
		}
	}
	return false
}

// Advance brings rec up to date with now. It is a pure function of its
// inputs; the caller commits the record when Changed is set.
func Advance(rec *room.Record, now time.Time, s Settings, obs Observations) Result {
	var res Result

	if MergeReady(rec, obs.Ready) {
		res.Changed = true
	}
	if ScheduleCountdown(rec, now, s) {
		res.Changed, res.Started = true, true
	}
	if StartPlay(rec, now) {
		res.Changed = true
	}
	if rec.Phase != room.PhasePlaying || rec.Decided() {
		return res
	}

	if Stranded(rec, obs.Losses, now, s) {
		if cause := Adjudicate(rec, obs.Losses, s.DrawThreshold, now); cause != CauseNone {
			res.Changed, res.Cause = true, cause
			return res
		}
	}
	if Pending(obs.Losses, s) {
		// The reporter settles it; neither a forfeit nor the cap may preempt it.
		return res
	}

	w, cause := room.WinnerNone, CauseNone
	if obs.Caller.Valid() {
		if last, ok := obs.Heartbeats[obs.Caller.Opponent()]; ok && session.Stale(last, now, s.DisconnectTimeout) {
			w, cause = room.WinnerFor(obs.Caller), CauseForfeit
		}
	}
	if Elapsed(rec, now) > s.MaxDuration {
		w, cause = room.WinnerDraw, CauseDurationCap
	}
	if Decide(rec, w, now) {
		res.Changed, res.Cause = true, cause
	}
	return res
}
