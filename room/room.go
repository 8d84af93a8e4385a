// room/room.go
package room

import "time"

// Phase is the coarse lifecycle stage of a match.
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseReadyCheck Phase = "ready_check"
	PhaseCountdown  Phase = "countdown"
	PhasePlaying    Phase = "playing"
	PhaseFinished   Phase = "finished"
)

// Slot identifies one of the two participant positions.
type Slot string

const (
	Slot1 Slot = "slot1"
	Slot2 Slot = "slot2"
)

// Slots lists both positions in record order.
var Slots = [2]Slot{Slot1, Slot2}

// Opponent returns the other slot.
func (s Slot) Opponent() Slot {
	if s == Slot1 {
		return Slot2
	}
	return Slot1
}

// Valid reports whether s names a real slot.
func (s Slot) Valid() bool {
	return s == Slot1 || s == Slot2
}

// Winner is the decided outcome of a match. The zero value means undecided.
type Winner string

const (
	WinnerNone  Winner = ""
	WinnerSlot1 Winner = "slot1"
	WinnerSlot2 Winner = "slot2"
	WinnerDraw  Winner = "draw"
)

// WinnerFor returns the winner value naming slot s.
func WinnerFor(s Slot) Winner {
	return Winner(s)
}

// Slot returns the winning slot and false for a draw or an undecided match.
func (w Winner) Slot() (Slot, bool) {
	switch w {
	case WinnerSlot1:
		return Slot1, true
	case WinnerSlot2:
		return Slot2, true
	}
	return "", false
}

// Player is one occupied (or empty) slot of a match.
type Player struct {
	Wallet        string   `json:"wallet"`
	Name          string   `json:"name"`
	Ready         bool     `json:"ready"`
	Lost          bool     `json:"lost"`
	LossOffset    *float64 `json:"lossOffset"`
	LastHeartbeat int64    `json:"lastHeartbeat"`
}

// Occupied reports whether a participant holds the slot.
func (p *Player) Occupied() bool {
	return p.Wallet != ""
}

// Settlement tracks which payouts have already been authorized.
type Settlement struct {
	Slot1Claimed  bool `json:"slot1Claimed"`
	Slot2Claimed  bool `json:"slot2Claimed"`
	Slot1Refunded bool `json:"slot1Refunded"`
	Slot2Refunded bool `json:"slot2Refunded"`
}

// Claimed reports whether slot s already received a win voucher.
func (st *Settlement) Claimed(s Slot) bool {
	if s == Slot1 {
		return st.Slot1Claimed
	}
	return st.Slot2Claimed
}

// SetClaimed marks the win voucher of slot s as issued.
func (st *Settlement) SetClaimed(s Slot) {
	if s == Slot1 {
		st.Slot1Claimed = true
		return
	}
	st.Slot2Claimed = true
}

// Refunded reports whether slot s already received a draw refund voucher.
func (st *Settlement) Refunded(s Slot) bool {
	if s == Slot1 {
		return st.Slot1Refunded
	}
	return st.Slot2Refunded
}

// SetRefunded marks the draw refund voucher of slot s as issued.
func (st *Settlement) SetRefunded(s Slot) {
	if s == Slot1 {
		st.Slot1Refunded = true
		return
	}
	st.Slot2Refunded = true
}

// Record is the single live match record stored under Key(Code).
// Timestamps are unix milliseconds; zero means unset.
type Record struct {
	Code         string     `json:"code"`
	Phase        Phase      `json:"phase"`
	Slot1        Player     `json:"slot1"`
	Slot2        Player     `json:"slot2"`
	PhaseStartAt int64      `json:"phaseStartAt"`
	PlayStartAt  int64      `json:"playStartAt"`
	Winner       Winner     `json:"winner"`
	Settlement   Settlement `json:"settlement"`
	CreatedAt    int64      `json:"createdAt"`
	Version      int64      `json:"version"`
}

// NewRecord returns a waiting record with the creator in slot1.
func NewRecord(code, wallet, name string, now time.Time) *Record {
	ms := Millis(now)
	return &Record{
		Code:  code,
		Phase: PhaseWaiting,
		Slot1: Player{
			Wallet:        wallet,
			Name:          name,
			LastHeartbeat: ms,
		},
		CreatedAt: ms,
	}
}

// Player returns the slot s of the record.
func (r *Record) Player(s Slot) *Player {
	if s == Slot1 {
		return &r.Slot1
	}
	return &r.Slot2
}

// RoleOf returns the slot occupied by wallet.
func (r *Record) RoleOf(wallet string) (Slot, bool) {
	if wallet == "" {
		return "", false
	}
	switch wallet {
	case r.Slot1.Wallet:
		return Slot1, true
	case r.Slot2.Wallet:
		return Slot2, true
	}
	return "", false
}

// Decided reports whether the winner has been set.
func (r *Record) Decided() bool {
	return r.Winner != WinnerNone
}

// PlayStart returns the authoritative play start and false when no
// countdown has been scheduled yet.
func (r *Record) PlayStart() (time.Time, bool) {
	if r.PlayStartAt == 0 {
		return time.Time{}, false
	}
	return FromMillis(r.PlayStartAt), true
}

// Millis converts t to unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts unix milliseconds to a time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
