// broadcast/broadcast.go
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/blinkduel/logger"
	"github.com/wfunc/blinkduel/room"
)

var (
	ErrNotConfigured = errors.New("notifier not configured")
)

// Participant is one side of a decided match.
type Participant struct {
	Slot   room.Slot `json:"slot"`
	Wallet string    `json:"wallet"`
	Name   string    `json:"name"`
}

// Outcome is published once per match when its winner is decided.
type Outcome struct {
	RoomCode string        `json:"roomCode"`
	Winner   room.Winner   `json:"winner"`
	Cause    string        `json:"cause"`
	Players  []Participant `json:"players"`
	// Elapsed is the play time in seconds at the decision.
	Elapsed   float64   `json:"elapsed"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Result returns "win", "lose" or "draw" from the view of slot.
func (o Outcome) Result(slot room.Slot) string {
	if o.Winner == room.WinnerDraw {
		return "draw"
	}
	if o.Winner == room.WinnerFor(slot) {
		return "win"
	}
	return "lose"
}

// OutcomeFromRecord builds the outcome of a decided record.
func OutcomeFromRecord(rec *room.Record, cause string, now time.Time) Outcome {
	o := Outcome{
		RoomCode:  rec.Code,
		Winner:    rec.Winner,
		Cause:     cause,
		DecidedAt: now,
	}
	if start, ok := rec.PlayStart(); ok && now.After(start) {
		o.Elapsed = now.Sub(start).Seconds()
	}
	for _, s := range room.Slots {
		p := rec.Player(s)
		if !p.Occupied() {
			continue
		}
		o.Players = append(o.Players, Participant{Slot: s, Wallet: p.Wallet, Name: p.Name})
	}
	return o
}

// 广播接口
type Notifier interface {
	Notify(ctx context.Context, o Outcome) error
}

// Dispatcher fans an outcome out to every notifier in the background.
// Failures are logged and never reach the caller.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewDispatcher returns a dispatcher that bounds each delivery by timeout.
func NewDispatcher(timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifiers: notifiers, timeout: timeout}
}

// Dispatch delivers o asynchronously. A nil dispatcher drops it.
func (d *Dispatcher) Dispatch(o Outcome) {
	if d == nil {
		return
	}
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := n.Notify(ctx, o); err != nil {
				logger.Log.Warnw("outcome notification failed", "room", o.RoomCode, "winner", o.Winner, "error", err)
			}
		}(n)
	}
}

// Wait blocks until every pending delivery finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
