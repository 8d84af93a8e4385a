// session/session.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
)

// Tracker records participant heartbeats in per-slot keys, so a poll
// never has to rewrite the match record just to prove liveness.
type Tracker struct {
	store persistence.Store
	clock clockwork.Clock
	ttl   time.Duration
}

// NewTracker returns a tracker whose keys live for ttl.
func NewTracker(store persistence.Store, clock clockwork.Clock, ttl time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{store: store, clock: clock, ttl: ttl}
}

// Beat stamps the heartbeat of slot in room code.
func (t *Tracker) Beat(ctx context.Context, code string, slot room.Slot) (time.Time, error) {
	now := t.clock.Now()
	if err := t.store.Set(ctx, room.PingKey(code, slot), room.FormatHeartbeat(now), t.ttl); err != nil {
		return now, fmt.Errorf("heartbeat %s/%s: %w", code, slot, err)
	}
	return now, nil
}

// Heartbeats returns the last heartbeat of every slot that has one.
// Unparseable values are treated as absent.
func (t *Tracker) Heartbeats(ctx context.Context, code string) (map[room.Slot]time.Time, error) {
	vals, err := t.store.MGet(ctx, room.PingKey(code, room.Slot1), room.PingKey(code, room.Slot2))
	if err != nil {
		return nil, err
	}
	out := make(map[room.Slot]time.Time, 2)
	for i, slot := range room.Slots {
		if vals[i] == nil {
			continue
		}
		if ts, err := room.ParseHeartbeat(vals[i]); err == nil {
			out[slot] = ts
		}
	}
	return out, nil
}

// Forget removes the heartbeats of slots.
func (t *Tracker) Forget(ctx context.Context, code string, slots ...room.Slot) error {
	keys := make([]string, 0, len(slots))
	for _, s := range slots {
		keys = append(keys, room.PingKey(code, s))
	}
	return t.store.Del(ctx, keys...)
}

// Stale reports whether a heartbeat at last is older than timeout at now.
func Stale(last, now time.Time, timeout time.Duration) bool {
	return now.Sub(last) > timeout
}
