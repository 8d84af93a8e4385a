package state

import "time"

// Settings holds the timing constants of a duel.
type Settings struct {
	Countdown         time.Duration
	MaxDuration       time.Duration
	DrawThreshold     time.Duration
	DisconnectTimeout time.Duration
	RoomTTL           time.Duration
	LossSettleDelay   time.Duration
}

// DefaultSettings returns the production timing.
func DefaultSettings() Settings {
	return Settings{
		Countdown:         3 * time.Second,
		MaxDuration:       20 * time.Second,
		DrawThreshold:     300 * time.Millisecond,
		DisconnectTimeout: 10 * time.Second,
		RoomTTL:           10 * time.Minute,
		LossSettleDelay:   500 * time.Millisecond,
	}
}
