package room

// Key is the store key of the match record.
func Key(code string) string {
	return "room:" + code
}

// ReadyKey holds the ready vote of one slot.
func ReadyKey(code string, s Slot) string {
	return "ready:" + code + ":" + string(s)
}

// LossKey holds the loss offset reported by one slot.
func LossKey(code string, s Slot) string {
	return "loss:" + code + ":" + string(s)
}

// PingKey holds the last heartbeat of one slot.
func PingKey(code string, s Slot) string {
	return "ping:" + code + ":" + string(s)
}

// AuxKeys lists every per-actor key of a room.
func AuxKeys(code string) []string {
	keys := make([]string, 0, 6)
	for _, s := range Slots {
		keys = append(keys, ReadyKey(code, s), LossKey(code, s), PingKey(code, s))
	}
	return keys
}
