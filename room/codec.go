package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMalformedRecord is returned when a stored value is not a match record.
var ErrMalformedRecord = errors.New("malformed room record")

// Encode serializes a record to its stored representation.
func Encode(r *Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", r.Code, err)
	}
	return data, nil
}

// Decode parses a stored record.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if r.Code == "" || r.Phase == "" {
		return nil, ErrMalformedRecord
	}
	return &r, nil
}

// FormatOffset encodes a loss offset for its per-slot key.
func FormatOffset(seconds float64) []byte {
	return []byte(strconv.FormatFloat(seconds, 'f', -1, 64))
}

// ParseOffset decodes a loss offset key value.
func ParseOffset(data []byte) (float64, error) {
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, fmt.Errorf("parse loss offset %q: %w", data, err)
	}
	return v, nil
}

// FormatHeartbeat encodes a heartbeat time as unix milliseconds.
func FormatHeartbeat(t time.Time) []byte {
	return []byte(strconv.FormatInt(Millis(t), 10))
}

// ParseHeartbeat decodes a heartbeat key value.
func ParseHeartbeat(data []byte) (time.Time, error) {
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse heartbeat %q: %w", data, err)
	}
	return FromMillis(ms), nil
}
