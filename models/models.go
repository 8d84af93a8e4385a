// models/models.go
package models

import "github.com/wfunc/blinkduel/room"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomRequest carries the room code of a mutating call.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// RoomResponse is returned by create and join.
type RoomResponse struct {
	RoomID string       `json:"roomId"`
	Room   *room.Record `json:"room"`
}

// RecordResponse wraps a record returned by ready, blink and disconnect.
type RecordResponse struct {
	Room    *room.Record `json:"room,omitempty"`
	Deleted bool         `json:"deleted,omitempty"`
}

// StatusResponse is returned by room-status.
type StatusResponse struct {
	Room   *room.Record `json:"room"`
	MyRole room.Slot    `json:"myRole,omitempty"`
}

// VoucherResponse is the signed settlement payout.
type VoucherResponse struct {
	Success         bool   `json:"success"`
	Signature       string `json:"signature"`
	ContractAddress string `json:"contractAddress"`
	Amount          string `json:"amount"`
	CallerAddress   string `json:"callerAddress"`
	RoomID          string `json:"roomId"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
