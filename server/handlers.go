package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wfunc/blinkduel/logger"
	"github.com/wfunc/blinkduel/models"
	"github.com/wfunc/blinkduel/services"
)

const maxBody = 1 << 16

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debugf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

// statusOf maps a service error to an HTTP status and client message.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, services.ErrNoIdentity):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "Room not found"
	case errors.Is(err, services.ErrNotAParticipant):
		return http.StatusForbidden, "Not in this room"
	case errors.Is(err, services.ErrNotWinner):
		return http.StatusForbidden, "Not the winner"
	case errors.Is(err, services.ErrSelfJoin),
		errors.Is(err, services.ErrNotJoinable),
		errors.Is(err, services.ErrFull),
		errors.Is(err, services.ErrNotInPhase),
		errors.Is(err, services.ErrNotFinished),
		errors.Is(err, services.ErrNoWinner),
		errors.Is(err, services.ErrAlreadyClaimed),
		errors.Is(err, services.ErrAlreadyRefunded):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrNotConfigured):
		return http.StatusInternalServerError, "Contract not configured"
	case errors.Is(err, services.ErrCodeSpaceExhausted):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *GameServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "path", r.URL.Path, "request_id", requestID(r), "error", err)
	} else {
		logger.Log.Debugw("request rejected", "path", r.URL.Path, "request_id", requestID(r), "error", err)
	}
	writeError(w, status, msg)
}

// roomCode reads roomId from the JSON body.
func roomCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req models.RoomRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return "", false
	}
	code := strings.TrimSpace(req.RoomID)
	if code == "" {
		writeError(w, http.StatusBadRequest, "Room code required")
		return "", false
	}
	return code, true
}

func (s *GameServer) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	rec, err := s.matches.CreateRoom(r.Context(), caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RoomResponse{RoomID: rec.Code, Room: rec})
}

func (s *GameServer) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	caller, _ := IdentityFrom(r.Context())
	rec, err := s.matches.JoinRoom(r.Context(), caller, code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RoomResponse{RoomID: rec.Code, Room: rec})
}

func (s *GameServer) handlePlayerReady(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	caller, _ := IdentityFrom(r.Context())
	rec, err := s.matches.MarkReady(r.Context(), caller, code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RecordResponse{Room: rec})
}

func (s *GameServer) handleReportBlink(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	caller, _ := IdentityFrom(r.Context())
	rec, err := s.matches.ReportLoss(r.Context(), caller, code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RecordResponse{Room: rec})
}

func (s *GameServer) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("roomId"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "Room code required")
		return
	}
	caller, _ := IdentityFrom(r.Context())
	rec, slot, err := s.matches.PollStatus(r.Context(), caller, code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Room: rec, MyRole: slot})
}

func (s *GameServer) handleReportDisconnect(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	caller, _ := IdentityFrom(r.Context())
	rec, deleted, err := s.matches.Disconnect(r.Context(), caller, code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RecordResponse{Room: rec, Deleted: deleted})
}

func (s *GameServer) handleClaimWinnings(w http.ResponseWriter, r *http.Request) {
	if !s.matches.SettlementConfigured() {
		s.fail(w, r, services.ErrNotConfigured)
		return
	}
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	caller, _ := IdentityFrom(r.Context())
	v, err := s.matches.RequestSettlement(r.Context(), caller, code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.VoucherResponse{
		Success:         true,
		Signature:       v.SignatureHex(),
		ContractAddress: v.Contract,
		Amount:          v.Amount.String(),
		CallerAddress:   v.Caller,
		RoomID:          v.RoomCode,
	})
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		logger.Log.Warnw("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, models.HealthResponse{Status: "unavailable", Store: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Store: "ok"})
}
