package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/blinkduel/models"
	"github.com/wfunc/blinkduel/monitor"
	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/services"
	"github.com/wfunc/blinkduel/settlement"
	"github.com/wfunc/blinkduel/state"
)

const (
	aliceWallet = "0x1111111111111111111111111111111111111111"
	bobWallet   = "0x2222222222222222222222222222222222222222"
)

type testServer struct {
	http  *httptest.Server
	clock *clockwork.FakeClock
	store *persistence.MemoryStore
}

func newTestServer(t *testing.T, withSigner bool) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	store := persistence.NewMemoryStore(clock)

	settings := state.DefaultSettings()
	settings.LossSettleDelay = 0
	opts := services.Options{Settings: settings, Clock: clock}
	if withSigner {
		signer, err := settlement.NewSigner("0x0000000000000000000000000000000000000000000000000000000000000001", "0x000000000000000000000000000000000000dEaD")
		if err != nil {
			t.Fatalf("NewSigner failed: %v", err)
		}
		payouts, err := settlement.ParsePayouts("1", "1.9")
		if err != nil {
			t.Fatalf("ParsePayouts failed: %v", err)
		}
		opts.Signer = signer
		opts.Payouts = payouts
	}
	matches := services.NewMatchService(store, opts)

	dir := persistence.NewStaticDirectory(map[string]persistence.Identity{
		"tok-alice": {Wallet: aliceWallet, DisplayName: "alice"},
		"tok-bob":   {Wallet: bobWallet, DisplayName: "bob"},
	})
	gs := NewGameServer("", matches, store, NewSessionAuth(dir), Options{Monitor: monitor.NewMonitor("test")})
	srv := httptest.NewServer(gs.Handler())
	t.Cleanup(srv.Close)
	return &testServer{http: srv, clock: clock, store: store}
}

func (ts *testServer) call(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.http.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Errorf("Expected %s header on %s", HeaderRequestID, path)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Decode %s failed: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestServer_Unauthenticated(t *testing.T) {
	ts := newTestServer(t, true)
	var e models.ErrorResponse
	if code := ts.call(t, http.MethodPost, "/api/pvp/create-room", "", nil, &e); code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", code)
	}
	if code := ts.call(t, http.MethodPost, "/api/pvp/create-room", "tok-nobody", nil, &e); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unknown token, got %d", code)
	}
	if e.Error != "Unauthorized" {
		t.Errorf("Unexpected error body %q", e.Error)
	}
}

func TestServer_FullMatch(t *testing.T) {
	ts := newTestServer(t, true)

	var created models.RoomResponse
	if code := ts.call(t, http.MethodPost, "/api/pvp/create-room", "tok-alice", nil, &created); code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", code)
	}
	roomID := created.RoomID
	if roomID == "" || created.Room.Phase != room.PhaseWaiting {
		t.Fatalf("Unexpected create response %+v", created)
	}

	var joined models.RoomResponse
	if code := ts.call(t, http.MethodPost, "/api/pvp/join-room", "tok-bob", models.RoomRequest{RoomID: roomID}, &joined); code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", code)
	}
	if joined.Room.Phase != room.PhaseReadyCheck {
		t.Errorf("Expected ready_check, got %s", joined.Room.Phase)
	}

	for _, tok := range []string{"tok-alice", "tok-bob"} {
		var r models.RecordResponse
		if code := ts.call(t, http.MethodPost, "/api/pvp/player-ready", tok, models.RoomRequest{RoomID: roomID}, &r); code != http.StatusOK {
			t.Fatalf("ready(%s): expected 200, got %d", tok, code)
		}
	}

	ts.clock.Advance(3 * time.Second)

	var status models.StatusResponse
	if code := ts.call(t, http.MethodGet, "/api/pvp/room-status?roomId="+roomID, "tok-alice", nil, &status); code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", code)
	}
	if status.Room.Phase != room.PhasePlaying || status.MyRole != room.Slot1 {
		t.Errorf("Expected playing as slot1, got %s %s", status.Room.Phase, status.MyRole)
	}

	ts.clock.Advance(2 * time.Second)
	var blink models.RecordResponse
	if code := ts.call(t, http.MethodPost, "/api/pvp/report-blink", "tok-bob", models.RoomRequest{RoomID: roomID}, &blink); code != http.StatusOK {
		t.Fatalf("blink: expected 200, got %d", code)
	}
	if blink.Room.Phase != room.PhaseFinished || blink.Room.Winner != room.WinnerSlot1 {
		t.Fatalf("Expected slot1 to win, got %s %s", blink.Room.Phase, blink.Room.Winner)
	}

	var e models.ErrorResponse
	if code := ts.call(t, http.MethodPost, "/api/pvp/claim-winnings", "tok-bob", models.RoomRequest{RoomID: roomID}, &e); code != http.StatusForbidden {
		t.Errorf("loser claim: expected 403, got %d", code)
	}

	var v models.VoucherResponse
	if code := ts.call(t, http.MethodPost, "/api/pvp/claim-winnings", "tok-alice", models.RoomRequest{RoomID: roomID}, &v); code != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d", code)
	}
	if !v.Success || v.Amount != "1900000000000000000" || len(v.Signature) != 132 || v.RoomID != roomID {
		t.Errorf("Unexpected voucher %+v", v)
	}

	if code := ts.call(t, http.MethodPost, "/api/pvp/claim-winnings", "tok-alice", models.RoomRequest{RoomID: roomID}, &e); code != http.StatusBadRequest {
		t.Errorf("second claim: expected 400, got %d", code)
	}
}

func TestServer_BadRequests(t *testing.T) {
	ts := newTestServer(t, true)
	var e models.ErrorResponse

	if code := ts.call(t, http.MethodPost, "/api/pvp/join-room", "tok-bob", models.RoomRequest{}, &e); code != http.StatusBadRequest {
		t.Errorf("missing roomId: expected 400, got %d", code)
	}
	if code := ts.call(t, http.MethodGet, "/api/pvp/room-status", "tok-bob", nil, &e); code != http.StatusBadRequest {
		t.Errorf("missing query: expected 400, got %d", code)
	}
	if code := ts.call(t, http.MethodPost, "/api/pvp/join-room", "tok-bob", models.RoomRequest{RoomID: "000000"}, &e); code != http.StatusNotFound {
		t.Errorf("unknown room: expected 404, got %d", code)
	}
	if e.Error != "Room not found" {
		t.Errorf("Unexpected error body %q", e.Error)
	}

	var created models.RoomResponse
	ts.call(t, http.MethodPost, "/api/pvp/create-room", "tok-alice", nil, &created)
	if code := ts.call(t, http.MethodPost, "/api/pvp/join-room", "tok-alice", models.RoomRequest{RoomID: created.RoomID}, &e); code != http.StatusBadRequest {
		t.Errorf("self join: expected 400, got %d", code)
	}
	if code := ts.call(t, http.MethodPost, "/api/pvp/report-blink", "tok-alice", models.RoomRequest{RoomID: created.RoomID}, &e); code != http.StatusBadRequest {
		t.Errorf("blink while waiting: expected 400, got %d", code)
	}
}

func TestServer_DisconnectWaitingDeletes(t *testing.T) {
	ts := newTestServer(t, true)
	var created models.RoomResponse
	ts.call(t, http.MethodPost, "/api/pvp/create-room", "tok-alice", nil, &created)

	var r models.RecordResponse
	if code := ts.call(t, http.MethodPost, "/api/pvp/report-disconnect", "tok-alice", models.RoomRequest{RoomID: created.RoomID}, &r); code != http.StatusOK {
		t.Fatalf("disconnect: expected 200, got %d", code)
	}
	if !r.Deleted || r.Room != nil {
		t.Errorf("Expected deleted response, got %+v", r)
	}
	var e models.ErrorResponse
	if code := ts.call(t, http.MethodGet, "/api/pvp/room-status?roomId="+created.RoomID, "tok-alice", nil, &e); code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", code)
	}
}

func TestServer_ClaimNotConfigured(t *testing.T) {
	ts := newTestServer(t, false)
	var e models.ErrorResponse
	if code := ts.call(t, http.MethodPost, "/api/pvp/claim-winnings", "tok-alice", models.RoomRequest{RoomID: "123456"}, &e); code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", code)
	}
	if e.Error != "Contract not configured" {
		t.Errorf("Unexpected error body %q", e.Error)
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, true)
	var h models.HealthResponse
	if code := ts.call(t, http.MethodGet, "/health", "", nil, &h); code != http.StatusOK || h.Status != "ok" {
		t.Errorf("Expected healthy, got %d %+v", code, h)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, true)
	if code := ts.call(t, http.MethodGet, "/api/pvp/create-room", "tok-alice", nil, nil); code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", code)
	}
}

func TestGatewayAuth(t *testing.T) {
	auth := NewGatewayAuth("shared")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer shared")
	req.Header.Set(HeaderWallet, "0xABCdef0000000000000000000000000000000000")
	id, err := auth.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if id.Wallet != "0xabcdef0000000000000000000000000000000000" || id.DisplayName != "Player" {
		t.Errorf("Unexpected identity %+v", id)
	}

	req.Header.Set("Authorization", "Bearer wrong")
	if _, err := auth.Authenticate(req); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated for wrong token, got %v", err)
	}

	req.Header.Set("Authorization", "Bearer shared")
	req.Header.Del(HeaderWallet)
	if _, err := auth.Authenticate(req); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated without wallet, got %v", err)
	}

	if _, err := NewGatewayAuth("").Authenticate(req); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Empty gateway token must reject, got %v", err)
	}
}

type failingDirectory struct{}

func (failingDirectory) LookupSession(context.Context, string) (*persistence.Identity, error) {
	return nil, errors.New("connection refused")
}

func (failingDirectory) Close() error { return nil }

func TestSessionAuth_DirectoryError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	_, err := NewSessionAuth(failingDirectory{}).Authenticate(req)
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Expected a lookup error, got %v", err)
	}
	if status, _ := statusOf(err); status != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", status)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrNotAParticipant, http.StatusForbidden},
		{services.ErrNotWinner, http.StatusForbidden},
		{services.ErrFull, http.StatusBadRequest},
		{services.ErrAlreadyRefunded, http.StatusBadRequest},
		{services.ErrConflict, http.StatusConflict},
		{services.ErrNotConfigured, http.StatusInternalServerError},
		{services.ErrCodeSpaceExhausted, http.StatusServiceUnavailable},
		{ErrUnauthenticated, http.StatusUnauthorized},
	}
	for _, c := range cases {
		if status, _ := statusOf(c.err); status != c.status {
			t.Errorf("statusOf(%v): expected %d, got %d", c.err, c.status, status)
		}
	}
}
