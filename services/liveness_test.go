package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/state"
)

func TestPollStatus_Forfeit(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.playing(t)

	env.clock.Advance(env.svc.Settings().DisconnectTimeout + time.Second)
	rec, role, err := env.svc.PollStatus(ctx, alice, code)
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if role != room.Slot1 || rec.Winner != room.WinnerSlot1 || rec.Phase != room.PhaseFinished {
		t.Fatalf("Expected slot1 to win by forfeit, got role=%q winner=%q phase=%s", role, rec.Winner, rec.Phase)
	}

	late, err := env.svc.ReportLoss(ctx, bob, code)
	if err != nil || late.Winner != room.WinnerSlot1 {
		t.Errorf("A late report must not flip the forfeit, got %q %v", late.Winner, err)
	}

	env.dispatch.Wait()
	if got := env.notifier.all(); len(got) != 1 || got[0].Cause != string(state.CauseForfeit) {
		t.Errorf("Expected one forfeit notification, got %+v", got)
	}
}

func TestPollStatus_AbsentHeartbeatIsNotDisconnection(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.playing(t)
	env.store.Del(ctx, room.PingKey(code, room.Slot2))

	env.clock.Advance(env.svc.Settings().DisconnectTimeout + time.Second)
	rec, _, err := env.svc.PollStatus(ctx, alice, code)
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if rec.Decided() {
		t.Errorf("Missing heartbeat must not forfeit, got winner %q", rec.Winner)
	}
}

func TestPollStatus_HeartbeatsKeepMatchAlive(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.playing(t)

	for i := 0; i < 4; i++ {
		env.clock.Advance(4 * time.Second)
		env.svc.PollStatus(ctx, bob, code)
		rec, _, _ := env.svc.PollStatus(ctx, alice, code)
		if rec.Decided() {
			t.Fatalf("Live players must not forfeit, decided %q after %d rounds", rec.Winner, i+1)
		}
		if rec.Slot2.LastHeartbeat != room.Millis(env.clock.Now()) {
			t.Errorf("Expected the opponent heartbeat in the response")
		}
	}
}

func TestPollStatus_DurationCap(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.playing(t)

	for elapsed := time.Duration(0); elapsed < env.svc.Settings().MaxDuration; elapsed += 5 * time.Second {
		env.clock.Advance(5 * time.Second)
		env.svc.PollStatus(ctx, bob, code)
		env.svc.PollStatus(ctx, alice, code)
	}
	env.clock.Advance(time.Second)
	rec, _, err := env.svc.PollStatus(ctx, alice, code)
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if rec.Winner != room.WinnerDraw || rec.Phase != room.PhaseFinished {
		t.Errorf("Expected a draw at the cap, got winner=%q phase=%s", rec.Winner, rec.Phase)
	}
}

// Leaving a waiting room deletes it.
func TestDisconnect_WaitingDeletes(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	created, _ := env.svc.CreateRoom(ctx, alice)
	env.svc.PollStatus(ctx, alice, created.Code)

	rec, deleted, err := env.svc.Disconnect(ctx, alice, created.Code)
	if err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if !deleted || rec != nil {
		t.Fatalf("Expected deletion, got %v %+v", deleted, rec)
	}
	if _, _, err := env.svc.PollStatus(ctx, alice, created.Code); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after deletion, got %v", err)
	}
	for _, k := range room.AuxKeys(created.Code) {
		if ok, _ := env.store.Exists(ctx, k); ok {
			t.Errorf("Aux key %s survived deletion", k)
		}
	}
}

func TestDisconnect_Slot2LeavesLobby(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.lobby(t)
	env.svc.MarkReady(ctx, alice, code)
	env.svc.MarkReady(ctx, bob, code)
	env.svc.PollStatus(ctx, bob, code)

	rec, deleted, err := env.svc.Disconnect(ctx, bob, code)
	if err != nil || deleted {
		t.Fatalf("Disconnect failed: %v deleted=%v", err, deleted)
	}
	if rec.Phase != room.PhaseWaiting || rec.Slot2.Occupied() || rec.Slot1.Ready || rec.PlayStartAt != 0 {
		t.Fatalf("Expected the lobby to regress to waiting, got %+v", rec)
	}
	for _, k := range []string{room.ReadyKey(code, room.Slot1), room.ReadyKey(code, room.Slot2), room.PingKey(code, room.Slot2)} {
		if ok, _ := env.store.Exists(ctx, k); ok {
			t.Errorf("Key %s should be cleared", k)
		}
	}

	joined, err := env.svc.JoinRoom(ctx, mallory, code)
	if err != nil {
		t.Fatalf("A new player should be able to join, got %v", err)
	}
	if joined.Slot1.Ready || joined.Slot2.Ready {
		t.Errorf("Stale votes leaked into the new lobby: %+v", joined)
	}
}

func TestDisconnect_Slot1LeavesLobby(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.lobby(t)

	rec, _, err := env.svc.Disconnect(ctx, alice, code)
	if err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if rec.Phase != room.PhaseFinished || rec.Winner != room.WinnerSlot2 {
		t.Errorf("Expected slot2 to inherit the match, got winner=%q phase=%s", rec.Winner, rec.Phase)
	}
}

func TestDisconnect_DuringPlay(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.playing(t)

	env.clock.Advance(time.Second)
	rec, _, err := env.svc.Disconnect(ctx, alice, code)
	if err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if rec.Winner != room.WinnerSlot2 {
		t.Fatalf("Expected opponent to win, got %q", rec.Winner)
	}

	again, _, err := env.svc.Disconnect(ctx, bob, code)
	if err != nil || again.Winner != room.WinnerSlot2 || again.Version != rec.Version {
		t.Errorf("Disconnect after the match must be a no-op, got %+v %v", again, err)
	}

	env.dispatch.Wait()
	if got := env.notifier.all(); len(got) != 1 || got[0].Cause != string(state.CauseDisconnect) {
		t.Errorf("Expected one disconnect notification, got %+v", got)
	}
}

func TestDisconnect_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.lobby(t)

	if _, _, err := env.svc.Disconnect(ctx, mallory, code); !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("Expected ErrNotAParticipant, got %v", err)
	}
	if _, _, err := env.svc.Disconnect(ctx, alice, "000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDisconnect_RejoinerKeepsFreshVote(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.lobby(t)
	env.svc.MarkReady(ctx, bob, code)

	if _, _, err := env.svc.Disconnect(ctx, bob, code); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	// bob's vote landing after he left must not carry over.
	env.store.Set(ctx, room.ReadyKey(code, room.Slot2), []byte(bob.Wallet), time.Minute)

	if _, err := env.svc.JoinRoom(ctx, mallory, code); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	rec, err := env.svc.MarkReady(ctx, alice, code)
	if err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}
	if rec.Slot2.Ready || rec.Phase != room.PhaseReadyCheck {
		t.Fatalf("A departed player's vote readied the new occupant: %+v", rec)
	}

	rec, err = env.svc.MarkReady(ctx, mallory, code)
	if err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}
	if !rec.Slot2.Ready || rec.Phase != room.PhaseCountdown {
		t.Fatalf("Expected the new occupant's vote to start the countdown, got %+v", rec)
	}
}
