package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/settlement"
)

func finishedRecord(env *testEnv, w room.Winner) *room.Record {
	rec := room.NewRecord("777777", alice.Wallet, "alice", env.clock.Now())
	rec.Slot2 = room.Player{Wallet: bob.Wallet, Name: "bob"}
	rec.Phase = room.PhaseFinished
	rec.Winner = w
	return rec
}

func TestRequestSettlement_ClaimTwice(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.putRecord(t, finishedRecord(env, room.WinnerSlot2))

	v, err := env.svc.RequestSettlement(ctx, bob, "777777")
	if err != nil {
		t.Fatalf("RequestSettlement failed: %v", err)
	}
	if v.Amount.String() != "1900000000000000000" || v.Contract != testContract || v.RoomCode != "777777" {
		t.Errorf("Unexpected voucher %+v", v)
	}

	if _, err := env.svc.RequestSettlement(ctx, bob, "777777"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("Expected ErrAlreadyClaimed, got %v", err)
	}

	again, err := env.signer.Sign("777777", bob.Wallet, v.Amount)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !bytes.Equal(again.Signature, v.Signature) {
		t.Error("Voucher must be reproducible for the same tuple")
	}

	addr, _ := settlement.ParseAddress(bob.Wallet)
	digest, _ := settlement.ClaimDigest("777777", addr, v.Amount)
	signer, err := settlement.Recover(settlement.PersonalMessageHash(digest), v.Signature)
	if err != nil || signer != env.signer.Address() {
		t.Errorf("Voucher should recover to the signer, got %s %v", signer, err)
	}
}

func TestRequestSettlement_Loser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putRecord(t, finishedRecord(env, room.WinnerSlot2))

	if _, err := env.svc.RequestSettlement(context.Background(), alice, "777777"); !errors.Is(err, ErrNotWinner) {
		t.Errorf("Expected ErrNotWinner, got %v", err)
	}
}

func TestRequestSettlement_DrawRefundsEachSide(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.putRecord(t, finishedRecord(env, room.WinnerDraw))

	va, err := env.svc.RequestSettlement(ctx, alice, "777777")
	if err != nil {
		t.Fatalf("Refund for alice failed: %v", err)
	}
	vb, err := env.svc.RequestSettlement(ctx, bob, "777777")
	if err != nil {
		t.Fatalf("Refund for bob failed: %v", err)
	}
	if va.Amount.String() != "1000000000000000000" || vb.Amount.String() != "1000000000000000000" {
		t.Errorf("Expected stake refunds, got %s / %s", va.Amount, vb.Amount)
	}
	if bytes.Equal(va.Signature, vb.Signature) {
		t.Error("Refund vouchers must be bound to the caller")
	}

	if _, err := env.svc.RequestSettlement(ctx, alice, "777777"); !errors.Is(err, ErrAlreadyRefunded) {
		t.Errorf("Expected ErrAlreadyRefunded, got %v", err)
	}
}

func TestRequestSettlement_Preconditions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.svc.RequestSettlement(ctx, bob, "000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	code := env.lobby(t)
	if _, err := env.svc.RequestSettlement(ctx, bob, code); !errors.Is(err, ErrNotFinished) {
		t.Errorf("Expected ErrNotFinished, got %v", err)
	}

	env.putRecord(t, finishedRecord(env, room.WinnerNone))
	if _, err := env.svc.RequestSettlement(ctx, bob, "777777"); !errors.Is(err, ErrNoWinner) {
		t.Errorf("Expected ErrNoWinner, got %v", err)
	}

	env.putRecord(t, finishedRecord(env, room.WinnerSlot1))
	if _, err := env.svc.RequestSettlement(ctx, mallory, "777777"); !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("Expected ErrNotAParticipant, got %v", err)
	}
}

func TestRequestSettlement_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Signer = nil })
	env.putRecord(t, finishedRecord(env, room.WinnerSlot1))

	if _, err := env.svc.RequestSettlement(context.Background(), alice, "777777"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestRequestSettlement_AfterPlayedMatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.playing(t)

	if _, err := env.svc.ReportLoss(ctx, alice, code); err != nil {
		t.Fatalf("ReportLoss failed: %v", err)
	}
	v, err := env.svc.RequestSettlement(ctx, bob, code)
	if err != nil {
		t.Fatalf("RequestSettlement failed: %v", err)
	}
	if v.Caller != bob.Wallet {
		t.Errorf("Expected voucher for bob, got %s", v.Caller)
	}

	rec, _, _ := env.svc.PollStatus(ctx, bob, code)
	if !rec.Settlement.Slot2Claimed || rec.Settlement.Slot1Claimed {
		t.Errorf("Unexpected settlement flags %+v", rec.Settlement)
	}
}
