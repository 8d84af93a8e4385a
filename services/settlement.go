package services

import (
	"context"
	"math/big"

	"github.com/wfunc/blinkduel/logger"
	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/settlement"
	"github.com/wfunc/blinkduel/state"
)

// RequestSettlement issues the caller's payout voucher: the win amount to
// the winner, or the stake back to each side of a draw. Each slot gets at
// most one voucher; the flag is committed before the voucher is released.
func (s *MatchService) RequestSettlement(ctx context.Context, caller persistence.Identity, code string) (*settlement.Voucher, error) {
	if s.signer == nil || s.payouts.Stake == nil || s.payouts.Win == nil {
		return nil, ErrNotConfigured
	}
	code = normalizeCode(code)

	var (
		voucher *settlement.Voucher
		kind    string
	)
	_, _, err := s.commit(ctx, code, func(m *mutation) error {
		voucher, kind = nil, ""
		rec := m.rec
		if rec.Phase != room.PhaseFinished {
			return ErrNotFinished
		}
		if !rec.Decided() {
			return ErrNoWinner
		}
		slot, err := participant(rec, caller)
		if err != nil {
			return err
		}

		var amount *big.Int
		if rec.Winner == room.WinnerDraw {
			if rec.Settlement.Refunded(slot) {
				return ErrAlreadyRefunded
			}
			amount, kind = s.payouts.Stake, "refund"
			rec.Settlement.SetRefunded(slot)
		} else {
			if rec.Winner != room.WinnerFor(slot) {
				return ErrNotWinner
			}
			if rec.Settlement.Claimed(slot) {
				return ErrAlreadyClaimed
			}
			amount, kind = s.payouts.Win, "win"
			rec.Settlement.SetClaimed(slot)
		}

		// Signing is deterministic, so a retried attempt yields the same voucher.
		v, err := s.signer.Sign(rec.Code, caller.Wallet, amount)
		if err != nil {
			return err
		}
		voucher = v
		m.write(state.CauseNone)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.monitor.IncVoucher(kind)
	logger.Log.Infow("voucher issued", "room", code, "caller", caller.Wallet, "kind", kind, "amount", voucher.Amount.String())
	return voucher, nil
}
