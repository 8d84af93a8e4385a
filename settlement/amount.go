package settlement

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the precision of the staked token.
const Decimals = 18

// ParseAmount converts a decimal token amount such as "1.9" to base units.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > Decimals || (whole == "" && frac == "") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))

	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// Payouts are the voucher amounts in base units.
type Payouts struct {
	Stake *big.Int // refunded to each side of a draw
	Win   *big.Int // paid to the winner
}

// ParsePayouts converts decimal stake and win amounts.
func ParsePayouts(stake, win string) (Payouts, error) {
	s, err := ParseAmount(stake)
	if err != nil {
		return Payouts{}, fmt.Errorf("stake: %w", err)
	}
	w, err := ParseAmount(win)
	if err != nil {
		return Payouts{}, fmt.Errorf("win: %w", err)
	}
	return Payouts{Stake: s, Win: w}, nil
}
