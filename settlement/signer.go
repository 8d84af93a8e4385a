// Package settlement issues signed payout vouchers that an on-chain
// settlement contract verifies before releasing funds.
package settlement

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidKey     = errors.New("settlement: invalid private key")
	ErrInvalidAddress = errors.New("settlement: invalid address")
	ErrInvalidAmount  = errors.New("settlement: invalid amount")
)

// Voucher is a signed payout authorization.
type Voucher struct {
	RoomCode  string
	Caller    string
	Amount    *big.Int
	Contract  string
	Signature []byte // r || s || v, v in {27, 28}
}

// SignatureHex returns the 0x-prefixed signature.
func (v *Voucher) SignatureHex() string {
	return "0x" + hex.EncodeToString(v.Signature)
}

// Signer signs vouchers for one settlement contract.
type Signer struct {
	key      *secp256k1.PrivateKey
	address  [20]byte
	contract string
}

// NewSigner parses a hex secp256k1 key and the contract address.
func NewSigner(hexKey, contract string) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	if _, err := ParseAddress(contract); err != nil {
		return nil, fmt.Errorf("contract: %w", err)
	}
	key := secp256k1.PrivKeyFromBytes(raw)
	if key.Key.IsZero() {
		return nil, ErrInvalidKey
	}
	return &Signer{
		key:      key,
		address:  AddressFromPubKey(key.PubKey()),
		contract: contract,
	}, nil
}

// Address is the signer address the contract trusts.
func (s *Signer) Address() string {
	return FormatAddress(s.address)
}

// Contract is the settlement contract address.
func (s *Signer) Contract() string {
	return s.contract
}

// Sign authorizes amount (base units) for caller in room code.
// Signing is deterministic, so the same tuple yields the same voucher.
func (s *Signer) Sign(code, caller string, amount *big.Int) (*Voucher, error) {
	addr, err := ParseAddress(caller)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	digest, err := ClaimDigest(code, addr, amount)
	if err != nil {
		return nil, err
	}
	hash := PersonalMessageHash(digest)

	compact := ecdsa.SignCompact(s.key, hash[:], false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]

	return &Voucher{
		RoomCode:  code,
		Caller:    caller,
		Amount:    new(big.Int).Set(amount),
		Contract:  s.contract,
		Signature: sig,
	}, nil
}

// ClaimDigest is keccak256(abi.encodePacked(string code, address caller, uint256 amount)).
func ClaimDigest(code string, caller [20]byte, amount *big.Int) ([32]byte, error) {
	var out [32]byte
	if amount.Sign() < 0 || amount.BitLen() > 256 {
		return out, ErrInvalidAmount
	}
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(code))
	h.Write(caller[:])
	h.Write(amount.FillBytes(make([]byte, 32)))
	copy(out[:], h.Sum(nil))
	return out, nil
}

// PersonalMessageHash applies the EIP-191 personal message prefix to digest.
func PersonalMessageHash(digest [32]byte) [32]byte {
	return Keccak256([]byte("\x19Ethereum Signed Message:\n32"), digest[:])
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	copy(out[:], h.Sum(nil))
	return out
}

// Recover returns the address that produced an r || s || v signature over hash.
func Recover(hash [32]byte, sig []byte) (string, error) {
	if len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		return "", errors.New("settlement: malformed signature")
	}
	compact := make([]byte, 65)
	compact[0] = sig[64]
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		return "", err
	}
	return FormatAddress(AddressFromPubKey(pub)), nil
}

// AddressFromPubKey derives the 20-byte account address of pub.
func AddressFromPubKey(pub *secp256k1.PublicKey) [20]byte {
	var addr [20]byte
	h := Keccak256(pub.SerializeUncompressed()[1:])
	copy(addr[:], h[12:])
	return addr
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address, any casing.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return addr, ErrInvalidAddress
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil || len(raw) != 20 {
		return addr, ErrInvalidAddress
	}
	copy(addr[:], raw)
	return addr, nil
}

// FormatAddress renders an address in EIP-55 checksum casing.
func FormatAddress(addr [20]byte) string {
	lower := hex.EncodeToString(addr[:])
	h := Keccak256([]byte(lower))
	out := []byte(lower)
	for i, c := range out {
		if c < 'a' {
			continue
		}
		nibble := h[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}
