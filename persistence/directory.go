// persistence/directory.go
package persistence

import (
	"context"
	"strings"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	Wallet      string
	DisplayName string
}

// Directory resolves a session token to the identity that owns it.
type Directory interface {
	// LookupSession returns ErrRecordNotFound for an unknown or expired token.
	LookupSession(ctx context.Context, token string) (*Identity, error)
	Close() error
}

// StaticDirectory is a fixed token table for development.
type StaticDirectory struct {
	sessions map[string]Identity
}

// NewStaticDirectory returns a directory over token -> identity.
func NewStaticDirectory(sessions map[string]Identity) *StaticDirectory {
	d := &StaticDirectory{sessions: make(map[string]Identity, len(sessions))}
	for token, id := range sessions {
		id.Wallet = NormalizeWallet(id.Wallet)
		d.sessions[token] = id
	}
	return d
}

func (d *StaticDirectory) LookupSession(_ context.Context, token string) (*Identity, error) {
	id, ok := d.sessions[token]
	if !ok || token == "" {
		return nil, ErrRecordNotFound
	}
	return &id, nil
}

func (d *StaticDirectory) Close() error { return nil }

// NormalizeWallet lowercases a hex wallet address so identities compare
// regardless of checksum casing.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
