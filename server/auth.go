package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wfunc/blinkduel/persistence"
)

// ErrUnauthenticated means the request carried no usable credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

const (
	HeaderWallet   = "X-Wallet-Address"
	HeaderUsername = "X-Username"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (persistence.Identity, error)
}

// SessionAuth resolves bearer tokens through a session directory.
type SessionAuth struct {
	dir persistence.Directory
}

func NewSessionAuth(dir persistence.Directory) *SessionAuth {
	return &SessionAuth{dir: dir}
}

func (a *SessionAuth) Authenticate(r *http.Request) (persistence.Identity, error) {
	token := bearer(r)
	if token == "" {
		return persistence.Identity{}, ErrUnauthenticated
	}
	id, err := a.dir.LookupSession(r.Context(), token)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return persistence.Identity{}, ErrUnauthenticated
	}
	if err != nil {
		return persistence.Identity{}, fmt.Errorf("session lookup: %w", err)
	}
	if id.Wallet == "" {
		return persistence.Identity{}, ErrUnauthenticated
	}
	return *id, nil
}

// GatewayAuth trusts identity headers set by an upstream gateway that
// presents the shared token.
type GatewayAuth struct {
	token []byte
}

func NewGatewayAuth(token string) *GatewayAuth {
	return &GatewayAuth{token: []byte(token)}
}

func (a *GatewayAuth) Authenticate(r *http.Request) (persistence.Identity, error) {
	if len(a.token) == 0 || subtle.ConstantTimeCompare([]byte(bearer(r)), a.token) != 1 {
		return persistence.Identity{}, ErrUnauthenticated
	}
	wallet := persistence.NormalizeWallet(r.Header.Get(HeaderWallet))
	if wallet == "" {
		return persistence.Identity{}, ErrUnauthenticated
	}
	name := strings.TrimSpace(r.Header.Get(HeaderUsername))
	if name == "" {
		name = "Player"
	}
	return persistence.Identity{Wallet: wallet, DisplayName: name}, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

type identityKey struct{}

// WithIdentity attaches the authenticated caller to ctx.
func WithIdentity(ctx context.Context, id persistence.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller attached by WithIdentity.
func IdentityFrom(ctx context.Context) (persistence.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(persistence.Identity)
	return id, ok
}
