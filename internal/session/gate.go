// Package session is the gate between callers and the workflow: it decides
// whether a bearer token maps to an authenticated identity. Credential
// verification lives with the external identity provider; the gate only
// verifies tokens the provider minted with the shared secret, and tracks
// revocations so a signed-out or deadline-ejected session stays dead until
// the token would have expired anyway.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kodaktechie/recoveryd/internal/idgen"
)

// Identity is an authenticated caller. The zero value means "no identity".
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// IsZero reports whether this is the absent identity.
func (i Identity) IsZero() bool { return i.ID == "" }

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Gate verifies session tokens and maintains the revocation list.
type Gate struct {
	secret []byte
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry, pruned lazily
}

// NewGate returns a gate verifying HS256 tokens signed with secret.
func NewGate(secret []byte) *Gate {
	return &Gate{
		secret:  secret,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// Issue mints a session token for the identity. In production the external
// identity provider does this with the same secret; the daemon issues
// tokens only for its own session surface and for tests.
func (g *Gate) Issue(id Identity, ttl time.Duration) (string, error) {
	if id.IsZero() {
		return "", fmt.Errorf("issue token: empty identity")
	}
	jti, err := idgen.TokenID()
	if err != nil {
		return "", err
	}
	now := g.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: id.Email,
	})
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Identify returns the identity behind a token, or false for anything that
// is not a live, validly signed session: bad signature, expired, revoked,
// malformed. Callers never learn which; every failure is "no identity".
func (g *Gate) Identify(token string) (Identity, bool) {
	c, ok := g.parse(token)
	if !ok {
		return Identity{}, false
	}

	g.mu.Lock()
	g.pruneLocked()
	_, dead := g.revoked[c.ID]
	g.mu.Unlock()
	if dead {
		return Identity{}, false
	}

	return Identity{ID: c.Subject, Email: c.Email}, true
}

// SignOut revokes the token until its natural expiry. Unparseable tokens
// are ignored: they never identified anyone to begin with.
func (g *Gate) SignOut(token string) {
	c, ok := g.parse(token)
	if !ok {
		return
	}
	exp := g.now().Add(time.Hour)
	if c.ExpiresAt != nil {
		exp = c.ExpiresAt.Time
	}

	g.mu.Lock()
	g.revoked[c.ID] = exp
	g.pruneLocked()
	g.mu.Unlock()
}

func (g *Gate) parse(token string) (*claims, bool) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil || c.Subject == "" || c.ID == "" {
		return nil, false
	}
	return &c, true
}

// pruneLocked drops revocations for tokens that have expired on their own.
// Caller holds g.mu.
func (g *Gate) pruneLocked() {
	now := g.now()
	for jti, exp := range g.revoked {
		if now.After(exp) {
			delete(g.revoked, jti)
		}
	}
}
