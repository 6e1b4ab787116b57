package authstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// tokenSize is the byte length of every permanent token and share-link
// token: 256 bits, per spec.md §3.
const tokenSize = 32

// Token is an opaque 256-bit credential. It is never logged or exposed
// outside of persistence and the single wire path (§6.1's hex field) that
// needs its string form — see spec.md §9's design note on treating the
// permanent token as an opaque MAC key rather than a string everywhere.
type Token [tokenSize]byte

// newToken generates a cryptographically random Token via crypto/rand, the
// only acceptable source for anything used as a bearer credential or HMAC
// key (spec.md §4.1: "generates 256-bit random token (CSPRNG)").
func newToken() (Token, error) {
	var t Token
	if _, err := rand.Read(t[:]); err != nil {
		return Token{}, fmt.Errorf("generate token: %w", err)
	}
	return t, nil
}

// Hex renders the token as the 64 lowercase hex characters spec.md §6.1
// persists and §4.1's verify() classifies.
func (t Token) Hex() string { return hex.EncodeToString(t[:]) }

// tokenFromHex decodes a 64-hex-char string into a Token. It returns false
// (not an error) on any malformed input, matching verify()'s "never throws"
// contract — callers treat a false result the same as "not a match".
func tokenFromHex(s string) (Token, bool) {
	if len(s) != tokenSize*2 {
		return Token{}, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Token{}, false
	}
	var t Token
	copy(t[:], b)
	return t, true
}

// Session is the permanent record spec.md §3 describes: one per identity,
// keyed by a string id, carrying both the identity token and the HMAC key
// for that session's signed tokens (the same 32 bytes serve both roles).
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Role      Role
	Token     Token

	// Provider/ProviderUserID are set only for sessions created by the
	// OAuth bridge's findOrCreateOAuthSession.
	Provider       string
	ProviderUserID string
}

// ShareLink is a bearer credential not bound to any session: its own
// token, a role, and optional expiry/use-count bounds, per spec.md §3.
type ShareLink struct {
	Token     Token
	Role      Role
	CreatedAt time.Time
	UseCount  int
	ExpiresAt *time.Time
	MaxUses   *int
	Label     string
}

// Valid reports whether the link can still be redeemed at the given time:
// not expired, and under its max-use bound when one is set.
func (s *ShareLink) Valid(now time.Time) bool {
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return false
	}
	if s.MaxUses != nil && s.UseCount >= *s.MaxUses {
		return false
	}
	return true
}
